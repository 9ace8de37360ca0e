package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/mjrt0817/quiz-bonenkai/internal/comm"
	"github.com/mjrt0817/quiz-bonenkai/internal/game"
	"github.com/mjrt0817/quiz-bonenkai/internal/hub"
	"github.com/mjrt0817/quiz-bonenkai/internal/roster"
	"github.com/mjrt0817/quiz-bonenkai/pkg/types"
)

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		role, ok := comm.ParseRole(r.URL.Query().Get("role"))
		if !ok {
			http.Error(w, "missing or unknown role", http.StatusBadRequest)
			return
		}

		reply := make(chan *hub.Room, 1)
		h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
		room := <-reply
		if room == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ch, err := room.OpenChannel(r.Context(), role)
		if err != nil {
			log.Warn("channel open failed", zap.String("room", code), zap.Error(err))
			return
		}
		defer ch.Close()

		s := &session{
			conn: conn,
			ch:   ch,
			ros:  room.Roster(),
			role: role,
			log:  log.With(zap.String("room", code), zap.String("role", string(role))),
		}
		defer s.markOffline()

		// Writer goroutine: stream every reconciled snapshot to this client.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range ch.Snapshots() {
				s.write(writeCtx, types.ServerMessage{Type: "StateSnapshot", State: &snap})
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				s.write(r.Context(), types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}
			s.dispatch(r.Context(), cm)
		}
	}
}

// session is one connected client: its synchronization channel, its roster
// handle and (for players) the working id adopted at join.
type session struct {
	conn     *websocket.Conn
	ch       *comm.Channel
	ros      *roster.Engine
	role     comm.Role
	playerID string
	log      *zap.Logger
}

func (s *session) dispatch(ctx context.Context, m types.ClientMessage) {
	now := time.Now().UnixMilli()

	switch m.Type {
	case "Join":
		if s.role != comm.RolePlayer {
			return
		}
		if m.Name == "" {
			s.write(ctx, types.ServerMessage{Type: "Error", Error: "name required"})
			return
		}
		id, _, err := s.ros.Join(m.Name, m.PlayerID)
		if err != nil {
			s.write(ctx, types.ServerMessage{Type: "Error", Error: "join failed"})
			return
		}
		s.playerID = id
		s.write(ctx, types.ServerMessage{Type: "Joined", PlayerID: id})
		return

	case "SubmitAnswer":
		if s.role != comm.RolePlayer || s.playerID == "" {
			return
		}
		st := s.ch.State()
		if st.Phase != game.PhasePlayingQuestion || !st.IsTimerRunning {
			return
		}
		if err := s.ros.SubmitAnswer(s.playerID, m.Index, now); err != nil {
			s.log.Warn("submit answer failed", zap.Error(err))
		}
		return
	}

	// Everything below mutates shared game state. For player-role sessions
	// these are silent no-ops.
	if !s.role.Privileged() {
		return
	}

	switch m.Type {
	case "LoadQuestions":
		s.do(game.Command{Type: game.CmdLoadQuestions, Questions: m.Questions})
	case "StartGame":
		if events := s.do(game.Command{Type: game.CmdStartGame, Now: now}); game.ContainsEvent(events, game.EvtScoresReset) {
			s.rosterOp(s.ros.ResetScores(s.ch.State().Players))
		}
	case "StartTimer":
		s.do(game.Command{Type: game.CmdStartTimer, Now: now})
	case "Reveal":
		for _, ev := range s.do(game.Command{Type: game.CmdReveal, Now: now}) {
			if ev.Type == game.EvtRevealed && len(ev.Results) > 0 {
				s.rosterOp(s.ros.SaveScores(ev.Results))
			}
		}
	case "NextQuestion":
		if events := s.do(game.Command{Type: game.CmdNextQuestion, Now: now}); game.ContainsEvent(events, game.EvtAnswersCleared) {
			s.rosterOp(s.ros.ResetAnswers(s.ch.State().Players))
		}
	case "AdvanceStage":
		s.do(game.Command{Type: game.CmdAdvanceStage})
	case "SetRankingVisible":
		s.do(game.Command{Type: game.CmdSetRankingVisible, Visible: m.Visible})
	case "ForceFinish":
		s.do(game.Command{Type: game.CmdForceFinish})
	case "ResetGame":
		s.do(game.Command{Type: game.CmdResetGame})
	case "SetTimeLimit":
		s.do(game.Command{Type: game.CmdSetTimeLimit, Seconds: m.Seconds})
	case "SetTitle":
		s.do(game.Command{Type: game.CmdSetTitle, Title: m.Title, TitleImage: m.TitleImage})
	case "ToggleLobbyDetails":
		s.do(game.Command{Type: game.CmdToggleLobbyDetails})
	case "ToggleRules":
		s.do(game.Command{Type: game.CmdToggleRules})
	case "SetHideBelowTop3":
		s.do(game.Command{Type: game.CmdSetHideBelowTop3, Hide: m.Hide})
	case "ResetAnswers":
		s.rosterOp(s.ros.ResetAnswers(s.ch.State().Players))
	case "ResetScores":
		s.rosterOp(s.ros.ResetScores(s.ch.State().Players))
	case "KickPlayer":
		s.rosterOp(s.ros.Kick(m.PlayerID))
	case "ResetAllPlayers":
		s.rosterOp(s.ros.ResetAll())
	case "ToggleOrganizer":
		s.rosterOp(s.ros.ToggleOrganizer(m.PlayerID, m.Current))
	default:
		s.write(context.Background(), types.ServerMessage{Type: "Error", Error: "unknown type"})
	}
}

// do runs one command; an illegal-phase command is a designed no-op, so the
// sentinel errors are only logged at debug.
func (s *session) do(cmd game.Command) []game.Event {
	events, err := s.ch.Do(cmd)
	if err != nil {
		if errors.Is(err, game.ErrWrongPhase) {
			s.log.Debug("command ignored", zap.String("cmd", string(cmd.Type)))
			return nil
		}
		s.log.Warn("command failed", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return nil
	}
	return events
}

func (s *session) rosterOp(err error) {
	if err != nil {
		s.log.Warn("roster operation failed", zap.Error(err))
	}
}

func (s *session) markOffline() {
	if s.playerID == "" {
		return
	}
	if err := s.ros.SetOnline(s.playerID, false); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("mark offline failed", zap.Error(err))
	}
}

func (s *session) write(ctx context.Context, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = s.conn.Write(wctx, websocket.MessageText, payload)
}
