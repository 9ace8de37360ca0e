package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mjrt0817/quiz-bonenkai/internal/game"
	"github.com/mjrt0817/quiz-bonenkai/internal/hub"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// CreateRoom mints an unused room code and opens the room. The response
// carries the join path a display client can render as a QR code; QR
// generation itself stays on the client side.
func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			reply := make(chan *hub.Room, 1)
			h.Inbox() <- hub.GetRoom{Code: c, Reply: reply}
			if <-reply == nil {
				code = c
				break
			}
			log.Info("collision on code, regenerating", zap.String("code", c))
		}

		reply := make(chan *hub.Room, 1)
		h.Inbox() <- hub.EnsureRoom{Code: code, Reply: reply}
		if <-reply == nil {
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code    string `json:"code"`
			JoinURL string `json:"join_url"`
		}{Code: code, JoinURL: "/ws?role=player&code=" + code})
	}
}

// LoadQuestions is the question-source boundary: it accepts an already
// parsed question array (CSV/AI ingestion happens elsewhere), validates the
// contract and drives the room into the lobby.
func LoadQuestions(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		reply := make(chan *hub.Room, 1)
		h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
		room := <-reply
		if room == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		var questions []game.Question
		if err := json.NewDecoder(r.Body).Decode(&questions); err != nil {
			http.Error(w, "bad question payload", http.StatusBadRequest)
			return
		}

		if _, err := room.Service().Do(game.Command{Type: game.CmdLoadQuestions, Questions: questions}); err != nil {
			switch err {
			case game.ErrWrongPhase:
				http.Error(w, "room is not in setup", http.StatusConflict)
			default:
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
			return
		}
		log.Info("questions loaded", zap.String("room", code), zap.Int("count", len(questions)))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Count int `json:"count"`
		}{Count: len(questions)})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
