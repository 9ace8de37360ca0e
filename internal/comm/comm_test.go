package comm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mjrt0817/quiz-bonenkai/internal/game"
	"github.com/mjrt0817/quiz-bonenkai/internal/roster"
	"github.com/mjrt0817/quiz-bonenkai/internal/store"
)

const (
	testRoom    = "TEST"
	statePath   = "rooms/TEST/state"
	playersPath = "rooms/TEST/players"
)

func newTestStore(t *testing.T) *store.TreeStore {
	t.Helper()
	st, err := store.New(context.Background(), zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func openChannel(t *testing.T, st *store.TreeStore, role Role) *Channel {
	t.Helper()
	ch, err := Open(context.Background(), st, testRoom, statePath, playersPath, role, game.DefaultRules(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(ch.Close)
	return ch
}

// waitBootstrap blocks until the privileged channel has written the default
// document, so later writes in the test cannot race it.
func waitBootstrap(t *testing.T, st *store.TreeStore) {
	t.Helper()
	require.Eventually(t, func() bool {
		doc, err := st.Read(statePath)
		return err == nil && doc != nil
	}, time.Second, 5*time.Millisecond, "state document never bootstrapped")
}

// waitFor polls the channel's reconciled state until cond holds.
func waitFor(t *testing.T, ch *Channel, cond func(game.State) bool, msg string) game.State {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for: %s (state: %+v)", msg, ch.State())
		case <-time.After(5 * time.Millisecond):
			if s := ch.State(); cond(s) {
				return s
			}
		}
	}
}

func testQuestions() []game.Question {
	return []game.Question{
		{ID: "q1", Text: "first", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 1},
		{ID: "q2", Text: "second", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 0},
	}
}

func TestPrivilegedChannelBootstrapsEmptyStore(t *testing.T) {
	st := newTestStore(t)
	_ = openChannel(t, st, RoleAdmin)

	require.Eventually(t, func() bool {
		doc, err := st.Read(statePath)
		return err == nil && doc != nil
	}, time.Second, 5*time.Millisecond, "default document never written")

	doc, err := st.Read(statePath)
	require.NoError(t, err)
	m := doc.(map[string]any)
	assert.Equal(t, "SETUP", m["gameState"])
	assert.Equal(t, float64(20), m["timeLimit"])
	assert.Equal(t, testRoom, m["roomCode"])
}

func TestPlayerChannelDoesNotBootstrap(t *testing.T) {
	st := newTestStore(t)
	_ = openChannel(t, st, RolePlayer)

	time.Sleep(50 * time.Millisecond)
	doc, err := st.Read(statePath)
	require.NoError(t, err)
	assert.Nil(t, doc, "a player must never initialize the shared document")
}

func TestUpdateState_PlayerIsSilentNoOp(t *testing.T) {
	st := newTestStore(t)
	ch := openChannel(t, st, RolePlayer)

	err := ch.UpdateState(func(s game.State) game.State {
		s.QuizTitle = "hijacked"
		return s
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	doc, err := st.Read(statePath)
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.NotEqual(t, "hijacked", ch.State().QuizTitle)
}

func TestDo_PropagatesToOtherChannels(t *testing.T) {
	st := newTestStore(t)
	admin := openChannel(t, st, RoleAdmin)
	player := openChannel(t, st, RolePlayer)

	waitBootstrap(t, st)

	_, err := admin.Do(game.Command{Type: game.CmdLoadQuestions, Questions: testQuestions()})
	require.NoError(t, err)

	s := waitFor(t, player, func(s game.State) bool { return s.Phase == game.PhaseLobby }, "player sees LOBBY")
	assert.Len(t, s.Questions, 2)
}

func TestDo_PlayerIsSilentNoOp(t *testing.T) {
	st := newTestStore(t)
	ch := openChannel(t, st, RolePlayer)

	events, err := ch.Do(game.Command{Type: game.CmdLoadQuestions, Questions: testQuestions()})
	require.NoError(t, err)
	assert.Nil(t, events)
	assert.Equal(t, game.PhaseSetup, ch.State().Phase)
}

func TestDo_IllegalCommandLeavesStateUntouched(t *testing.T) {
	st := newTestStore(t)
	admin := openChannel(t, st, RoleAdmin)
	waitBootstrap(t, st)

	_, err := admin.Do(game.Command{Type: game.CmdStartTimer, Now: 1000})
	assert.ErrorIs(t, err, game.ErrWrongPhase)
	assert.Equal(t, game.PhaseSetup, admin.State().Phase)
}

func TestRosterMergeAndDenormalization(t *testing.T) {
	st := newTestStore(t)
	admin := openChannel(t, st, RoleAdmin)
	ros := roster.New(st, playersPath, zap.NewNop())

	waitBootstrap(t, st)

	id, _, err := ros.Join("Alice", "")
	require.NoError(t, err)

	waitFor(t, admin, func(s game.State) bool { return len(s.Players) == 1 }, "admin merges roster")

	// The privileged channel pushes the merged roster into the state
	// document, so a late state-only subscriber sees the player list
	// without touching the roster path.
	require.Eventually(t, func() bool {
		doc, err := st.Read(statePath)
		if err != nil || doc == nil {
			return false
		}
		players, ok := doc.(map[string]any)["players"].([]any)
		return ok && len(players) == 1
	}, time.Second, 5*time.Millisecond, "roster not denormalized into the state document")

	// Answer patches flow through the same merge.
	require.NoError(t, ros.SubmitAnswer(id, 2, 5000))
	s := waitFor(t, admin, func(s game.State) bool {
		return len(s.Players) == 1 && s.Players[0].LastAnswerIndex != nil
	}, "answer visible")
	assert.Equal(t, 2, *s.Players[0].LastAnswerIndex)
}

func TestReconcile_MalformedSnapshotFallsBackToDefaults(t *testing.T) {
	st := newTestStore(t)

	// A partial document with players as a keyed map and most fields absent.
	require.NoError(t, st.WriteWhole(statePath, map[string]any{
		"gameState": "LOBBY",
		"players": map[string]any{
			"p1": map[string]any{"id": "p1", "name": "Alice"},
			"x":  map[string]any{"name": "no id, dropped"},
		},
	}))

	ch := openChannel(t, st, RolePlayer)
	s := waitFor(t, ch, func(s game.State) bool { return s.Phase == game.PhaseLobby }, "snapshot decoded")

	assert.Equal(t, 20, s.TimeLimit, "missing field falls back to default")
	require.Len(t, s.Players, 1)
	assert.Equal(t, "Alice", s.Players[0].Name)
	assert.NotNil(t, s.Questions)
}

func TestScenario_TwoPlayersOneReveal(t *testing.T) {
	st := newTestStore(t)
	admin := openChannel(t, st, RoleAdmin)
	player := openChannel(t, st, RolePlayer)
	ros := roster.New(st, playersPath, zap.NewNop())

	waitBootstrap(t, st)

	aliceID, _, err := ros.Join("Alice", "")
	require.NoError(t, err)
	bobID, _, err := ros.Join("Bob", "")
	require.NoError(t, err)
	waitFor(t, admin, func(s game.State) bool { return len(s.Players) == 2 }, "roster merged")

	_, err = admin.Do(game.Command{Type: game.CmdLoadQuestions, Questions: testQuestions()})
	require.NoError(t, err)
	_, err = admin.Do(game.Command{Type: game.CmdStartGame, Now: 1000})
	require.NoError(t, err)

	start := int64(10_000)
	_, err = admin.Do(game.Command{Type: game.CmdStartTimer, Now: start})
	require.NoError(t, err)

	// Alice answers correctly at t+2000, Bob picks the wrong option.
	require.NoError(t, ros.SubmitAnswer(aliceID, 1, start+2000))
	require.NoError(t, ros.SubmitAnswer(bobID, 3, start+1000))
	waitFor(t, admin, func(s game.State) bool { return game.AnsweredCount(s.Players) == 2 }, "answers merged")

	events, err := admin.Do(game.Command{Type: game.CmdReveal})
	require.NoError(t, err)
	for _, ev := range events {
		if ev.Type == game.EvtRevealed {
			require.NoError(t, ros.SaveScores(ev.Results))
		}
	}

	s := waitFor(t, player, func(s game.State) bool {
		return s.Phase == game.PhasePlayingResult && len(s.Players) == 2 && maxScore(s.Players) == 10
	}, "player sees scored result")

	ranked := game.Rank(s.Players)
	assert.Equal(t, "Alice", ranked[0].Name)
	assert.Equal(t, 10, ranked[0].Score)
	assert.Equal(t, int64(2000), ranked[0].TotalResponseTime)
	assert.Equal(t, 0, ranked[1].Score)
}

func maxScore(players []game.Player) int {
	m := 0
	for _, p := range players {
		if p.Score > m {
			m = p.Score
		}
	}
	return m
}
