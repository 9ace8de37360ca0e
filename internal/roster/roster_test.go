package roster

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mjrt0817/quiz-bonenkai/internal/game"
	"github.com/mjrt0817/quiz-bonenkai/internal/store"
)

const playersPath = "rooms/TEST/players"

func newTestEngine(t *testing.T) (*Engine, *store.TreeStore) {
	t.Helper()
	st, err := store.New(context.Background(), zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return New(st, playersPath, zap.NewNop()), st
}

func readPlayers(t *testing.T, st *store.TreeStore) []game.Player {
	t.Helper()
	doc, err := st.Read(playersPath)
	require.NoError(t, err)
	return DecodePlayers(doc)
}

func TestJoin_CreatesEntryWithDefaults(t *testing.T) {
	e, st := newTestEngine(t)

	id, created, err := e.Join("Alice", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, strings.HasPrefix(id, "p-"), "id format: %s", id)

	players := readPlayers(t, st)
	require.Len(t, players, 1)
	p := players[0]
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, 0, p.Score)
	assert.Nil(t, p.LastAnswerIndex)
	assert.True(t, p.IsOnline)
	assert.False(t, p.IsOrganizer)
}

func TestJoin_SameNameIsIdempotent(t *testing.T) {
	// Two sessions joining under the same nickname converge on one entry
	// and the same working id. This is the crashed-phone reconnection path.
	e, st := newTestEngine(t)

	id1, created, err := e.Join("Alice", "")
	require.NoError(t, err)
	require.True(t, created)

	// The entry accumulated some game history in between.
	require.NoError(t, e.SaveScores([]game.ScoreResult{{PlayerID: id1, Score: 20, TotalResponseTime: 1500}}))

	id2, created, err := e.Join("Alice", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	players := readPlayers(t, st)
	require.Len(t, players, 1)
	assert.Equal(t, 20, players[0].Score, "reconnect must resume the score")
	assert.True(t, players[0].IsOnline)
}

func TestJoin_ReusesCallerID(t *testing.T) {
	e, st := newTestEngine(t)

	id, created, err := e.Join("Bob", "p-123-abc")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "p-123-abc", id)
	require.Len(t, readPlayers(t, st), 1)
}

func TestJoin_DifferentNamesGetDistinctEntries(t *testing.T) {
	e, st := newTestEngine(t)

	id1, _, err := e.Join("Alice", "")
	require.NoError(t, err)
	id2, _, err := e.Join("alice", "") // case-sensitive exact match
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Len(t, readPlayers(t, st), 2)
}

func TestSubmitAnswer(t *testing.T) {
	e, st := newTestEngine(t)
	id, _, err := e.Join("Alice", "")
	require.NoError(t, err)

	require.NoError(t, e.SubmitAnswer(id, 2, 123456))

	p := readPlayers(t, st)[0]
	require.NotNil(t, p.LastAnswerIndex)
	assert.Equal(t, 2, *p.LastAnswerIndex)
	assert.Equal(t, int64(123456), p.LastAnswerTime)

	assert.Error(t, e.SubmitAnswer(id, 4, 123456), "index out of range")
	assert.Error(t, e.SubmitAnswer("", 1, 123456), "missing id")
}

func TestKickAndResetAll(t *testing.T) {
	e, st := newTestEngine(t)
	id1, _, err := e.Join("Alice", "")
	require.NoError(t, err)
	_, _, err = e.Join("Bob", "")
	require.NoError(t, err)

	require.NoError(t, e.Kick(id1))
	players := readPlayers(t, st)
	require.Len(t, players, 1)
	assert.Equal(t, "Bob", players[0].Name)

	require.NoError(t, e.ResetAll())
	assert.Empty(t, readPlayers(t, st))
}

func TestToggleOrganizer(t *testing.T) {
	e, st := newTestEngine(t)
	id, _, err := e.Join("Staff", "")
	require.NoError(t, err)

	require.NoError(t, e.ToggleOrganizer(id, false))
	assert.True(t, readPlayers(t, st)[0].IsOrganizer)

	require.NoError(t, e.ToggleOrganizer(id, true))
	assert.False(t, readPlayers(t, st)[0].IsOrganizer)
}

func TestResetAnswers_PreservesScores(t *testing.T) {
	e, st := newTestEngine(t)
	id, _, err := e.Join("Alice", "")
	require.NoError(t, err)
	require.NoError(t, e.SubmitAnswer(id, 1, 5000))
	require.NoError(t, e.SaveScores([]game.ScoreResult{{PlayerID: id, Score: 10, TotalResponseTime: 2000}}))

	require.NoError(t, e.ResetAnswers(readPlayers(t, st)))

	p := readPlayers(t, st)[0]
	assert.Nil(t, p.LastAnswerIndex)
	assert.Equal(t, 10, p.Score)
	assert.Equal(t, int64(2000), p.TotalResponseTime)
}

func TestResetScores(t *testing.T) {
	e, st := newTestEngine(t)
	id, _, err := e.Join("Alice", "")
	require.NoError(t, err)
	require.NoError(t, e.SubmitAnswer(id, 1, 5000))
	require.NoError(t, e.SaveScores([]game.ScoreResult{{PlayerID: id, Score: 30, TotalResponseTime: 4000}}))

	require.NoError(t, e.ResetScores(readPlayers(t, st)))

	p := readPlayers(t, st)[0]
	assert.Equal(t, 0, p.Score)
	assert.Nil(t, p.LastAnswerIndex)
	assert.Zero(t, p.TotalResponseTime)
}

func TestSetOnline(t *testing.T) {
	e, st := newTestEngine(t)
	id, _, err := e.Join("Alice", "")
	require.NoError(t, err)

	require.NoError(t, e.SetOnline(id, false))
	assert.False(t, readPlayers(t, st)[0].IsOnline)
}

func TestDecodePlayers_Shapes(t *testing.T) {
	cases := []struct {
		name string
		doc  any
		want int
	}{
		{"nil", nil, 0},
		{
			"keyed map",
			map[string]any{
				"p1": map[string]any{"id": "p1", "name": "Alice"},
				"p2": map[string]any{"id": "p2", "name": "Bob"},
			},
			2,
		},
		{
			"array",
			[]any{map[string]any{"id": "p1", "name": "Alice"}},
			1,
		},
		{
			"entries without id are dropped",
			[]any{
				map[string]any{"name": "ghost"},
				"garbage",
				nil,
				map[string]any{"id": "p1", "name": "Alice"},
			},
			1,
		},
		{"scalar", 42, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, DecodePlayers(tc.doc), tc.want)
		})
	}
}
