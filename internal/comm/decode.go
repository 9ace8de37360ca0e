package comm

import (
	"encoding/json"
	"sort"

	"github.com/mjrt0817/quiz-bonenkai/internal/game"
	"github.com/mjrt0817/quiz-bonenkai/internal/roster"
)

// DecodeState normalizes one raw store snapshot into a canonical game.State,
// merging onto the supplied defaults so missing fields never crash a
// downstream consumer. Keyed maps are coerced to arrays, players without an
// id are filtered, and indices are clamped. All shaping happens here once,
// at the boundary.
func DecodeState(doc any, def game.State) game.State {
	m, ok := doc.(map[string]any)
	if !ok {
		return def
	}

	flat := make(map[string]any, len(m))
	for k, v := range m {
		flat[k] = v
	}
	players := roster.DecodePlayers(flat["players"])
	delete(flat, "players")
	flat["questions"] = coerceList(flat["questions"])

	out := def.Clone()
	if raw, err := json.Marshal(flat); err == nil {
		// Unmarshal over the defaults: absent fields keep their default
		// values, present fields replace them wholesale.
		_ = json.Unmarshal(raw, &out)
	}

	if players == nil {
		players = []game.Player{}
	}
	out.Players = players
	if out.Questions == nil {
		out.Questions = []game.Question{}
	}
	if out.CurrentQuestionIndex < 0 {
		out.CurrentQuestionIndex = 0
	}
	if out.RankingRevealStage < 0 {
		out.RankingRevealStage = 0
	}
	if out.RankingRevealStage > 3 {
		out.RankingRevealStage = 3
	}
	if out.TimeLimit < 1 {
		out.TimeLimit = def.TimeLimit
	}
	return out
}

// coerceList accepts either an array or a keyed map (the store can produce
// both for the same logical sequence) and returns an array.
func coerceList(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]any, 0, len(m))
	for _, k := range keys {
		list = append(list, m[k])
	}
	return list
}
