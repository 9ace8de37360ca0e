// Package roster maintains the player list subtree. Players write their own
// entries here directly (join, answers) without holding write access to the
// rest of the game state; privileged roles mutate any entry. The merged list
// is projected into the shared state document by the comm layer.
package roster

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mjrt0817/quiz-bonenkai/internal/game"
	"github.com/mjrt0817/quiz-bonenkai/internal/store"
)

type Engine struct {
	st          *store.TreeStore
	playersPath string
	log         *zap.Logger
}

func New(st *store.TreeStore, playersPath string, log *zap.Logger) *Engine {
	return &Engine{st: st, playersPath: playersPath, log: log}
}

// Join registers a player under the given nickname. If an entry with the
// same name already exists its id is adopted and the entry is marked online
// again; this is the reconnection path, so a refreshed phone resumes its
// score instead of duplicating itself. currentID is the caller's previously
// persisted id, reused when a fresh entry is created.
func (e *Engine) Join(name, currentID string) (id string, created bool, err error) {
	doc, err := e.st.Read(e.playersPath)
	if err != nil {
		return "", false, err
	}
	for _, p := range DecodePlayers(doc) {
		if p.Name == name {
			err = e.st.PatchMultiple(map[string]any{
				e.entryPath(p.ID, "isOnline"): true,
			})
			return p.ID, false, err
		}
	}

	if currentID == "" {
		currentID = NewPlayerID()
	}
	entry := game.Player{
		ID:                currentID,
		Name:              name,
		Score:             0,
		LastAnswerIndex:   nil,
		LastAnswerTime:    0,
		TotalResponseTime: 0,
		IsOnline:          true,
		IsOrganizer:       false,
	}
	if err := e.st.WriteWhole(e.playersPath+"/"+currentID, entry); err != nil {
		return "", false, err
	}
	return currentID, true, nil
}

// SubmitAnswer records the player's choice and the wall-clock time it
// landed. Overwriting an earlier answer for the same question is allowed.
func (e *Engine) SubmitAnswer(playerID string, index int, now int64) error {
	if playerID == "" || index < 0 || index >= game.OptionCount {
		return fmt.Errorf("invalid answer submission (player %q, index %d)", playerID, index)
	}
	return e.st.PatchMultiple(map[string]any{
		e.entryPath(playerID, "lastAnswerIndex"): index,
		e.entryPath(playerID, "lastAnswerTime"):  now,
	})
}

// SetOnline tracks connection status, roughly. Called on disconnect so the
// operator console can grey out dropped phones.
func (e *Engine) SetOnline(playerID string, online bool) error {
	if playerID == "" {
		return nil
	}
	return e.st.PatchMultiple(map[string]any{
		e.entryPath(playerID, "isOnline"): online,
	})
}

// Kick removes one roster entry.
func (e *Engine) Kick(playerID string) error {
	return e.st.DeleteSubtree(e.playersPath + "/" + playerID)
}

// ResetAll wipes the entire roster subtree.
func (e *Engine) ResetAll() error {
	return e.st.DeleteSubtree(e.playersPath)
}

// ToggleOrganizer flips the exhibition-mode flag on one entry. Organizers
// keep scoring but always rank below every regular player.
func (e *Engine) ToggleOrganizer(playerID string, current bool) error {
	return e.st.PatchMultiple(map[string]any{
		e.entryPath(playerID, "isOrganizer"): !current,
	})
}

// ResetAnswers clears every player's current answer in one round trip.
// Scores and accumulated times are untouched.
func (e *Engine) ResetAnswers(players []game.Player) error {
	patch := map[string]any{}
	for _, p := range players {
		if p.ID == "" {
			continue
		}
		patch[e.entryPath(p.ID, "lastAnswerIndex")] = nil
	}
	return e.st.PatchMultiple(patch)
}

// ResetScores zeroes scores, answers and accumulated times for a new game.
func (e *Engine) ResetScores(players []game.Player) error {
	patch := map[string]any{}
	for _, p := range players {
		if p.ID == "" {
			continue
		}
		patch[e.entryPath(p.ID, "score")] = 0
		patch[e.entryPath(p.ID, "lastAnswerIndex")] = nil
		patch[e.entryPath(p.ID, "totalResponseTime")] = 0
	}
	return e.st.PatchMultiple(patch)
}

// SaveScores persists the post-reveal totals computed by the state machine.
func (e *Engine) SaveScores(results []game.ScoreResult) error {
	patch := map[string]any{}
	for _, r := range results {
		if r.PlayerID == "" {
			continue
		}
		patch[e.entryPath(r.PlayerID, "score")] = r.Score
		patch[e.entryPath(r.PlayerID, "totalResponseTime")] = r.TotalResponseTime
	}
	return e.st.PatchMultiple(patch)
}

func (e *Engine) entryPath(id, field string) string {
	return e.playersPath + "/" + id + "/" + field
}

// NewPlayerID mints the opaque token a client persists locally across
// reloads. The millis prefix keeps ids roughly sortable by join time in the
// store tree.
func NewPlayerID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("p-%d-%s", time.Now().UnixMilli(), suffix)
}

// DecodePlayers accepts the roster subtree in either shape the store can
// produce (keyed map or array) and drops anything without a stable id
// rather than crashing a display.
func DecodePlayers(doc any) []game.Player {
	var rawList []any
	switch v := doc.(type) {
	case nil:
		return nil
	case []any:
		rawList = v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rawList = append(rawList, v[k])
		}
	default:
		return nil
	}

	var players []game.Player
	for _, raw := range rawList {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		var p game.Player
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		if p.ID == "" {
			continue
		}
		players = append(players, p)
	}
	return players
}
