// Package types is the websocket wire schema shared with the display and
// phone clients.
package types

import "github.com/mjrt0817/quiz-bonenkai/internal/game"

// Client -> Server
//
// Player role:
//   Join:          name, player_id (optional, resume token)
//   SubmitAnswer:  index (0..3)
//
// Privileged roles (host/admin); silently dropped for players:
//   LoadQuestions:      questions ([]Question, exactly 4 options each)
//   StartGame:          {}
//   StartTimer:         {}
//   Reveal:             {}
//   NextQuestion:       {}
//   AdvanceStage:       {}
//   SetRankingVisible:  visible
//   ForceFinish:        {}
//   ResetGame:          {}
//   ResetAnswers:       {}
//   ResetScores:        {}
//   KickPlayer:         player_id
//   ResetAllPlayers:    {}
//   ToggleOrganizer:    player_id, current
//   SetTimeLimit:       seconds
//   SetTitle:           title, title_image
//   ToggleLobbyDetails: {}
//   ToggleRules:        {}
//   SetHideBelowTop3:   hide
type ClientMessage struct {
	Type       string          `json:"type"`
	Name       string          `json:"name,omitempty"`
	PlayerID   string          `json:"player_id,omitempty"`
	Index      int             `json:"index,omitempty"`
	Questions  []game.Question `json:"questions,omitempty"`
	Seconds    int             `json:"seconds,omitempty"`
	Title      string          `json:"title,omitempty"`
	TitleImage string          `json:"title_image,omitempty"`
	Visible    bool            `json:"visible,omitempty"`
	Current    bool            `json:"current,omitempty"`
	Hide       bool            `json:"hide,omitempty"`
}

// Server -> Client
//
// StateSnapshot: the whole reconciled host document, sent on every change.
// Joined:        player_id the client must persist for reconnects.
// Error:         local to this session, never broadcast.
type ServerMessage struct {
	Type     string      `json:"type"` // "StateSnapshot" | "Joined" | "Error"
	State    *game.State `json:"state,omitempty"`
	PlayerID string      `json:"player_id,omitempty"`
	Error    string      `json:"error,omitempty"`
}
