package game

import "errors"

var ErrWrongPhase = errors.New("action not legal in current phase")
var ErrNoQuestions = errors.New("no questions loaded")
var ErrBadQuestion = errors.New("question must have exactly 4 options")
var ErrUnsupportedCommand = errors.New("unsupported command")

type CommandType string

const (
	CmdLoadQuestions      CommandType = "LoadQuestions"
	CmdStartGame          CommandType = "StartGame"
	CmdStartTimer         CommandType = "StartTimer"
	CmdReveal             CommandType = "Reveal"
	CmdNextQuestion       CommandType = "NextQuestion"
	CmdAdvanceStage       CommandType = "AdvanceStage"
	CmdSetRankingVisible  CommandType = "SetRankingVisible"
	CmdForceFinish        CommandType = "ForceFinish"
	CmdResetGame          CommandType = "ResetGame"
	CmdSetTimeLimit       CommandType = "SetTimeLimit"
	CmdSetTitle           CommandType = "SetTitle"
	CmdToggleLobbyDetails CommandType = "ToggleLobbyDetails"
	CmdToggleRules        CommandType = "ToggleRules"
	CmdSetHideBelowTop3   CommandType = "SetHideBelowTop3"
)

type Command struct {
	Type       CommandType
	Questions  []Question
	Seconds    int
	Title      string
	TitleImage string
	Visible    bool
	Hide       bool
	Now        int64 // caller-supplied wall clock, epoch ms
}

type EventType string

const (
	EvtQuestionsLoaded EventType = "QuestionsLoaded"
	EvtGameStarted     EventType = "GameStarted"
	EvtTimerStarted    EventType = "TimerStarted"
	EvtRevealed        EventType = "Revealed"
	EvtAdvanced        EventType = "Advanced"
	EvtGameFinished    EventType = "GameFinished"
	EvtStageAdvanced   EventType = "StageAdvanced"
	EvtGameReset       EventType = "GameReset"
	EvtAnswersCleared  EventType = "AnswersCleared"
	EvtScoresReset     EventType = "ScoresReset"
)

// ScoreResult is one player's post-reveal totals, carried on EvtRevealed so
// the roster side can persist them back to the players subtree.
type ScoreResult struct {
	PlayerID          string
	Score             int
	TotalResponseTime int64
}

type Event struct {
	Type    EventType
	Results []ScoreResult
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Apply runs one operator command against the state and returns the new
// state plus the events it produced. The input state is never mutated; an
// error means the command was illegal and the caller should treat it as a
// no-op.
func Apply(s State, cmd Command, rules Rules) (State, []Event, error) {
	next := s.Clone()

	switch cmd.Type {
	case CmdLoadQuestions:
		if s.Phase != PhaseSetup {
			return s, nil, ErrWrongPhase
		}
		if len(cmd.Questions) == 0 {
			return s, nil, ErrNoQuestions
		}
		qs, err := NormalizeQuestions(cmd.Questions)
		if err != nil {
			return s, nil, err
		}
		next.Questions = qs
		next.Phase = PhaseLobby
		next.CurrentQuestionIndex = 0
		next.RankingRevealStage = 0
		return next, []Event{{Type: EvtQuestionsLoaded}}, nil

	case CmdStartGame:
		if s.Phase != PhaseLobby {
			return s, nil, ErrWrongPhase
		}
		next.Phase = PhasePlayingQuestion
		next.CurrentQuestionIndex = 0
		next.QuestionStartTime = nil
		next.IsTimerRunning = false
		next.RankingRevealStage = 0
		next.IsRankingResultVisible = false
		next.ScoredQuestionIndex = -1
		for i := range next.Players {
			next.Players[i].Score = 0
			next.Players[i].LastAnswerIndex = nil
			next.Players[i].TotalResponseTime = 0
		}
		return next, []Event{{Type: EvtGameStarted}, {Type: EvtScoresReset}}, nil

	case CmdStartTimer:
		if s.Phase != PhasePlayingQuestion || s.IsTimerRunning {
			return s, nil, ErrWrongPhase
		}
		now := cmd.Now
		next.QuestionStartTime = &now
		next.IsTimerRunning = true
		return next, []Event{{Type: EvtTimerStarted}}, nil

	case CmdReveal:
		if s.Phase != PhasePlayingQuestion {
			return s, nil, ErrWrongPhase
		}
		next.Phase = PhasePlayingResult
		next.IsTimerRunning = false
		ev := Event{Type: EvtRevealed}
		if s.ScoredQuestionIndex < s.CurrentQuestionIndex {
			ev.Results = scoreReveal(&next, rules)
			next.ScoredQuestionIndex = next.CurrentQuestionIndex
		}
		return next, []Event{ev}, nil

	case CmdNextQuestion:
		if s.Phase != PhasePlayingResult {
			return s, nil, ErrWrongPhase
		}
		if s.CurrentQuestionIndex+1 >= len(s.Questions) {
			next.Phase = PhaseFinalResult
			next.RankingRevealStage = 0
			next.IsRankingResultVisible = false
			return next, []Event{{Type: EvtGameFinished}}, nil
		}
		next.CurrentQuestionIndex++
		next.Phase = PhasePlayingQuestion
		next.QuestionStartTime = nil
		next.IsTimerRunning = false
		for i := range next.Players {
			next.Players[i].LastAnswerIndex = nil
		}
		return next, []Event{{Type: EvtAdvanced}, {Type: EvtAnswersCleared}}, nil

	case CmdAdvanceStage:
		if s.Phase != PhaseFinalResult || s.RankingRevealStage >= 3 {
			return s, nil, ErrWrongPhase
		}
		next.RankingRevealStage++
		// The newly selected stage starts hidden so the operator can hold a
		// suspense beat before flipping it visible.
		next.IsRankingResultVisible = false
		return next, []Event{{Type: EvtStageAdvanced}}, nil

	case CmdSetRankingVisible:
		if s.Phase != PhaseFinalResult {
			return s, nil, ErrWrongPhase
		}
		next.IsRankingResultVisible = cmd.Visible
		return next, nil, nil

	case CmdForceFinish:
		if s.Phase != PhasePlayingQuestion && s.Phase != PhasePlayingResult {
			return s, nil, ErrWrongPhase
		}
		next.Phase = PhaseFinalResult
		next.IsTimerRunning = false
		next.RankingRevealStage = 0
		next.IsRankingResultVisible = false
		return next, []Event{{Type: EvtGameFinished}}, nil

	case CmdResetGame:
		next.Phase = PhaseSetup
		next.Questions = []Question{}
		next.CurrentQuestionIndex = 0
		next.QuestionStartTime = nil
		next.IsTimerRunning = false
		next.RankingRevealStage = 0
		next.IsRankingResultVisible = false
		next.ScoredQuestionIndex = -1
		return next, []Event{{Type: EvtGameReset}}, nil

	case CmdSetTimeLimit:
		if cmd.Seconds < 1 {
			return s, nil, ErrWrongPhase
		}
		next.TimeLimit = cmd.Seconds
		return next, nil, nil

	case CmdSetTitle:
		next.QuizTitle = cmd.Title
		next.TitleImage = cmd.TitleImage
		return next, nil, nil

	case CmdToggleLobbyDetails:
		next.IsLobbyDetailsVisible = !s.IsLobbyDetailsVisible
		return next, nil, nil

	case CmdToggleRules:
		next.IsRulesVisible = !s.IsRulesVisible
		return next, nil, nil

	case CmdSetHideBelowTop3:
		next.HideBelowTop3 = cmd.Hide
		return next, nil, nil

	default:
		return s, nil, ErrUnsupportedCommand
	}
}

// scoreReveal credits the fixed bonus to everyone whose answer matches the
// current question and accumulates their response time. Runs at most once
// per question; the caller owns the watermark.
func scoreReveal(next *State, rules Rules) []ScoreResult {
	q, ok := next.CurrentQuestion()
	if !ok {
		return nil
	}
	var results []ScoreResult
	for i := range next.Players {
		p := &next.Players[i]
		if p.LastAnswerIndex == nil || *p.LastAnswerIndex != q.CorrectIndex {
			continue
		}
		p.Score += rules.ScoreBonus
		if p.LastAnswerTime > 0 && next.QuestionStartTime != nil {
			taken := p.LastAnswerTime - *next.QuestionStartTime
			if taken > 0 {
				p.TotalResponseTime += taken
			}
		}
		results = append(results, ScoreResult{
			PlayerID:          p.ID,
			Score:             p.Score,
			TotalResponseTime: p.TotalResponseTime,
		})
	}
	return results
}

// NormalizeQuestions enforces the question-source contract: exactly 4
// options per question, correctIndex clamped into range.
func NormalizeQuestions(in []Question) ([]Question, error) {
	out := make([]Question, len(in))
	for i, q := range in {
		if len(q.Options) != OptionCount {
			return nil, ErrBadQuestion
		}
		if q.CorrectIndex < 0 {
			q.CorrectIndex = 0
		}
		if q.CorrectIndex >= OptionCount {
			q.CorrectIndex = OptionCount - 1
		}
		out[i] = q
	}
	return out, nil
}
