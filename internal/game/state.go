package game

// Phase is the single game-progression state shared by every client.
type Phase string

const (
	PhaseSetup           Phase = "SETUP"
	PhaseLobby           Phase = "LOBBY"
	PhasePlayingQuestion Phase = "PLAYING_QUESTION"
	PhasePlayingResult   Phase = "PLAYING_RESULT"
	PhaseFinalResult     Phase = "FINAL_RESULT"
)

const OptionCount = 4

type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	OptionImages  []string `json:"optionImages,omitempty"`
	QuestionImage string   `json:"questionImage,omitempty"`
	CorrectIndex  int      `json:"correctIndex"`
	Explanation   string   `json:"explanation"`
}

type Player struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Score             int    `json:"score"`
	LastAnswerIndex   *int   `json:"lastAnswerIndex"`
	LastAnswerTime    int64  `json:"lastAnswerTime"`
	TotalResponseTime int64  `json:"totalResponseTime"`
	IsOnline          bool   `json:"isOnline"`
	IsOrganizer       bool   `json:"isOrganizer"`
}

// State is the whole shared host document. It is replicated wholesale to
// every client; mutation goes through Apply on a privileged session.
type State struct {
	Phase                  Phase      `json:"gameState"`
	CurrentQuestionIndex   int        `json:"currentQuestionIndex"`
	Questions              []Question `json:"questions"`
	Players                []Player   `json:"players"`
	RoomCode               string     `json:"roomCode"`
	TimeLimit              int        `json:"timeLimit"`
	QuestionStartTime      *int64     `json:"questionStartTime"`
	IsTimerRunning         bool       `json:"isTimerRunning"`
	RankingRevealStage     int        `json:"rankingRevealStage"`
	IsRankingResultVisible bool       `json:"isRankingResultVisible"`
	HideBelowTop3          bool       `json:"hideBelowTop3"`
	QuizTitle              string     `json:"quizTitle"`
	TitleImage             string     `json:"titleImage,omitempty"`
	IsLobbyDetailsVisible  bool       `json:"isLobbyDetailsVisible"`
	IsRulesVisible         bool       `json:"isRulesVisible"`

	// ScoredQuestionIndex is the watermark of the last question whose reveal
	// already credited scores. Guards against a duplicate reveal event
	// double-counting. -1 before any question has been scored.
	ScoredQuestionIndex int `json:"scoredQuestionIndex"`
}

// Rules are the operator-tunable constants of one room.
type Rules struct {
	ScoreBonus       int // points per correct answer
	DefaultTimeLimit int // seconds
}

func DefaultRules() Rules {
	return Rules{ScoreBonus: 10, DefaultTimeLimit: 20}
}

const DefaultQuizTitle = "クイズ大会"

// NewState returns the bootstrap document a privileged client writes when it
// observes an empty store.
func NewState(roomCode string, rules Rules) State {
	return State{
		Phase:                PhaseSetup,
		CurrentQuestionIndex: 0,
		Questions:            []Question{},
		Players:              []Player{},
		RoomCode:             roomCode,
		TimeLimit:            rules.DefaultTimeLimit,
		QuizTitle:            DefaultQuizTitle,
		ScoredQuestionIndex:  -1,
	}
}

// Clone deep-copies the state so callers can hand it across goroutines.
func (s State) Clone() State {
	out := s
	out.Questions = append([]Question(nil), s.Questions...)
	for i, q := range out.Questions {
		out.Questions[i].Options = append([]string(nil), q.Options...)
		out.Questions[i].OptionImages = append([]string(nil), q.OptionImages...)
	}
	out.Players = ClonePlayers(s.Players)
	if s.QuestionStartTime != nil {
		t := *s.QuestionStartTime
		out.QuestionStartTime = &t
	}
	return out
}

func ClonePlayers(players []Player) []Player {
	out := append([]Player(nil), players...)
	for i, p := range out {
		if p.LastAnswerIndex != nil {
			idx := *p.LastAnswerIndex
			out[i].LastAnswerIndex = &idx
		}
	}
	return out
}

// CurrentQuestion guards against a corrupt or out-of-range index; a crash
// here would take down the shared host display for the whole room.
func (s State) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

func (s State) IsFinalQuestion() bool {
	return len(s.Questions) > 0 && s.CurrentQuestionIndex == len(s.Questions)-1
}

// AnsweredCount reports how many players have answered the current question.
func AnsweredCount(players []Player) int {
	n := 0
	for _, p := range players {
		if p.LastAnswerIndex != nil {
			n++
		}
	}
	return n
}

func IntPtr(v int) *int { return &v }
