package domain

// HPMax is the hit-point ceiling for every player.
const HPMax = 100

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionMCQ   QuestionType = "mcq"
	QuestionShort QuestionType = "short"
	QuestionCalc  QuestionType = "calc"
	QuestionCode  QuestionType = "code"
)

// Difficulty is the requested question difficulty for a match.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ConnectionState tracks the transport session lifecycle.
type ConnectionState string

const (
	ConnConnecting ConnectionState = "connecting"
	ConnOpen       ConnectionState = "open"
	ConnClosed     ConnectionState = "closed"
	ConnErrored    ConnectionState = "errored"
)

// Phase is the primary state of the match state machine.
type Phase string

const (
	PhaseAwaitingConnection Phase = "awaiting_connection"
	PhaseAwaitingOpponent   Phase = "awaiting_opponent"
	PhaseReady              Phase = "ready"
	PhaseRoundActive        Phase = "round_active"
	PhaseRoundResolved      Phase = "round_resolved"
	PhaseMatchEnded         Phase = "match_ended"
)

// Citation references the source material backing a question or solution.
type Citation struct {
	FileName string `json:"file_name"`
	Page     int    `json:"page,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Question is the active challenge for a round.
type Question struct {
	ID        string       `json:"question_id"`
	Text      string       `json:"question_text"`
	Type      QuestionType `json:"question_type"`
	Options   []string     `json:"options,omitempty"` // mcq only
	TimeLimit int          `json:"time_limit"`
	Citations []Citation   `json:"citation,omitempty"`
}

// PlayerState mirrors the server's view of one player.
type PlayerState struct {
	Name string `json:"name"`
	HP   int    `json:"hp"`
}

// ClampHP bounds a hit-point value to [0, HPMax].
func ClampHP(hp int) int {
	if hp < 0 {
		return 0
	}
	if hp > HPMax {
		return HPMax
	}
	return hp
}

// RoundResult is the resolution of one round as reported by the server.
type RoundResult struct {
	Winner        string     `json:"winner_player,omitempty"`
	Damage        int        `json:"damage,omitempty"`
	TimeTaken     float64    `json:"time_taken,omitempty"`
	Timeout       bool       `json:"timeout,omitempty"`
	Skipped       bool       `json:"skipped,omitempty"`
	Solution      string     `json:"solution"`
	CorrectAnswer string     `json:"correct_answer"`
	Citations     []Citation `json:"citation,omitempty"`
}

// RoundRecord is one round history entry: the question captured at round
// start, later amended with the resolution.
type RoundRecord struct {
	Question      Question   `json:"question"`
	Resolved      bool       `json:"resolved"`
	Winner        string     `json:"winner,omitempty"`
	Timeout       bool       `json:"timeout,omitempty"`
	Skipped       bool       `json:"skipped,omitempty"`
	Solution      string     `json:"solution,omitempty"`
	CorrectAnswer string     `json:"correct_answer,omitempty"`
	Citations     []Citation `json:"citation,omitempty"`
}

// MatchSnapshot is an immutable view of the match session after a
// transition. Renderers and tests consume snapshots only; they never touch
// session internals.
type MatchSnapshot struct {
	MatchID     string                 `json:"match_id"`
	Player      string                 `json:"player"`
	Phase       Phase                  `json:"phase"`
	Conn        ConnectionState        `json:"connection"`
	Players     map[string]PlayerState `json:"players"`
	Question    *Question              `json:"question,omitempty"`
	SecondsLeft int                    `json:"seconds_left"`
	SkipVotes   []string               `json:"skip_votes,omitempty"`
	Submitting  bool                   `json:"submitting"`
	Cooldown    int                    `json:"cooldown"`
	Notice      string                 `json:"notice,omitempty"`
	ErrMessage  string                 `json:"error,omitempty"`
	Winner      string                 `json:"winner,omitempty"`
	LastResult  *RoundResult           `json:"last_result,omitempty"`
	History     []RoundRecord          `json:"history"`
}

// Course is an indexed study-material collection known to the backend.
type Course struct {
	ID         string   `json:"course_id"`
	Files      []string `json:"files"`
	ChunkCount int      `json:"chunk_count"`
}

// MatchTicket is the handle returned when a match is created.
type MatchTicket struct {
	MatchID            string `json:"match_id"`
	WebsocketURL       string `json:"websocket_url"`
	WaitingForOpponent bool   `json:"waiting_for_opponent"`
}

// UploadReceipt summarizes an accepted material upload.
type UploadReceipt struct {
	CourseID      string   `json:"course_id"`
	Files         []string `json:"files"`
	ChunksIndexed int      `json:"chunks_indexed"`
}
