// Package protocol defines the JSON wire format spoken over the match
// websocket: `{type, data}` envelopes, typed inbound payloads, and the
// outbound command frames.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"studybattle-client/internal/domain"
)

// Envelope is the raw wire frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrMalformedFrame wraps any frame that cannot be decoded. Callers drop the
// frame and keep reading; a bad frame never stops the stream.
var ErrMalformedFrame = errors.New("malformed protocol frame")

// Inbound message types.
const (
	TypeConnected      = "connected"
	TypeMatchReady     = "match_ready"
	TypeRoundStart     = "round_start"
	TypeRoundUpdate    = "round_update"
	TypeSkipUpdate     = "skip_update"
	TypeRoundResult    = "round_result"
	TypeAnswerFeedback = "answer_feedback"
	TypeMatchEnd       = "match_end"
	TypeError          = "error"
	TypePong           = "pong"
)

// Outbound message types.
const (
	TypeSubmitAnswer = "submit_answer"
	TypeSkipRound    = "skip_round"
	TypePing         = "ping"
)

// PlayerInfo is the per-player payload fragment used by roster-bearing messages.
type PlayerInfo struct {
	HP int `json:"hp"`
}

// Connected is informational; the server confirms the socket is registered.
type Connected struct {
	Player  string   `json:"player"`
	MatchID string   `json:"match_id,omitempty"`
	Players []string `json:"players,omitempty"`
}

// MatchReady announces both players are present and carries the initial roster.
type MatchReady struct {
	Players map[string]PlayerInfo `json:"players"`
}

// RoundStart opens a round with a fresh question.
type RoundStart struct {
	QuestionID   string            `json:"question_id"`
	QuestionText string            `json:"question_text"`
	QuestionType string            `json:"question_type"`
	Options      []string          `json:"options,omitempty"`
	TimeLimit    int               `json:"time_limit"`
	Citations    []domain.Citation `json:"citation,omitempty"`
}

// RoundUpdate carries the authoritative remaining time for the round.
type RoundUpdate struct {
	SecondsLeft int `json:"seconds_left"`
}

// SkipUpdate replaces the current skip-vote set.
type SkipUpdate struct {
	SkippedBy []string `json:"skipped_by"`
}

// RoundResult resolves the active round.
type RoundResult struct {
	WinnerPlayer  string                `json:"winner_player,omitempty"`
	LoserPlayer   string                `json:"loser_player,omitempty"`
	Damage        int                   `json:"damage,omitempty"`
	TimeTaken     float64               `json:"time_taken,omitempty"`
	Timeout       bool                  `json:"timeout,omitempty"`
	Skipped       bool                  `json:"skipped,omitempty"`
	Solution      string                `json:"solution"`
	CorrectAnswer string                `json:"correct_answer"`
	Citations     []domain.Citation     `json:"citation,omitempty"`
	Players       map[string]PlayerInfo `json:"players,omitempty"`
}

// AnswerFeedback is the private verdict on this player's submission.
// CooldownSeconds is a pointer so an omitted value can fall back to the
// protocol default.
type AnswerFeedback struct {
	Correct         bool   `json:"correct"`
	CooldownSeconds *int   `json:"cooldown_seconds,omitempty"`
	Explanation     string `json:"explanation,omitempty"`
}

// MatchEnd terminates the match. FinalHP maps player name to remaining hp.
type MatchEnd struct {
	Winner  string         `json:"winner"`
	FinalHP map[string]int `json:"final_hp,omitempty"`
}

// ServerError is a non-fatal notice reported by the server.
type ServerError struct {
	Message string `json:"message"`
}

// Pong answers a keepalive ping.
type Pong struct{}

// Unknown is any message type this client does not recognize. It is ignored
// and logged upstream, never treated as an error.
type Unknown struct {
	Type string
}

// Decode parses a raw frame into one of the typed inbound messages.
func Decode(frame []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch env.Type {
	case TypeConnected:
		return decodePayload[Connected](env)
	case TypeMatchReady:
		return decodePayload[MatchReady](env)
	case TypeRoundStart:
		return decodePayload[RoundStart](env)
	case TypeRoundUpdate:
		return decodePayload[RoundUpdate](env)
	case TypeSkipUpdate:
		return decodePayload[SkipUpdate](env)
	case TypeRoundResult:
		return decodePayload[RoundResult](env)
	case TypeAnswerFeedback:
		return decodePayload[AnswerFeedback](env)
	case TypeMatchEnd:
		return decodePayload[MatchEnd](env)
	case TypeError:
		return decodePayload[ServerError](env)
	case TypePong:
		return Pong{}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

func decodePayload[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, env.Type, err)
	}
	return payload, nil
}

// Question converts a round_start payload into the domain question.
func (r RoundStart) Question() domain.Question {
	return domain.Question{
		ID:        r.QuestionID,
		Text:      r.QuestionText,
		Type:      domain.QuestionType(r.QuestionType),
		Options:   r.Options,
		TimeLimit: r.TimeLimit,
		Citations: r.Citations,
	}
}

// Result converts a round_result payload into the domain result.
func (r RoundResult) Result() domain.RoundResult {
	return domain.RoundResult{
		Winner:        r.WinnerPlayer,
		Damage:        r.Damage,
		TimeTaken:     r.TimeTaken,
		Timeout:       r.Timeout,
		Skipped:       r.Skipped,
		Solution:      r.Solution,
		CorrectAnswer: r.CorrectAnswer,
		Citations:     r.Citations,
	}
}

type outboundEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type submitAnswerData struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// EncodeSubmitAnswer builds a submit_answer frame.
func EncodeSubmitAnswer(questionID, answer string) ([]byte, error) {
	return json.Marshal(outboundEnvelope{
		Type: TypeSubmitAnswer,
		Data: submitAnswerData{QuestionID: questionID, Answer: answer},
	})
}

// EncodeSkipRound builds a skip_round frame. The command carries no payload.
func EncodeSkipRound() ([]byte, error) {
	return json.Marshal(outboundEnvelope{Type: TypeSkipRound})
}

// EncodePing builds a keepalive frame.
func EncodePing() ([]byte, error) {
	return json.Marshal(outboundEnvelope{Type: TypePing})
}
