package domain

import "errors"

var (
	// ErrNotConnected is returned when a command is issued without an open connection.
	ErrNotConnected = errors.New("not connected to match")
	// ErrSubmitInFlight is returned while a previous answer is still awaiting feedback.
	ErrSubmitInFlight = errors.New("answer submission already in flight")
	// ErrCooldownActive is returned while the wrong-answer cooldown is ticking.
	ErrCooldownActive = errors.New("submission cooldown active")
	// ErrEmptyAnswer is returned when the answer payload is empty.
	ErrEmptyAnswer = errors.New("answer payload is empty")
	// ErrNoActiveRound is returned when no question is currently in play.
	ErrNoActiveRound = errors.New("no active round")
	// ErrMatchFinished is returned for commands issued after match end.
	ErrMatchFinished = errors.New("match already finished")
	// ErrCourseNotFound indicates the backend does not know the course id.
	ErrCourseNotFound = errors.New("course not found")
	// ErrMatchNotFound indicates the backend does not know the match id.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchFull indicates the match already has two players.
	ErrMatchFull = errors.New("match is full")
	// ErrNameTaken indicates the player name is already used in the match.
	ErrNameTaken = errors.New("player name already taken")
)
