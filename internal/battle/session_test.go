package battle_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"studybattle-client/internal/battle"
	"studybattle-client/internal/domain"
	"studybattle-client/internal/protocol"
)

type fakeSender struct {
	mu      sync.Mutex
	submits []string
	skips   int
	err     error
}

func (f *fakeSender) SendSubmit(questionID, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submits = append(f.submits, questionID+"="+answer)
	return nil
}

func (f *fakeSender) SendSkip() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.skips++
	return nil
}

func (f *fakeSender) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeSender) skipCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.skips
}

func newTestSession(t *testing.T) (*battle.Session, *fakeSender, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	session := battle.NewSession("m1", "Alice", clock, zerolog.Nop())
	t.Cleanup(session.Close)
	sender := &fakeSender{}
	session.SetSender(sender)
	return session, sender, clock
}

func openWithRound(t *testing.T, s *battle.Session, timeLimit int) {
	t.Helper()
	s.ConnectionOpened()
	s.Apply(protocol.MatchReady{Players: map[string]protocol.PlayerInfo{
		"Alice": {HP: 100}, "Bob": {HP: 100},
	}})
	s.Apply(protocol.RoundStart{
		QuestionID:   "q1",
		QuestionText: "What is entropy?",
		QuestionType: "short",
		TimeLimit:    timeLimit,
		Citations:    []domain.Citation{{FileName: "thermo.pdf", Page: 12}},
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestRoundResultAmendsHistory(t *testing.T) {
	session, _, _ := newTestSession(t)
	openWithRound(t, session, 30)

	session.Apply(protocol.RoundResult{
		WinnerPlayer:  "Bob",
		Damage:        25,
		Solution:      "ln W times k",
		CorrectAnswer: "a measure of disorder",
		Citations:     []domain.Citation{{FileName: "thermo.pdf", Page: 13}},
		Players:       map[string]protocol.PlayerInfo{"Alice": {HP: 75}, "Bob": {HP: 100}},
	})

	snap := session.Snapshot()
	if snap.Phase != domain.PhaseRoundResolved {
		t.Fatalf("expected round_resolved, got %s", snap.Phase)
	}
	if snap.Question != nil {
		t.Fatalf("expected active question cleared after result")
	}
	if got := snap.Players["Alice"].HP; got != 75 {
		t.Fatalf("expected roster replaced with hp 75, got %d", got)
	}
	if len(snap.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(snap.History))
	}
	rec := snap.History[0]
	if !rec.Resolved || rec.Solution == "" || rec.CorrectAnswer == "" {
		t.Fatalf("expected resolved record with solution, got %+v", rec)
	}
	if rec.Question.Text != "What is entropy?" {
		t.Fatalf("expected original question text retained, got %q", rec.Question.Text)
	}
}

func TestOrphanRoundResultIsNoOp(t *testing.T) {
	session, _, _ := newTestSession(t)
	session.ConnectionOpened()

	session.Apply(protocol.RoundResult{Solution: "x", CorrectAnswer: "y"})

	if got := len(session.Snapshot().History); got != 0 {
		t.Fatalf("expected history unchanged, got %d entries", got)
	}
}

func TestRoundUpdateLastValueWins(t *testing.T) {
	session, _, _ := newTestSession(t)
	openWithRound(t, session, 30)

	session.Apply(protocol.RoundUpdate{SecondsLeft: 25})
	session.Apply(protocol.RoundUpdate{SecondsLeft: 10})

	if got := session.Snapshot().SecondsLeft; got != 10 {
		t.Fatalf("expected displayed time 10, got %d", got)
	}
}

func TestSkipUpdateReplacesVoteSet(t *testing.T) {
	session, _, _ := newTestSession(t)
	openWithRound(t, session, 30)

	session.Apply(protocol.SkipUpdate{SkippedBy: []string{"Alice", "Bob"}})
	if got := len(session.Snapshot().SkipVotes); got != 2 {
		t.Fatalf("expected 2 votes, got %d", got)
	}

	session.Apply(protocol.SkipUpdate{SkippedBy: []string{}})
	if got := len(session.Snapshot().SkipVotes); got != 0 {
		t.Fatalf("expected empty vote set after replace, got %d", got)
	}
}

func TestMatchEndSynthesizesRoster(t *testing.T) {
	session, _, _ := newTestSession(t)
	openWithRound(t, session, 30)

	session.Apply(protocol.MatchEnd{
		Winner:  "Bob",
		FinalHP: map[string]int{"Bob": 55, "Charlie": -3},
	})

	snap := session.Snapshot()
	if snap.Phase != domain.PhaseMatchEnded || snap.Winner != "Bob" {
		t.Fatalf("expected ended match won by Bob, got %+v", snap)
	}
	if len(snap.Players) != 2 {
		t.Fatalf("expected exactly one entry per final_hp key, got %d", len(snap.Players))
	}
	if _, stale := snap.Players["Alice"]; stale {
		t.Fatalf("expected stale roster entry dropped")
	}
	if got := snap.Players["Charlie"].HP; got != 0 {
		t.Fatalf("expected hp clamped to 0, got %d", got)
	}
}

func TestHistoryFrozenAfterMatchEnd(t *testing.T) {
	session, _, _ := newTestSession(t)
	openWithRound(t, session, 30)
	session.Apply(protocol.MatchEnd{Winner: "Alice"})

	session.Apply(protocol.RoundStart{QuestionID: "q2", QuestionText: "late", TimeLimit: 30})

	if got := len(session.Snapshot().History); got != 1 {
		t.Fatalf("expected history frozen at 1 entry, got %d", got)
	}
}

func TestSubmitGuards(t *testing.T) {
	session, sender, _ := newTestSession(t)

	if err := session.SubmitAnswer("42"); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected not-connected error, got %v", err)
	}

	session.ConnectionOpened()
	if err := session.SubmitAnswer("42"); !errors.Is(err, domain.ErrNoActiveRound) {
		t.Fatalf("expected no-active-round error, got %v", err)
	}

	openWithRound(t, session, 30)
	if err := session.SubmitAnswer("   "); !errors.Is(err, domain.ErrEmptyAnswer) {
		t.Fatalf("expected empty-answer error, got %v", err)
	}
	if sender.submitCount() != 0 {
		t.Fatalf("empty answer must not reach the server")
	}
	if session.Snapshot().Notice == "" {
		t.Fatalf("expected local validation notice")
	}

	if err := session.SubmitAnswer("42"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !session.Snapshot().Submitting {
		t.Fatalf("expected submitting flag set")
	}
	if err := session.SubmitAnswer("43"); !errors.Is(err, domain.ErrSubmitInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}
	if sender.submitCount() != 1 {
		t.Fatalf("expected exactly 1 outbound submit, got %d", sender.submitCount())
	}

	session.Apply(protocol.AnswerFeedback{Correct: true})
	if session.Snapshot().Submitting {
		t.Fatalf("expected submitting cleared by feedback")
	}
}

func TestSubmitSendFailureClearsFlag(t *testing.T) {
	session, sender, _ := newTestSession(t)
	openWithRound(t, session, 30)

	sender.err = errors.New("broken pipe")
	if err := session.SubmitAnswer("42"); err == nil {
		t.Fatalf("expected send error")
	}
	if session.Snapshot().Submitting {
		t.Fatalf("expected submitting cleared after failed send")
	}
}

func TestCooldownSequence(t *testing.T) {
	session, _, clock := newTestSession(t)
	openWithRound(t, session, 30)

	three := 3
	session.Apply(protocol.AnswerFeedback{Correct: false, CooldownSeconds: &three})

	if got := session.Snapshot().Cooldown; got != 3 {
		t.Fatalf("expected cooldown 3, got %d", got)
	}
	if err := session.SubmitAnswer("42"); !errors.Is(err, domain.ErrCooldownActive) {
		t.Fatalf("expected cooldown error, got %v", err)
	}

	for _, want := range []int{2, 1, 0} {
		clock.Advance(time.Second)
		want := want
		waitFor(t, func() bool { return session.Snapshot().Cooldown == want })
	}

	// Submission is allowed again the moment the counter hits zero.
	if err := session.SubmitAnswer("42"); err != nil {
		t.Fatalf("expected submit allowed after cooldown, got %v", err)
	}
}

func TestCooldownDefaultsWhenOmitted(t *testing.T) {
	session, _, _ := newTestSession(t)
	openWithRound(t, session, 30)

	session.Apply(protocol.AnswerFeedback{Correct: false})

	if got := session.Snapshot().Cooldown; got != 2 {
		t.Fatalf("expected default cooldown 2, got %d", got)
	}
}

func TestFeedbackNoticeSelfClears(t *testing.T) {
	session, _, clock := newTestSession(t)
	openWithRound(t, session, 30)

	session.Apply(protocol.AnswerFeedback{Correct: false, Explanation: "close, but check the units"})
	if session.Snapshot().Notice == "" {
		t.Fatalf("expected explanation notice")
	}

	clock.Advance(3 * time.Second)
	waitFor(t, func() bool { return session.Snapshot().Notice == "" })
}

func TestServerErrorIsTransientNotice(t *testing.T) {
	session, _, clock := newTestSession(t)
	session.ConnectionOpened()

	session.Apply(protocol.ServerError{Message: "Failed to generate question"})

	snap := session.Snapshot()
	if snap.Notice != "Failed to generate question" {
		t.Fatalf("expected server notice, got %q", snap.Notice)
	}
	if snap.Phase != domain.PhaseAwaitingOpponent {
		t.Fatalf("expected structural state untouched, got %s", snap.Phase)
	}

	clock.Advance(3 * time.Second)
	waitFor(t, func() bool { return session.Snapshot().Notice == "" })
}

func TestSkipVotesOnlyOnce(t *testing.T) {
	session, sender, _ := newTestSession(t)
	openWithRound(t, session, 30)

	if err := session.SkipRound(); err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	if err := session.SkipRound(); err != nil {
		t.Fatalf("repeat skip should be a quiet no-op, got %v", err)
	}
	if sender.skipCount() != 1 {
		t.Fatalf("expected exactly 1 skip vote sent, got %d", sender.skipCount())
	}

	// The server's skip_update owns the set; after a replace that drops the
	// local vote, voting again is allowed.
	session.Apply(protocol.SkipUpdate{SkippedBy: []string{}})
	if err := session.SkipRound(); err != nil {
		t.Fatalf("skip after replace failed: %v", err)
	}
	if sender.skipCount() != 2 {
		t.Fatalf("expected second vote after replace, got %d", sender.skipCount())
	}
}

func TestConnectionLostVersusCleanClose(t *testing.T) {
	session, _, _ := newTestSession(t)
	openWithRound(t, session, 30)

	session.ConnectionClosed(errors.New("read: reset"))
	snap := session.Snapshot()
	if snap.Conn != domain.ConnClosed || snap.ErrMessage != "connection lost" {
		t.Fatalf("expected lost connection surfaced, got %+v", snap)
	}

	// Reconnect, finish the match, and close cleanly.
	session.ConnectionOpened()
	if got := session.Snapshot().ErrMessage; got != "" {
		t.Fatalf("expected error cleared on reopen, got %q", got)
	}
	session.Apply(protocol.MatchEnd{Winner: "Alice"})
	session.ConnectionClosed(nil)
	if got := session.Snapshot().ErrMessage; got != "" {
		t.Fatalf("expected clean close after match end, got %q", got)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	session, _, _ := newTestSession(t)
	ch, cancel := session.Subscribe()
	defer cancel()

	<-ch // initial snapshot

	openWithRound(t, session, 30)

	var snap domain.MatchSnapshot
	waitFor(t, func() bool {
		for {
			select {
			case s := <-ch:
				snap = s
			default:
				return snap.Phase == domain.PhaseRoundActive
			}
		}
	})
	if snap.Question == nil || snap.Question.ID != "q1" {
		t.Fatalf("expected snapshot with active question, got %+v", snap.Question)
	}
}

func TestCloseCancelsTimers(t *testing.T) {
	session, _, clock := newTestSession(t)
	openWithRound(t, session, 30)

	three := 3
	session.Apply(protocol.AnswerFeedback{Correct: false, CooldownSeconds: &three, Explanation: "nope"})

	ch, cancel := session.Subscribe()
	defer cancel()
	session.Close()

	if _, ok := <-ch; ok {
		// drain until closed
		for range ch {
		}
	}

	// Ticks after teardown must not fire or panic.
	clock.Advance(10 * time.Second)
	if got := session.Snapshot().Cooldown; got != 0 {
		t.Fatalf("expected cooldown cancelled on close, got %d", got)
	}
}
