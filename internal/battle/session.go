// Package battle holds the client-side match state machine. A Session is a
// mirror of authoritative server state: it is mutated only by inbound
// protocol messages and local timer ticks, one atomic transition at a time,
// and exposes immutable snapshots to whatever renders it.
package battle

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"studybattle-client/internal/domain"
	"studybattle-client/internal/protocol"
)

const (
	// defaultCooldownSeconds applies when answer_feedback omits a duration.
	defaultCooldownSeconds = 2
	// noticeTTL is how long transient notices stay visible.
	noticeTTL = 3 * time.Second
)

// Sender delivers outbound commands. Both commands are fire-and-forget; the
// matching feedback/result message is the only acknowledgment.
type Sender interface {
	SendSubmit(questionID, answer string) error
	SendSkip() error
}

// Session is the canonical client-side state for one match.
type Session struct {
	id      string
	matchID string
	player  string
	log     zerolog.Logger
	clock   clockwork.Clock

	mu          sync.Mutex
	sender      Sender
	phase       domain.Phase
	conn        domain.ConnectionState
	players     map[string]domain.PlayerState
	question    *domain.Question
	secondsLeft int
	skipVotes   map[string]struct{}
	submitting  bool
	cooldown    int
	notice      string
	noticeGen   int
	noticeTimer clockwork.Timer
	errMsg      string
	winner      string
	lastResult  *domain.RoundResult
	history     History
	closed      bool

	cooldownStop chan struct{}
	subscribers  map[chan domain.MatchSnapshot]struct{}
}

// NewSession builds a session for one (match id, player name) pair. The
// sender is attached later with SetSender once the transport is dialed.
func NewSession(matchID, player string, clock clockwork.Clock, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		matchID:     matchID,
		player:      player,
		log:         logger.With().Str("session_id", id).Str("match_id", matchID).Str("player", player).Logger(),
		clock:       clock,
		phase:       domain.PhaseAwaitingConnection,
		conn:        domain.ConnConnecting,
		players:     make(map[string]domain.PlayerState),
		skipVotes:   make(map[string]struct{}),
		subscribers: make(map[chan domain.MatchSnapshot]struct{}),
	}
}

// ID returns the session correlation id used in logs and the local archive.
func (s *Session) ID() string { return s.id }

// SetSender attaches the outbound command channel.
func (s *Session) SetSender(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

// Apply performs exactly one state transition for one decoded inbound
// message. Messages must be applied in arrival order; the websocket read
// loop is the single dispatcher.
func (s *Session) Apply(msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch m := msg.(type) {
	case protocol.Connected:
		s.log.Debug().Str("server_player", m.Player).Msg("connection acknowledged")
	case protocol.MatchReady:
		s.applyMatchReady(m)
	case protocol.RoundStart:
		s.applyRoundStart(m)
	case protocol.RoundUpdate:
		s.secondsLeft = m.SecondsLeft
	case protocol.SkipUpdate:
		s.applySkipUpdate(m)
	case protocol.RoundResult:
		s.applyRoundResult(m)
	case protocol.AnswerFeedback:
		s.applyAnswerFeedback(m)
	case protocol.MatchEnd:
		s.applyMatchEnd(m)
	case protocol.ServerError:
		s.setNoticeLocked(m.Message)
	case protocol.Pong:
		// keepalive reply, nothing to track
	case protocol.Unknown:
		s.log.Debug().Str("type", m.Type).Msg("ignoring unrecognized message type")
	default:
		s.log.Debug().Msg("ignoring unexpected message value")
	}

	s.broadcastLocked()
}

func (s *Session) applyMatchReady(m protocol.MatchReady) {
	s.players = rosterFromInfo(m.Players)
	if s.phase == domain.PhaseAwaitingOpponent || s.phase == domain.PhaseAwaitingConnection {
		s.phase = domain.PhaseReady
	}
	s.log.Info().Int("players", len(s.players)).Msg("match ready")
}

func (s *Session) applyRoundStart(m protocol.RoundStart) {
	q := m.Question()
	s.question = &q
	s.secondsLeft = q.TimeLimit
	s.submitting = false
	s.skipVotes = make(map[string]struct{})
	s.lastResult = nil
	s.phase = domain.PhaseRoundActive
	s.history.Append(q)
	s.log.Info().Str("question_id", q.ID).Str("question_type", string(q.Type)).Int("time_limit", q.TimeLimit).Msg("round started")
}

func (s *Session) applySkipUpdate(m protocol.SkipUpdate) {
	// Full replace, never a merge.
	votes := make(map[string]struct{}, len(m.SkippedBy))
	for _, name := range m.SkippedBy {
		votes[name] = struct{}{}
	}
	s.skipVotes = votes
}

func (s *Session) applyRoundResult(m protocol.RoundResult) {
	res := m.Result()
	s.phase = domain.PhaseRoundResolved
	s.question = nil
	s.submitting = false
	s.secondsLeft = 0
	s.lastResult = &res
	if len(m.Players) > 0 {
		s.players = rosterFromInfo(m.Players)
	}
	if !s.history.AmendLast(res) {
		s.log.Warn().Msg("round result with no open round, dropped")
		return
	}
	s.log.Info().Str("winner", res.Winner).Int("damage", res.Damage).Bool("timeout", res.Timeout).Msg("round resolved")
}

func (s *Session) applyAnswerFeedback(m protocol.AnswerFeedback) {
	s.submitting = false
	if m.Correct {
		return
	}
	seconds := defaultCooldownSeconds
	if m.CooldownSeconds != nil {
		seconds = *m.CooldownSeconds
	}
	s.startCooldownLocked(seconds)
	if m.Explanation != "" {
		s.setNoticeLocked(m.Explanation)
	}
	s.log.Info().Int("cooldown_seconds", seconds).Msg("incorrect answer, cooldown started")
}

func (s *Session) applyMatchEnd(m protocol.MatchEnd) {
	s.phase = domain.PhaseMatchEnded
	s.winner = m.Winner
	s.question = nil
	s.submitting = false
	s.secondsLeft = 0
	if len(m.FinalHP) > 0 {
		// Only aggregate hp values arrive here; synthesize the final roster
		// from scratch so no stale entries survive.
		roster := make(map[string]domain.PlayerState, len(m.FinalHP))
		for name, hp := range m.FinalHP {
			roster[name] = domain.PlayerState{Name: name, HP: domain.ClampHP(hp)}
		}
		s.players = roster
	}
	s.stopCooldownLocked()
	s.history.Freeze()
	s.log.Info().Str("winner", m.Winner).Int("rounds", s.history.Len()).Msg("match ended")
}

// ConnectionOpened marks the transport open. A reconnection restarts cleanly:
// match_ready and round_start rebuild whatever round state is current.
func (s *Session) ConnectionOpened() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.conn = domain.ConnOpen
	s.errMsg = ""
	if s.phase != domain.PhaseMatchEnded {
		s.phase = domain.PhaseAwaitingOpponent
	}
	s.log.Info().Msg("connection open")
	s.broadcastLocked()
}

// ConnectionClosed marks the transport closed. A close before match_end is
// surfaced as a lost connection, distinct from the clean end-of-match close.
func (s *Session) ConnectionClosed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.conn = domain.ConnClosed
	if s.phase != domain.PhaseMatchEnded {
		s.errMsg = "connection lost"
		if err != nil {
			s.log.Warn().Err(err).Msg("connection lost")
		} else {
			s.log.Warn().Msg("connection lost")
		}
	} else {
		s.log.Info().Msg("connection closed")
	}
	s.broadcastLocked()
}

// TransportFailure records a connectivity problem without closing anything.
// Recovery is caller-triggered via the transport's Retry.
func (s *Session) TransportFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.conn = domain.ConnErrored
	if err != nil {
		s.errMsg = err.Error()
	}
	s.log.Warn().Err(err).Msg("transport error")
	s.broadcastLocked()
}

// SubmitAnswer sends the current answer payload. It is a guarded no-op
// unless the connection is open, no submission is in flight, and no cooldown
// is active. An empty payload surfaces a local notice and sends nothing.
func (s *Session) SubmitAnswer(answer string) error {
	s.mu.Lock()
	if s.closed || s.phase == domain.PhaseMatchEnded {
		s.mu.Unlock()
		return domain.ErrMatchFinished
	}
	if s.conn != domain.ConnOpen || s.sender == nil {
		s.mu.Unlock()
		return domain.ErrNotConnected
	}
	if s.submitting {
		s.mu.Unlock()
		return domain.ErrSubmitInFlight
	}
	if s.cooldown > 0 {
		s.mu.Unlock()
		return domain.ErrCooldownActive
	}
	if s.question == nil {
		s.mu.Unlock()
		return domain.ErrNoActiveRound
	}
	if strings.TrimSpace(answer) == "" {
		s.setNoticeLocked("answer cannot be empty")
		s.broadcastLocked()
		s.mu.Unlock()
		return domain.ErrEmptyAnswer
	}

	questionID := s.question.ID
	sender := s.sender
	s.submitting = true
	s.broadcastLocked()
	s.mu.Unlock()

	if err := sender.SendSubmit(questionID, answer); err != nil {
		s.mu.Lock()
		s.submitting = false
		s.broadcastLocked()
		s.mu.Unlock()
		return err
	}
	return nil
}

// SkipRound votes to skip the current round. Voting twice is a no-op; the
// server's skip_update is the authoritative vote set.
func (s *Session) SkipRound() error {
	s.mu.Lock()
	if s.closed || s.phase == domain.PhaseMatchEnded {
		s.mu.Unlock()
		return domain.ErrMatchFinished
	}
	if s.conn != domain.ConnOpen || s.sender == nil {
		s.mu.Unlock()
		return domain.ErrNotConnected
	}
	if s.question == nil {
		s.mu.Unlock()
		return domain.ErrNoActiveRound
	}
	if _, voted := s.skipVotes[s.player]; voted {
		s.mu.Unlock()
		return nil
	}
	s.skipVotes[s.player] = struct{}{}
	sender := s.sender
	s.broadcastLocked()
	s.mu.Unlock()

	return sender.SendSkip()
}

// startCooldownLocked begins the local one-second cooldown clock. The ticker
// starts only on the zero to non-zero transition and stops the instant the
// counter reaches zero.
func (s *Session) startCooldownLocked(seconds int) {
	if seconds <= 0 {
		return
	}
	if s.cooldown > 0 {
		// Clock already ticking; adopt the newer duration.
		s.cooldown = seconds
		return
	}
	s.cooldown = seconds
	stop := make(chan struct{})
	s.cooldownStop = stop
	ticker := s.clock.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if s.tickCooldown(stop) {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

// tickCooldown decrements the counter by one; reports whether the ticker
// goroutine should exit.
func (s *Session) tickCooldown(stop chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cooldownStop != stop {
		return true
	}
	if s.cooldown > 0 {
		s.cooldown--
		s.broadcastLocked()
	}
	if s.cooldown == 0 {
		s.cooldownStop = nil
		return true
	}
	return false
}

func (s *Session) stopCooldownLocked() {
	if s.cooldownStop != nil {
		close(s.cooldownStop)
		s.cooldownStop = nil
	}
	s.cooldown = 0
}

// setNoticeLocked shows a transient notice that self-clears after a fixed
// interval. The generation counter keeps a stale timer from clearing a newer
// notice.
func (s *Session) setNoticeLocked(text string) {
	if text == "" {
		return
	}
	s.notice = text
	s.noticeGen++
	gen := s.noticeGen
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
	}
	s.noticeTimer = s.clock.AfterFunc(noticeTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.noticeGen != gen {
			return
		}
		s.notice = ""
		s.broadcastLocked()
	})
}

// Snapshot returns an immutable copy of the current state.
func (s *Session) Snapshot() domain.MatchSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.MatchSnapshot {
	players := make(map[string]domain.PlayerState, len(s.players))
	for name, p := range s.players {
		players[name] = p
	}
	votes := make([]string, 0, len(s.skipVotes))
	for name := range s.skipVotes {
		votes = append(votes, name)
	}
	sort.Strings(votes)

	var question *domain.Question
	if s.question != nil {
		q := *s.question
		q.Options = append([]string(nil), s.question.Options...)
		q.Citations = append([]domain.Citation(nil), s.question.Citations...)
		question = &q
	}
	var lastResult *domain.RoundResult
	if s.lastResult != nil {
		res := *s.lastResult
		lastResult = &res
	}

	return domain.MatchSnapshot{
		MatchID:     s.matchID,
		Player:      s.player,
		Phase:       s.phase,
		Conn:        s.conn,
		Players:     players,
		Question:    question,
		SecondsLeft: s.secondsLeft,
		SkipVotes:   votes,
		Submitting:  s.submitting,
		Cooldown:    s.cooldown,
		Notice:      s.notice,
		ErrMessage:  s.errMsg,
		Winner:      s.winner,
		LastResult:  lastResult,
		History:     s.history.Snapshot(),
	}
}

// Subscribe returns a channel that receives a snapshot after every
// transition. Slow consumers only ever lose intermediate snapshots, never
// the latest one. The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.MatchSnapshot, func()) {
	ch := make(chan domain.MatchSnapshot, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest pending snapshot so the latest always lands.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// Close tears the session down: every pending timer is cancelled and all
// subscriber channels are closed. The transport is released separately by
// its own Close.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopCooldownLocked()
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
		s.noticeTimer = nil
	}
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan domain.MatchSnapshot]struct{})
	s.log.Info().Msg("session closed")
}

func rosterFromInfo(players map[string]protocol.PlayerInfo) map[string]domain.PlayerState {
	roster := make(map[string]domain.PlayerState, len(players))
	for name, info := range players {
		roster[name] = domain.PlayerState{Name: name, HP: domain.ClampHP(info.HP)}
	}
	return roster
}
