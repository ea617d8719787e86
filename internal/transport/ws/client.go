// Package ws owns the persistent match connection. It dials the backend's
// websocket endpoint, feeds decoded frames to the state machine in strict
// arrival order, and serializes outbound command writes.
package ws

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"studybattle-client/internal/domain"
	"studybattle-client/internal/protocol"
)

// Receiver is the single-threaded consumer of connection events. The read
// loop is the only goroutine calling Apply, which guarantees in-order
// processing of inbound messages.
type Receiver interface {
	Apply(msg any)
	ConnectionOpened()
	ConnectionClosed(err error)
	TransportFailure(err error)
}

// Client manages exactly one websocket connection per (match id, player
// name) pair. There is no automatic reconnect; recovery is always the
// caller's Retry.
type Client struct {
	wsURL     string
	matchID   string
	player    string
	recv      Receiver
	log       zerolog.Logger
	clock     clockwork.Clock
	pingEvery time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	done       chan struct{}
	readerDone chan struct{}
	closing    bool
	badFrames  int
}

// Option tweaks client construction.
type Option func(*Client)

// WithPingInterval enables a keepalive ping frame at the given interval.
// Zero disables keepalives.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingEvery = d }
}

// WithClock swaps the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// Dial opens the match connection. baseURL is the backend's HTTP base
// (http:// or https://); the scheme is rewritten for the websocket endpoint.
func Dial(ctx context.Context, baseURL, matchID, player string, recv Receiver, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if matchID == "" || player == "" {
		return nil, fmt.Errorf("dial: match id and player name are required")
	}
	wsURL, err := matchEndpoint(baseURL, matchID, player)
	if err != nil {
		return nil, err
	}

	c := &Client{
		wsURL:   wsURL,
		matchID: matchID,
		player:  player,
		recv:    recv,
		log:     logger.With().Str("match_id", matchID).Str("player", player).Logger(),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func matchEndpoint(baseURL, matchID, player string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws/" + matchID
	u.RawQuery = url.Values{"player": {player}}.Encode()
	return u.String(), nil
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	done := make(chan struct{})
	readerDone := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.readerDone = readerDone
	c.closing = false
	c.mu.Unlock()

	c.recv.ConnectionOpened()
	go c.readLoop(conn, done, readerDone)
	if c.pingEvery > 0 {
		go c.pingLoop(done)
	}
	c.log.Info().Str("url", c.wsURL).Msg("websocket connected")
	return nil
}

// readLoop is the single dispatcher: every inbound frame is decoded and
// applied before the next one is read. A frame that fails to decode is
// dropped and logged; it never interrupts the stream.
func (c *Client) readLoop(conn *websocket.Conn, done, readerDone chan struct{}) {
	defer close(readerDone)
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.closeDone(done)
			if closing {
				c.recv.ConnectionClosed(nil)
			} else {
				c.recv.ConnectionClosed(err)
			}
			return
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			c.mu.Lock()
			c.badFrames++
			c.mu.Unlock()
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.recv.Apply(msg)
	}
}

func (c *Client) pingLoop(done chan struct{}) {
	ticker := c.clock.NewTicker(c.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			frame, err := protocol.EncodePing()
			if err != nil {
				continue
			}
			if err := c.write(frame); err != nil {
				c.log.Debug().Err(err).Msg("keepalive write failed")
			}
		case <-done:
			return
		}
	}
}

// SendSubmit encodes and sends a submit_answer command, fire-and-forget.
func (c *Client) SendSubmit(questionID, answer string) error {
	frame, err := protocol.EncodeSubmitAnswer(questionID, answer)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// SendSkip encodes and sends a skip_round command, fire-and-forget.
func (c *Client) SendSkip() error {
	frame, err := protocol.EncodeSkipRound()
	if err != nil {
		return err
	}
	return c.write(frame)
}

// write serializes all writers onto the single connection. A failed write is
// reported as a transport problem without closing the session.
func (c *Client) write(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return domain.ErrNotConnected
	}
	err := conn.WriteMessage(websocket.TextMessage, frame)
	c.mu.Unlock()
	if err != nil {
		c.recv.TransportFailure(err)
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Retry closes any live connection and dials again. It is idempotent and
// only ever caller-triggered; there is no backoff loop behind it.
func (c *Client) Retry(ctx context.Context) error {
	c.teardownConn()
	return c.connect(ctx)
}

// BadFrames reports how many malformed frames were dropped, for diagnostics.
func (c *Client) BadFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.badFrames
}

// Close releases the transport. Safe to call more than once.
func (c *Client) Close() error {
	c.teardownConn()
	return nil
}

// teardownConn closes the live connection and waits for its read loop to
// report the close, so a following redial never races a stale close event.
func (c *Client) teardownConn() {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	readerDone := c.readerDone
	c.conn = nil
	c.closing = true
	c.mu.Unlock()

	if conn != nil {
		deadline := c.clock.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	c.closeDone(done)
	if readerDone != nil {
		<-readerDone
	}
}

// closeDone closes the per-connection done channel exactly once, even when
// the read loop and an explicit teardown race.
func (c *Client) closeDone(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if done != nil && c.done == done {
		close(done)
		c.done = nil
	}
}
