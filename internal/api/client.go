// Package api is a thin client for the backend's one-shot REST endpoints:
// course listing, material upload, and match lifecycle. All identifiers are
// opaque strings; the client checks nothing beyond non-emptiness.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"studybattle-client/internal/domain"
)

// Client talks to the study-battle REST API.
type Client struct {
	base      string
	http      *http.Client
	log       zerolog.Logger
	clock     clockwork.Clock
	courseTTL time.Duration

	sf         singleflight.Group
	cacheMu    sync.RWMutex
	courses    []domain.Course
	coursesExp time.Time
}

// Option tweaks client construction.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock swaps the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithCourseTTL sets how long the course catalog is cached.
func WithCourseTTL(ttl time.Duration) Option {
	return func(c *Client) { c.courseTTL = ttl }
}

// New builds a client for the given backend base URL.
func New(baseURL string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		base:      strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		log:       logger,
		clock:     clockwork.NewRealClock(),
		courseTTL: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Courses lists the indexed courses. Results are cached with a TTL and
// concurrent fetches are collapsed into one request.
func (c *Client) Courses(ctx context.Context) ([]domain.Course, error) {
	now := c.clock.Now()

	c.cacheMu.RLock()
	if c.courses != nil && c.coursesExp.After(now) {
		cached := append([]domain.Course(nil), c.courses...)
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	result, err, _ := c.sf.Do("courses", func() (interface{}, error) {
		var payload struct {
			Courses []domain.Course `json:"courses"`
		}
		if err := c.getJSON(ctx, "/api/courses", &payload); err != nil {
			return nil, err
		}

		if payload.Courses == nil {
			payload.Courses = []domain.Course{}
		}
		c.cacheMu.Lock()
		c.courses = payload.Courses
		c.coursesExp = c.clock.Now().Add(c.courseTTL)
		c.cacheMu.Unlock()
		return payload.Courses, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Course(nil), result.([]domain.Course)...), nil
}

// Upload posts study material files and returns the opaque course id the
// backend assigned to them.
func (c *Client) Upload(ctx context.Context, paths []string) (domain.UploadReceipt, error) {
	if len(paths) == 0 {
		return domain.UploadReceipt{}, fmt.Errorf("upload: no files given")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return domain.UploadReceipt{}, fmt.Errorf("upload: %w", err)
		}
		part, err := writer.CreateFormFile("files", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return domain.UploadReceipt{}, fmt.Errorf("upload %s: %w", path, err)
		}
	}
	if err := writer.Close(); err != nil {
		return domain.UploadReceipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/upload", &body)
	if err != nil {
		return domain.UploadReceipt{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var receipt domain.UploadReceipt
	if err := c.do(req, &receipt); err != nil {
		return domain.UploadReceipt{}, err
	}
	c.log.Info().Str("course_id", receipt.CourseID).Int("chunks", receipt.ChunksIndexed).Msg("material uploaded")
	return receipt, nil
}

// CreateMatchRequest carries the match parameters.
type CreateMatchRequest struct {
	CourseID         string                `json:"course_id"`
	PlayerName       string                `json:"player_name"`
	TimeLimitSeconds int                   `json:"time_limit_seconds,omitempty"`
	QuestionTypes    []domain.QuestionType `json:"question_types,omitempty"`
	Difficulty       domain.Difficulty     `json:"difficulty,omitempty"`
}

// CreateMatch creates a new match and registers the creating player.
func (c *Client) CreateMatch(ctx context.Context, req CreateMatchRequest) (domain.MatchTicket, error) {
	if req.CourseID == "" || req.PlayerName == "" {
		return domain.MatchTicket{}, fmt.Errorf("create match: course id and player name are required")
	}
	var ticket domain.MatchTicket
	if err := c.postJSON(ctx, "/api/create-match", req, &ticket); err != nil {
		return domain.MatchTicket{}, err
	}
	c.log.Info().Str("match_id", ticket.MatchID).Msg("match created")
	return ticket, nil
}

// JoinMatch registers a second player in an existing match.
func (c *Client) JoinMatch(ctx context.Context, matchID, player string) error {
	if matchID == "" || player == "" {
		return fmt.Errorf("join match: match id and player name are required")
	}
	body := map[string]string{"match_id": matchID, "player_name": player}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.postJSON(ctx, "/api/join-match", body, &resp); err != nil {
		return err
	}
	c.log.Info().Str("match_id", matchID).Msg("joined match")
	return nil
}

// MatchInfo fetches the current server-side view of a match.
func (c *Client) MatchInfo(ctx context.Context, matchID string) (map[string]any, error) {
	if matchID == "" {
		return nil, fmt.Errorf("match info: match id is required")
	}
	var info map[string]any
	if err := c.getJSON(ctx, "/api/match/"+matchID, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// Health pings the backend.
func (c *Client) Health(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	return c.getJSON(ctx, "/api/health", &status)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(req, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// apiError maps the backend's `{"detail": ...}` error payloads onto domain
// sentinels where one exists.
func apiError(req *http.Request, resp *http.Response) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	switch payload.Detail {
	case "Course not found":
		return domain.ErrCourseNotFound
	case "Match not found":
		return domain.ErrMatchNotFound
	case "Match is full":
		return domain.ErrMatchFull
	case "Player name already taken":
		return domain.ErrNameTaken
	}
	if payload.Detail != "" {
		return fmt.Errorf("%s %s: %s (status %d)", req.Method, req.URL.Path, payload.Detail, resp.StatusCode)
	}
	return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
}
