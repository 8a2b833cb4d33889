package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// Kind names the logical outbound endpoint for a one-shot request.
type Kind string

// Outbound request kinds.
const (
	KindSessionStart Kind = "session-start"
	KindTeardown     Kind = "teardown"
	KindMessage      Kind = "message"
	KindSyncplayJoin Kind = "syncplay-join"
)

var endpoints = map[Kind]string{
	KindSessionStart: "/mpv_shim_session",
	KindTeardown:     "/mpv_shim_teardown",
	KindMessage:      "/mpv_shim_message",
	KindSyncplayJoin: "/mpv_shim_syncplay_join",
	kindEvent:        "/mpv_shim_event",
}

const kindEvent Kind = "event"

// DefaultBackoff is the fixed delay between poll retries after a failure.
const DefaultBackoff = 5 * time.Second

// Error wraps any transport-level failure: network error, non-2xx status,
// or decode failure.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("shim %s: status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("shim %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures the shim transport.
type Options struct {
	// BaseURL is the player host address, e.g. "http://127.0.0.1:32400".
	BaseURL string
	// Timeout bounds one-shot sends. Defaults to 10s.
	Timeout time.Duration
	// Backoff is the delay between poll retries. Defaults to DefaultBackoff.
	Backoff time.Duration
	Logger  *zap.Logger
}

// Client is the sole network I/O primitive: one-shot outbound sends and
// the long-poll inbound loop.
type Client struct {
	baseURL string
	send    *http.Client
	// The poll client carries no timeout: the event endpoint holds the
	// request open until an envelope is available.
	poll        *http.Client
	backoff     time.Duration
	log         *zap.Logger
	loopStarted atomic.Bool
}

// NewClient creates a shim transport client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("base_url required")
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Backoff == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		send:    &http.Client{Timeout: opts.Timeout},
		poll:    &http.Client{},
		backoff: opts.Backoff,
		log:     opts.Logger,
	}, nil
}

// Send issues one outbound request and returns the decoded response body.
// An empty response body yields a nil result.
func (c *Client) Send(ctx context.Context, kind Kind, payload any) (json.RawMessage, error) {
	data, err := c.post(ctx, c.send, kind, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, &Error{Kind: kind, Err: errors.New("invalid response body")}
	}
	return json.RawMessage(data), nil
}

// PollOnce issues one blocking request to the event endpoint and decodes
// exactly one envelope.
func (c *Client) PollOnce(ctx context.Context) (shim.Envelope, error) {
	data, err := c.post(ctx, c.poll, kindEvent, struct{}{})
	if err != nil {
		return shim.Envelope{}, err
	}
	env, err := shim.DecodeEnvelope(data)
	if err != nil {
		return shim.Envelope{}, &Error{Kind: kindEvent, Err: err}
	}
	return env, nil
}

// StartPollLoop starts the supervisory poll loop. Exactly one loop runs
// per client lifetime; further calls are no-ops and return false. The
// loop re-polls immediately on success, waits the configured backoff on
// failure, and exits only when ctx is cancelled.
func (c *Client) StartPollLoop(ctx context.Context, onEnvelope func(shim.Envelope)) bool {
	if !c.loopStarted.CompareAndSwap(false, true) {
		return false
	}
	go c.pollLoop(ctx, onEnvelope)
	return true
}

func (c *Client) pollLoop(ctx context.Context, onEnvelope func(shim.Envelope)) {
	for {
		env, err := c.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("event poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		// Serialized delivery: the next poll starts only after the
		// envelope has been handled.
		onEnvelope(env)
	}
}

func (c *Client) post(ctx context.Context, client *http.Client, kind Kind, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: kind, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoints[kind], bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: kind, Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: kind, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: kind, Status: resp.StatusCode}
	}
	return data, nil
}
