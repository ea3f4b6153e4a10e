// Package apiclient talks to the check-in API on behalf of one account.
//
// Every call carries browser-like headers and the account's bearer token, goes
// through the account's proxy (if any) and fails with a tagged *Error.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"voyagebot/internal/accounts"
	"voyagebot/internal/pacing"
	logx "voyagebot/pkg/logx"
)

const (
	DefaultBaseURL = "https://onvoyage-backend-954067898723.us-central1.run.app/api/v1"
	DefaultOrigin  = "https://app.onvoyage.ai"

	maxBodyBytes = 1 << 20
)

// Config controls a Client. Zero fields fall back to DefaultConfig values.
type Config struct {
	BaseURL string
	Origin  string
	Timeout time.Duration

	// RatePerSec caps outgoing requests for one account. 0 disables pacing.
	RatePerSec float64

	Retry RetryPolicy

	Camouflage    bool
	CamouflageGap pacing.Range
}

func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Origin:        DefaultOrigin,
		Timeout:       30 * time.Second,
		RatePerSec:    2,
		Retry:         DefaultRetryPolicy(),
		Camouflage:    true,
		CamouflageGap: pacing.Range{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = def.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if strings.TrimSpace(c.Origin) == "" {
		c.Origin = def.Origin
	}
	c.Origin = strings.TrimRight(c.Origin, "/")
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.RatePerSec < 0 {
		c.RatePerSec = 0
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

type Option func(*Client)

// WithSleep replaces the timed wait used between retries and camouflage calls.
func WithSleep(fn pacing.SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithRand sets the random source (user-agent choice, jitter, shuffles).
func WithRand(r *pacing.Rand) Option {
	return func(c *Client) {
		if r != nil {
			c.rng = r
		}
	}
}

// Envelope is the API's response wrapper: {code, message, data}.
type Envelope struct {
	Code    int
	HasCode bool
	Message string
	Data    json.RawMessage
}

// OK reports an explicit success code. A body without "code" is not a success.
func (e *Envelope) OK() bool { return e != nil && e.HasCode && e.Code == 0 }

// Decode unmarshals Data into v. Failures are KindMalformed.
func (e *Envelope) Decode(v any) error {
	if e == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return &Error{Kind: KindMalformed, Err: fmt.Errorf("missing data")}
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return &Error{Kind: KindMalformed, Err: err}
	}
	return nil
}

type wireEnvelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client issues requests for a single account. It is not safe for concurrent use;
// the scheduler never runs two cycles of the same account at once.
type Client struct {
	cfg   Config
	token string
	log   logx.Logger

	http    *http.Client
	route   string
	limiter *rate.Limiter
	rng     *pacing.Rand
	sleep   pacing.SleepFunc
}

func New(cfg Config, cred accounts.Credential, log logx.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	hc, route := newHTTPClient(cred.Proxy, cfg.Timeout, log)
	c := &Client{
		cfg:   cfg,
		token: cred.Token,
		log:   log,
		http:  hc,
		route: route,
		rng:   pacing.NewRandFromTime(),
		sleep: pacing.Sleep,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Route describes how requests leave the process ("direct", "socks5://host:port", ...).
func (c *Client) Route() string { return c.route }

// Do performs one request without retrying.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Envelope, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindNetwork, Err: err}
		}
	}

	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	setBrowserHeaders(req.Header, c.rng, c.token, c.cfg.Origin)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, raw)
	}

	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &Error{Kind: KindMalformed, Status: resp.StatusCode, Err: err}
	}
	env := &Envelope{Message: w.Message, Data: w.Data}
	if w.Code != nil {
		env.Code = *w.Code
		env.HasCode = true
	}
	return env, nil
}

// DoWithRetry retries transient failures with exponential backoff.
// TokenExpired and Malformed fail immediately; exhausting retries returns the last error.
func (c *Client) DoWithRetry(ctx context.Context, method, path string, body any) (*Envelope, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retry.MaxRetries; attempt++ {
		env, err := c.Do(ctx, method, path, body)
		if err == nil {
			return env, nil
		}
		lastErr = err

		kind, ok := KindOf(err)
		if !ok || !kind.Retryable() || ctx.Err() != nil {
			return nil, err
		}
		if attempt == c.cfg.Retry.MaxRetries {
			break
		}

		delay := BackoffDelay(c.cfg.Retry, attempt, c.rng)
		c.log.Debug("request retry scheduled",
			logx.String("path", path),
			logx.String("kind", kind.String()),
			logx.Int("attempt", attempt+2),
			logx.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// ---- Endpoints ----

const (
	PathProfile       = "/user/profile"
	PathPointsBalance = "/points/balance"
	PathCheckinStatus = "/task/checkin/status"
	PathCheckin       = "/task/checkin"
	PathInviteStats   = "/task/invite/stats"
)

func (c *Client) Profile(ctx context.Context) (*Envelope, error) {
	return c.DoWithRetry(ctx, http.MethodGet, PathProfile, nil)
}

func (c *Client) PointsBalance(ctx context.Context) (*Envelope, error) {
	return c.DoWithRetry(ctx, http.MethodGet, PathPointsBalance, nil)
}

func (c *Client) CheckinStatus(ctx context.Context) (*Envelope, error) {
	return c.DoWithRetry(ctx, http.MethodGet, PathCheckinStatus, nil)
}

func (c *Client) Checkin(ctx context.Context) (*Envelope, error) {
	return c.DoWithRetry(ctx, http.MethodPost, PathCheckin, nil)
}
