// Package ttlock is a small client for the TTLock open platform: token
// management, remote unlock, credential listings and lock records.
package ttlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrVendor wraps every error the vendor reports through errcode.
	ErrVendor = errors.New("ttlock api error")
	// ErrNotConfigured is returned when no client id is set.
	ErrNotConfigured = errors.New("ttlock client not configured")
)

// APIError is a non-zero errcode from the vendor.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("ttlock errcode %d: %s", e.Code, e.Message) }
func (e *APIError) Unwrap() error { return ErrVendor }

type apiStatus struct {
	ErrCode *int   `json:"errcode,omitempty"`
	ErrMsg  string `json:"errmsg,omitempty"`
}

func (s apiStatus) err() error {
	if s.ErrCode == nil || *s.ErrCode == 0 {
		return nil
	}
	return &APIError{Code: *s.ErrCode, Message: s.ErrMsg}
}

type statusCarrier interface{ status() apiStatus }

func (s apiStatus) status() apiStatus { return s }

type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	RatePerSecond float64
	Timeout       time.Duration
}

// Client talks to the vendor cloud.  All calls are rate limited and bounded
// by the configured timeout.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	timeout time.Duration
	tokens  *TokenSource
	now     func() time.Time
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://euapi.ttlock.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		timeout: cfg.Timeout,
		now:     time.Now,
	}
	c.tokens = newTokenSource(c)
	return c
}

// Configured reports whether credentials were supplied.
func (c *Client) Configured() bool { return c.cfg.ClientID != "" }

func (c *Client) Tokens() *TokenSource { return c.tokens }

// WarmUp fetches a token ahead of the first unlock.
func (c *Client) WarmUp(ctx context.Context) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	_, err := c.tokens.Token(ctx)
	return err
}

// Unlock opens lockID remotely.  The lock must be paired with a gateway.
func (c *Client) Unlock(ctx context.Context, lockID string) error {
	form, err := c.authorized(ctx, lockID)
	if err != nil {
		return err
	}
	var resp apiStatus
	if err := c.postForm(ctx, "/v3/lock/unlock", form, &resp); err != nil {
		c.invalidateOnAuthError(err)
		return fmt.Errorf("ttlock unlock %s: %w", lockID, err)
	}
	return nil
}

type Fingerprint struct {
	FingerprintID     int64  `json:"fingerprintId"`
	FingerprintNumber string `json:"fingerprintNumber"`
	FingerprintName   string `json:"fingerprintName"`
	StartDate         int64  `json:"startDate"`
	EndDate           int64  `json:"endDate"`
}

type Card struct {
	CardID     int64  `json:"cardId"`
	CardNumber string `json:"cardNumber"`
	CardName   string `json:"cardName"`
	StartDate  int64  `json:"startDate"`
	EndDate    int64  `json:"endDate"`
}

type listResponse[T any] struct {
	apiStatus
	List     []T `json:"list"`
	PageNo   int `json:"pageNo"`
	PageSize int `json:"pageSize"`
	Pages    int `json:"pages"`
	Total    int `json:"total"`
}

func (c *Client) ListFingerprints(ctx context.Context, lockID string) ([]Fingerprint, error) {
	var resp listResponse[Fingerprint]
	if err := c.list(ctx, "/v3/fingerprint/list", lockID, nil, &resp); err != nil {
		return nil, fmt.Errorf("ttlock list fingerprints %s: %w", lockID, err)
	}
	return resp.List, nil
}

func (c *Client) ListCards(ctx context.Context, lockID string) ([]Card, error) {
	var resp listResponse[Card]
	if err := c.list(ctx, "/v3/card/list", lockID, nil, &resp); err != nil {
		return nil, fmt.Errorf("ttlock list cards %s: %w", lockID, err)
	}
	return resp.List, nil
}

func (c *Client) list(ctx context.Context, path, lockID string, extra url.Values, out any) error {
	q, err := c.authorized(ctx, lockID)
	if err != nil {
		return err
	}
	q.Set("pageNo", "1")
	q.Set("pageSize", "200")
	q.Set("orderBy", "1")
	for k, v := range extra {
		q[k] = v
	}
	if err := c.get(ctx, path, q, out); err != nil {
		c.invalidateOnAuthError(err)
		return err
	}
	return nil
}

// authorized builds the clientId/accessToken/lockId/date parameters every
// lock call needs.
func (c *Client) authorized(ctx context.Context, lockID string) (url.Values, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"clientId":    {c.cfg.ClientID},
		"accessToken": {tok},
		"lockId":      {lockID},
		"date":        {strconv.FormatInt(c.now().UnixMilli(), 10)},
	}, nil
}

// Vendor codes for an expired or invalid access token.
var authErrCodes = map[int]bool{10003: true, 10004: true}

func (c *Client) invalidateOnAuthError(err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && authErrCodes[apiErr.Code] {
		c.tokens.Invalidate()
	}
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out statusCarrier) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	sc, ok := out.(statusCarrier)
	if !ok {
		return fmt.Errorf("response type %T does not carry errcode", out)
	}
	return c.do(req, sc)
}

func (c *Client) do(req *http.Request, out statusCarrier) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: http %d: %s", ErrVendor, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return out.status().err()
}
