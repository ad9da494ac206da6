package ttlock

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// refreshSkew renews the token this long before the vendor says it expires.
const refreshSkew = 60 * time.Second

type tokenResponse struct {
	apiStatus
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// TokenSource caches the vendor access token and refreshes it on demand.
// Concurrent callers that find the token stale share a single refresh.
type TokenSource struct {
	c *Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time

	group singleflight.Group
	now   func() time.Time

	refreshes int64 // vendor token calls made; guarded by mu
}

func newTokenSource(c *Client) *TokenSource {
	return &TokenSource{c: c, now: time.Now}
}

// Token returns a valid access token, refreshing it if needed.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}

	// The refresh outlives any one caller so a cancelled waiter does not
	// fail everyone sharing the flight.
	ch := s.group.DoChan("token", func() (any, error) {
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.c.timeout)
		defer cancel()
		return s.refresh(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached access token so the next call refreshes.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.expiresAt = time.Time{}
}

// Refreshes reports how many token calls have been made to the vendor.
func (s *TokenSource) Refreshes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshes
}

func (s *TokenSource) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accessToken == "" || !s.now().Add(refreshSkew).Before(s.expiresAt) {
		return "", false
	}
	return s.accessToken, true
}

func (s *TokenSource) refresh(ctx context.Context) (string, error) {
	s.mu.RLock()
	rt := s.refreshToken
	s.mu.RUnlock()

	if rt != "" {
		tok, err := s.request(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {rt},
		})
		if err == nil {
			return tok, nil
		}
		s.c.logger.Warn("ttlock token refresh failed, falling back to password grant", zap.Error(err))
	}

	return s.request(ctx, url.Values{
		"username": {s.c.cfg.Username},
		"password": {md5Hex(s.c.cfg.Password)},
	})
}

func (s *TokenSource) request(ctx context.Context, form url.Values) (string, error) {
	form.Set("client_id", s.c.cfg.ClientID)
	form.Set("client_secret", s.c.cfg.ClientSecret)

	s.mu.Lock()
	s.refreshes++
	s.mu.Unlock()

	var resp tokenResponse
	if err := s.c.postForm(ctx, "/oauth2/token", form, &resp); err != nil {
		return "", fmt.Errorf("ttlock token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("ttlock token: %w: empty access_token", ErrVendor)
	}

	now := s.now()
	s.mu.Lock()
	s.accessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		s.refreshToken = resp.RefreshToken
	}
	s.expiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	s.mu.Unlock()

	s.c.logger.Info("ttlock token refreshed", zap.Time("expires_at", now.Add(time.Duration(resp.ExpiresIn)*time.Second)))
	return resp.AccessToken, nil
}

// md5Hex hashes the account password as the vendor's token endpoint expects.
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
