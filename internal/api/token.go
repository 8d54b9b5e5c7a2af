package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"raid-stats/internal/config"
	"raid-stats/internal/constants"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/singleflight"
)

// TokenCache hands out a client-credentials bearer token, refreshing it once
// now >= expiry. expiry already has the safety margin subtracted.
type TokenCache struct {
	client       *fasthttp.Client
	tokenURL     string
	clientID     string
	clientSecret string
	margin       time.Duration
	now          func() time.Time
	logger       zerolog.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time

	flight singleflight.Group
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func NewTokenCache(cfg *config.Config, client *fasthttp.Client, logger zerolog.Logger) *TokenCache {
	margin := cfg.TokenSafetyMargin
	if margin < 0 {
		margin = 0
	}
	return &TokenCache{
		client:       client,
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		margin:       margin,
		now:          time.Now,
		logger:       logger.With().Str("component", "token_cache").Logger(),
	}
}

func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	// A cancelled caller stops waiting; the refresh keeps running for the rest.
	ch := c.flight.DoChan("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ExternalAPITimeout)
		defer cancel()
		return c.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.logger.Debug().Msg("joined in-flight token refresh")
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next call re-authenticates.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiry) {
		return c.token, true
	}
	return "", false
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.tokenURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basicAuth(c.clientID, c.clientSecret))
	req.SetBodyString("grant_type=client_credentials")

	start := c.now()
	if err := do(ctx, c.client, req, resp); err != nil {
		c.logger.Warn().Err(err).Msg("token exchange request failed")
		return "", &TransportError{Err: fmt.Errorf("token exchange: %w", err)}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		err := &AuthError{Status: resp.StatusCode(), Body: string(resp.Body())}
		c.logger.Error().Int("status", err.Status).Str("body", err.Body).Msg("token exchange rejected")
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", &AuthError{Status: resp.StatusCode(), Body: fmt.Sprintf("invalid token response: %v", err)}
	}
	if tr.AccessToken == "" {
		return "", &AuthError{Status: resp.StatusCode(), Body: "token response carried no access_token"}
	}

	expiry := start.Add(time.Duration(tr.ExpiresIn)*time.Second - c.margin)

	c.mu.Lock()
	c.token = tr.AccessToken
	c.expiry = expiry
	c.mu.Unlock()

	c.logger.Info().
		Int64("expires_in", tr.ExpiresIn).
		Time("refresh_at", expiry).
		Msg("access token acquired")

	return tr.AccessToken, nil
}

func basicAuth(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
}
