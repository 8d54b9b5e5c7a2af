package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"raid-stats/internal/config"
	"raid-stats/internal/constants"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// TokenSource is satisfied by *TokenCache.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client executes GraphQL queries against the upstream v2 client endpoint.
type Client struct {
	http       *fasthttp.Client
	url        string
	tokens     TokenSource
	maxRetries int
	retryBase  time.Duration
	logger     zerolog.Logger
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlErrorItem  `json:"errors"`
}

func NewHTTPClient() *fasthttp.Client {
	return &fasthttp.Client{
		MaxConnsPerHost:     32,
		ReadTimeout:         constants.ExternalAPITimeout,
		WriteTimeout:        constants.ExternalAPITimeout,
		MaxIdleConnDuration: 1 * time.Minute,
	}
}

func NewClient(cfg *config.Config, httpClient *fasthttp.Client, tokens *TokenCache, logger zerolog.Logger) *Client {
	return newClient(cfg, httpClient, tokens, logger)
}

func newClient(cfg *config.Config, httpClient *fasthttp.Client, tokens TokenSource, logger zerolog.Logger) *Client {
	return &Client{
		http:       httpClient,
		url:        cfg.APIURL,
		tokens:     tokens,
		maxRetries: cfg.APIMaxRetries,
		retryBase:  constants.RetryBaseInterval,
		logger:     logger.With().Str("component", "graphql").Logger(),
	}
}

// Execute runs one query and returns the raw "data" member. 429, 401, 5xx and
// network failures are retried with exponential backoff up to maxRetries;
// auth failures and GraphQL errors are returned immediately.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode graphql request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxInterval = constants.RetryMaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	var data json.RawMessage
	op := func() error {
		attempt++
		d, err := c.executeOnce(ctx, body, attempt)
		if err == nil {
			data = d
			return nil
		}
		var te *TransportError
		if errors.As(err, &te) && te.Retryable() {
			if te.Status == fasthttp.StatusUnauthorized {
				c.tokens.Invalidate()
			}
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("graphql request failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.maxRetries, 0))), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) executeOnce(ctx context.Context, body []byte, attempt int) (json.RawMessage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	requestID := uuid.New().String()
	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", requestID)
	req.SetBody(body)

	start := time.Now()
	if err := do(ctx, c.http, req, resp); err != nil {
		return nil, &TransportError{Err: err}
	}

	c.logger.Debug().
		Str("request_id", requestID).
		Int("status", resp.StatusCode()).
		Int("attempt", attempt).
		Dur("latency", time.Since(start)).
		Msg("graphql response")

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &TransportError{Status: resp.StatusCode(), Body: truncate(resp.Body(), 2048)}
	}

	var out gqlResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &TransportError{Status: resp.StatusCode(), Body: truncate(resp.Body(), 2048), Err: fmt.Errorf("invalid json: %w", err)}
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return nil, &GraphQLError{Messages: msgs}
	}
	return out.Data, nil
}

func query[T any](ctx context.Context, c *Client, q string, variables map[string]any) (*T, error) {
	data, err := c.Execute(ctx, q, variables)
	if err != nil {
		return nil, err
	}
	var result T
	if len(data) == 0 || string(data) == "null" {
		return &result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode graphql data: %w", err)
	}
	return &result, nil
}

func do(ctx context.Context, client *fasthttp.Client, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		return client.DoDeadline(req, resp, deadline)
	}
	return client.DoTimeout(req, resp, constants.ExternalAPITimeout)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
