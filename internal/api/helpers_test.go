package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"raid-stats/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token       string
	invalidated atomic.Int32
}

func (s *staticTokens) Token(context.Context) (string, error) { return s.token, nil }
func (s *staticTokens) Invalidate()                           { s.invalidated.Add(1) }

// graphqlServer answers each request with whatever reply returns and records
// every decoded request body.
type graphqlServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []gqlRequest
	headers  []http.Header
}

func newGraphQLServer(t *testing.T, reply func(n int, req gqlRequest) (int, string)) *graphqlServer {
	t.Helper()
	gs := &graphqlServer{}
	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req gqlRequest
		_ = json.Unmarshal(body, &req)

		gs.mu.Lock()
		gs.requests = append(gs.requests, req)
		gs.headers = append(gs.headers, r.Header.Clone())
		n := len(gs.requests)
		gs.mu.Unlock()

		status, payload := reply(n, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(gs.Close)
	return gs
}

func (gs *graphqlServer) calls() int {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return len(gs.requests)
}

func (gs *graphqlServer) request(i int) (gqlRequest, http.Header) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.requests[i], gs.headers[i]
}

func testConfig(apiURL, tokenURL string) *config.Config {
	return &config.Config{
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		APIURL:            apiURL,
		TokenURL:          tokenURL,
		GuildName:         "Example Guild",
		GuildRealm:        "Area 52",
		GuildRegion:       "us",
		DaysBack:          7,
		FetchConcurrency:  2,
		TokenSafetyMargin: 60 * time.Second,
		APIMaxRetries:     2,
	}
}

func newTestClient(t *testing.T, apiURL string) (*Client, *staticTokens) {
	t.Helper()
	tokens := &staticTokens{token: "test-token"}
	c := newClient(testConfig(apiURL, ""), NewHTTPClient(), tokens, zerolog.Nop())
	c.retryBase = time.Millisecond
	require.NotNil(t, c)
	return c, tokens
}
