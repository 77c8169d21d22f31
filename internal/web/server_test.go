package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuechangmingzou/trendguard/internal/bot"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

type stubSource struct {
	last   time.Time
	status bot.Status
}

func (s stubSource) LastTick() time.Time { return s.last }
func (s stubSource) Status() bot.Status  { return s.status }

type stubAudit struct {
	entries []string
	err     error
}

func (a stubAudit) Recent(context.Context, int) ([]string, error) { return a.entries, a.err }

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(src StatusSource, audit AuditReader, redis Pinger, opts Options) *Server {
	s := NewServer(src, audit, redis, opts)
	s.now = func() time.Time { return fixedNow }
	return s
}

func serve(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestIndex_AliveText(t *testing.T) {
	s := newTestServer(stubSource{}, nil, nil, Options{})
	w := serve(t, s, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Trading bot is alive! 2024-01-01 12:00:00", w.Body.String())
}

func TestHealthz_ReportsLastTick(t *testing.T) {
	s := newTestServer(stubSource{last: fixedNow.Add(-90 * time.Second)}, nil, nil, Options{})
	w := serve(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2024-01-01T11:58:30Z", body["last_tick"])
	assert.EqualValues(t, 90, body["last_tick_age_seconds"])
}

func TestHealthz_BeforeFirstTick(t *testing.T) {
	s := newTestServer(stubSource{}, nil, nil, Options{})
	w := serve(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Nil(t, body["last_tick"])
}

func TestReadyz(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })
	up := PingFunc(func(context.Context) error { return nil })

	tests := []struct {
		name   string
		last   time.Time
		redis  Pinger
		code   int
		reason string
	}{
		{"no tick yet", time.Time{}, nil, http.StatusServiceUnavailable, "no_tick_yet"},
		{"stale", fixedNow.Add(-time.Hour), nil, http.StatusServiceUnavailable, "tick_stale"},
		{"redis down", fixedNow.Add(-time.Minute), down, http.StatusServiceUnavailable, "redis_unavailable"},
		{"ready", fixedNow.Add(-time.Minute), up, http.StatusOK, ""},
		{"ready without redis", fixedNow.Add(-time.Minute), nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(stubSource{last: tt.last}, nil, tt.redis, Options{StaleAfter: 20 * time.Minute})
			w := serve(t, s, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.code, w.Code)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, decode(t, w)["error"])
			}
		})
	}
}

func TestStatus_RequiresBasicAuthWhenConfigured(t *testing.T) {
	src := stubSource{status: bot.Status{Symbol: "BTCUSDT", Side: types.SideLong, Quantity: "0.002", PnLPct: -1.25}}
	s := newTestServer(src, stubAudit{entries: []string{`{"event":"entry"}`}}, nil, Options{BasicAuthUser: "admin", BasicAuthPass: "secret"})

	w := serve(t, s, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "secret")
	w = serve(t, s, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	botStatus := body["bot"].(map[string]interface{})
	assert.Equal(t, "BTCUSDT", botStatus["symbol"])
	assert.Equal(t, "LONG", botStatus["side"])
	assert.Equal(t, "0.002", botStatus["quantity"])
	assert.Equal(t, []interface{}{`{"event":"entry"}`}, body["audit"])
}

func TestStatus_AuditFailureStillReturnsStatus(t *testing.T) {
	s := newTestServer(stubSource{status: bot.Status{Symbol: "ETHUSDT"}}, stubAudit{err: errors.New("redis down")}, nil, Options{})
	w := serve(t, s, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "unavailable", body["audit_error"])
	assert.Equal(t, "ETHUSDT", body["bot"].(map[string]interface{})["symbol"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(stubSource{}, nil, nil, Options{})
	serve(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := serve(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "trendguard_http_requests_total"))
}
