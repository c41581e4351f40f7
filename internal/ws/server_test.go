package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/ratelimit"
)

type denyAll struct{ calls int }

func (d *denyAll) Allow(context.Context, string, ratelimit.Rule) (bool, error) {
	d.calls++
	return false, nil
}

type tokenMap map[string]string

func (m tokenMap) Verify(token string) (string, error) {
	if id, ok := m[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func newTestServer(cfg ServerConfig) *Server {
	return NewServer(cfg, nil, nil, zap.NewNop())
}

func TestUpgrade_Rejections(t *testing.T) {
	t.Run("connection cap", func(t *testing.T) {
		cfg := DefaultServerConfig()
		cfg.MaxConnections = 1
		s := newTestServer(cfg)
		c, _ := pipeConnection(t, "existing", 0, 0)
		s.conns.Add(c)

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		s := newTestServer(DefaultServerConfig())
		limiter := &denyAll{}
		s.SetConnLimiter(limiter)

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, 1, limiter.calls)
	})

	t.Run("invalid token", func(t *testing.T) {
		s := newTestServer(DefaultServerConfig())
		s.SetAuth(tokenMap{"good": "sarah"})

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=forged", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without authenticator", func(t *testing.T) {
		s := newTestServer(DefaultServerConfig())

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=anything", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandler_HealthAndRoutes(t *testing.T) {
	s := newTestServer(DefaultServerConfig())
	s.Handle("/auth/login", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["connections"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRemoveConnection_RunsDisconnectOnce(t *testing.T) {
	s := newTestServer(DefaultServerConfig())
	var gone []string
	s.SetOnDisconnect(func(id string) { gone = append(gone, id) })

	c, _ := pipeConnection(t, "a", 0, 0)
	s.conns.Add(c)

	s.RemoveConnection(c)
	s.RemoveConnection(c)
	assert.Equal(t, []string{"a"}, gone)
	assert.Equal(t, 0, s.Connections().Count())
}
