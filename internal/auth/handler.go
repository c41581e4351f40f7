package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/metrics"
	"github.com/techtie/match-app/internal/ratelimit"
)

// RateLimiter is satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves POST /auth/login. A nil limiter disables throttling.
func (a *Authenticator) Handler(limiter RateLimiter, log *zap.Logger) http.Handler {
	log = log.Named("auth")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}

		ip := ratelimit.ClientIP(r)
		if limiter != nil {
			if ok, _ := limiter.Allow(r.Context(), ip, ratelimit.RuleLogin); !ok {
				metrics.RateLimitedTotal.WithLabelValues("login").Inc()
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many login attempts"})
				return
			}
		}

		var req loginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		start := time.Now()
		token, user, err := a.Login(r.Context(), req.Email, req.Password)
		metrics.LoginLatency.Observe(time.Since(start).Seconds())

		switch {
		case err == nil:
			log.Info("login succeeded", zap.String("user", user.ID), zap.String("ip", ip))
			writeJSON(w, http.StatusOK, loginResponse{Token: token, UserID: user.ID, Name: user.Name})
		case errors.Is(err, ErrInvalidCredentials):
			log.Info("login rejected", zap.String("ip", ip))
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid email or password"})
		case r.Context().Err() != nil:
			// Client went away during the round-trip; nobody to answer.
		default:
			log.Error("login failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
