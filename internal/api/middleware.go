package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/xzc516/fit5032-youthwell-project/internal/auth"
	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// --- Auth ---

// authMiddleware verifies the caller's API key and attaches the client to
// the request context.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, err := auth.CredentialsFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
			return
		}

		client, err := d.Auth.Authenticate(r.Context(), creds)
		switch {
		case errors.Is(err, auth.ErrAuthUnavailable):
			d.Logger.Error("auth backend unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Authentication temporarily unavailable"})
			return
		case errors.Is(err, auth.ErrMissingClientID):
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing X-Client-Id header"})
			return
		case err != nil:
			d.Logger.Warn("auth failed", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key"})
			return
		}

		next(w, r.WithContext(auth.WithClient(r.Context(), client)))
	}
}

// rateLimit applies the client's sliding window. Limiter errors fail open.
func (d *Dependencies) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Limiter == nil {
			next(w, r)
			return
		}
		client := auth.FromContext(r.Context())
		cfg := client.Policy.EffectiveRateLimit(d.RateLimit)

		ok, err := d.Limiter.Allow(r.Context(), client.ClientID, cfg)
		if err != nil {
			d.Logger.Warn("rate limiter unavailable, allowing request",
				zap.String("client_id", client.ClientID),
				zap.Error(err),
			)
			next(w, r)
			return
		}
		if !ok {
			d.Metrics.ObserveRateLimited("http")
			w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, ErrorResp{Detail: "Too many requests. Please try again later."})
			return
		}
		next(w, r)
	}
}

// admin guards the management routes with a shared token when one is configured.
func (d *Dependencies) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.AdminToken != "" {
			got := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(d.AdminToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid admin token"})
				return
			}
		}
		next(w, r)
	}
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a size-capped JSON request body into v.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// --- Request logging ---

func (d *Dependencies) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		d.Metrics.ObserveRequest(route, strconv.Itoa(sw.status), elapsed)
		d.Logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", elapsed),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- Headers ---

func securityHeaders(next http.Handler) http.Handler {
	headers := contentguard.SecurityHeaders()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Dependencies) cors() *cors.Cors {
	origins := d.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", auth.ClientIDHeader, "X-Admin-Token"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         86400,
	})
}
