package main

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"qbeAdmin/internal/handlers"
	"qbeAdmin/internal/logging"
	"qbeAdmin/internal/metrics"
	"qbeAdmin/internal/utils"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an id and a logger carrying it.
// A valid incoming X-Request-ID is kept.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		logger := logging.Logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// LoggingMiddleware logs every request and records its latency by route
func LoggingMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			duration := time.Since(start)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if name := current.GetName(); name != "" {
					route = name
				} else if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			m.RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(wrapper.statusCode)).Observe(duration.Seconds())

			zerolog.Ctx(r.Context()).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int64("duration_ms", duration.Milliseconds()).
				Int("status_code", wrapper.statusCode).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("HTTP request completed")
		})
	}
}

// RecoveryMiddleware turns handler panics into 500s
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				zerolog.Ctx(r.Context()).Error().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("panic", fmt.Sprintf("%v", err)).
					Str("remote_addr", r.RemoteAddr).
					Msg("Panic recovered in HTTP handler")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware puts the signed-in user and the session CSRF token in the
// request context. Anonymous requests pass through; views decide what they
// require.
func AuthMiddleware(auth *handlers.AuthHandlers) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, data, err := auth.CurrentUser(r)
			if err != nil {
				if !handlers.IsSessionError(err) {
					zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to resolve session user")
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := utils.WithUser(r.Context(), user)
			ctx = utils.WithCSRFToken(ctx, data.CSRFToken)

			logger := zerolog.Ctx(ctx).With().Str("user", user.Email).Logger()
			next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
		})
	}
}

// CSRFMiddleware checks the session token on state-changing requests. JSON
// clients send it in X-CSRF-Token, forms in the csrf_token field.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		// Nothing to check without a session.
		if !utils.IsAuthenticated(r) {
			next.ServeHTTP(w, r)
			return
		}

		expectedToken, ok := utils.GetCSRFToken(r)
		if !ok {
			http.Error(w, "CSRF token not found in session", http.StatusForbidden)
			return
		}

		providedToken := r.Header.Get("X-CSRF-Token")
		if providedToken == "" {
			providedToken = r.FormValue("csrf_token")
		}

		if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
			zerolog.Ctx(r.Context()).Warn().
				Str("path", r.URL.Path).
				Msg("CSRF token mismatch")
			http.Error(w, "CSRF token mismatch", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
