package gateway

import (
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/soyeahso/outreach/internal/logging"
)

// requestLogger logs each HTTP request once it completes.
func requestLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Debug().
				Str("requestId", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("http request")
		})
	}
}

// corsHandler allows the configured origins. With none configured it adds
// no CORS headers, so browsers refuse cross-origin calls.
func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})
	return c.Handler
}

// bearerAuth checks "Authorization: Bearer <secret>" against the gateway
// token or password, applying the same failure rate limit as the WebSocket
// handshake.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(r.RemoteAddr) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": ErrorShape{Code: CodeUnauthorized, Message: "too many failed attempts", Retryable: true},
			})
			return
		}

		secret, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.limiter.recordFailure(r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": ErrorShape{Code: CodeUnauthorized, Message: "bearer token required"},
			})
			return
		}

		res := s.auth.Check(secret)
		if !res.OK {
			s.limiter.recordFailure(r.RemoteAddr)
			s.log.Warn().Str("remote", r.RemoteAddr).Str("reason", res.Reason).Msg("rest auth failed")
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": ErrorShape{Code: CodeUnauthorized, Message: res.Reason},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
