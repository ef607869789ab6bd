package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/boardsync/boardsync/internal/logging"
)

// requestIDHeader carries the caller's correlation id; one is minted when
// the caller sends none.
const requestIDHeader = "X-Request-Id"

// withRequestID assigns each request an id, echoes it on the response, and
// binds a request-scoped logger into the context.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		logger := logging.WithRequestID(s.logger, id)
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// withAccessLog logs one line per request, at a level matching the outcome.
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger := zerolog.Ctx(r.Context())
		var evt *zerolog.Event
		switch {
		case rec.status >= http.StatusInternalServerError:
			evt = logger.Error()
		case rec.status >= http.StatusBadRequest:
			evt = logger.Warn()
		default:
			evt = logger.Info()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}
