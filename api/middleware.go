package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/vocdoni/maci-coordinator/log"
)

// DisabledLogging is a global flag to disable logging middleware
var DisabledLogging = false

// statusRecorder captures the first status code written to the response.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// skipLogging reports whether the request should not be logged. Requests
// are only logged at debug level.
func skipLogging(r *http.Request, excluded []string) bool {
	if DisabledLogging || log.Level() != log.LogLevelDebug {
		return true
	}
	for _, prefix := range excluded {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// loggingMiddleware logs every request with its response status and
// latency, except those under one of the excluded path prefixes.
func loggingMiddleware(excluded []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipLogging(r, excluded) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			log.Debugw("api request",
				"method", r.Method,
				"url", r.URL.String(),
				"status", rec.status,
				"took", time.Since(start).String())
		})
	}
}
