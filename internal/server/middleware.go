package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// recovery turns a handler panic into a 500 error envelope.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			s.log.Error("Request %s %s panicked: %v", r.Method, r.URL.Path, recovered)
			writeError(w, http.StatusInternalServerError, CodeInternal, fmt.Sprintf("panic: %v", recovered), nil)
		}()

		next.ServeHTTP(w, r)
	})
}

// requestLog writes one line per request with its id, status and duration.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		s.log.Info("[%s] %s %s -> %d (%s)",
			middleware.GetReqID(r.Context()), r.Method, r.URL.Path, wrapped.Status(), time.Since(started))
	})
}
