package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const identityContextKey contextKey = "identity"

func identityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityContextKey).(string)
	return identity
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.writeJSONError(w, r, http.StatusUnauthorized, fmt.Errorf("missing authorization header"))
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		identity, err := s.auth.Identify(token)
		if err != nil {
			s.requestLogger(r).Warnf("invalid bearer token from %s: %v", r.RemoteAddr, err)
			s.writeJSONError(w, r, http.StatusUnauthorized, fmt.Errorf("invalid bearer token"))
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestLogger(r).Infof("%s %s (%s)", r.Method, r.URL.EscapedPath(), r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.writeJSONError(w, r, http.StatusInternalServerError, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
