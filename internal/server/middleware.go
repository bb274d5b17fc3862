package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"bloodlink/internal"
	"bloodlink/pkg/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	contextKeyUser      contextKey = "user"
	contextKeyRequestID contextKey = "http_request_id"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestID tags every request with a UUID, reusing a well formed inbound
// X-Request-ID so calls can be traced across services.
func (s *Service) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(internal.HEADER_REQUEST_ID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		w.Header().Set(internal.HEADER_REQUEST_ID, requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.WithFields(logrus.Fields{
			"method":          r.Method,
			"path":            r.URL.Path,
			"status":          rw.statusCode,
			"duration_ms":     time.Since(started).Milliseconds(),
			"http_request_id": requestIDFromContext(r.Context()),
		}).Info("http request")
	})
}

// RequireAuth accepts an access token from the session cookie or a bearer
// header, verifies it and puts the caller's user row on the context. The
// row is created on first sight of a new identity.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		accessToken, err := s.accessToken(r)
		if err != nil {
			s.logger.WithError(err).Debug("no usable access token")
			s.writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		identity, err := s.verifier.Verify(ctx, accessToken)
		if err != nil {
			s.logger.WithError(err).Info("failed to verify access token")
			s.writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		err = s.userRepo.UpsertIdentity(ctx, identity.Subject, identity.Email, identity.Name)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", identity.Subject).Error("failed to upsert user identity")
			s.internalServerError(w, r)
			return
		}

		user, err := s.userRepo.User(ctx, identity.Subject)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", identity.Subject).Error("failed to load authenticated user")
			s.internalServerError(w, r)
			return
		}

		s.logger.WithFields(logrus.Fields{
			"user_id":  user.ID,
			"is_admin": user.IsAdmin,
		}).Debug("authenticated user")

		ctx = context.WithValue(ctx, contextKeyUser, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) accessToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errors.New("malformed authorization header")
		}
		return strings.TrimSpace(token), nil
	}

	cookie, err := r.Cookie(s.config.CookieName)
	if err != nil {
		return "", err
	}

	var accessToken string
	err = s.cookie.Decode(internal.COOKIE_ACCESS_TOKEN_NAME, cookie.Value, &accessToken)
	if err != nil {
		return "", err
	}

	return accessToken, nil
}

// RequireAdmin must run after RequireAuth.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.userFromContext(r.Context())
		if err != nil || !user.IsAdmin {
			s.writeError(w, r, http.StatusForbidden, "admin privileges required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AdminAudit records each admin call in admin_logs after it runs. A failed
// write is logged and does not affect the response.
func (s *Service) AdminAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		user, err := s.userFromContext(r.Context())
		if err != nil {
			return
		}

		entry := &types.AdminLog{
			AdminID: user.ID,
			Action:  r.Method + " " + r.URL.Path,
			Details: map[string]any{
				"status":          rw.statusCode,
				"query":           r.URL.RawQuery,
				"http_request_id": requestIDFromContext(r.Context()),
			},
		}

		err = s.adminLogRepo.Create(context.WithoutCancel(r.Context()), entry)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"admin_id": user.ID,
				"action":   entry.Action,
			}).Warn("failed to write admin log")
		}
	})
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if r.Method == http.MethodGet && path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			http.Redirect(w, r, newURL.String(), http.StatusMovedPermanently)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(contextKeyRequestID).(string)
	return requestID
}
