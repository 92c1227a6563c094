package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/platform/logger"
	"github.com/phrazzld/taskflow-api/internal/service/auth"
)

// UserIDHeader names the caller when bearer tokens are not configured.
const UserIDHeader = "X-User-ID"

// ActorMiddleware resolves who performs a request and stores it with
// domain.WithActor. With a JWT service the token subject is the actor and
// the header is ignored; without one the X-User-ID header is trusted.
// Requests without either proceed anonymously.
type ActorMiddleware struct {
	jwtService auth.JWTService
}

// NewActorMiddleware creates an ActorMiddleware. jwtService may be nil.
func NewActorMiddleware(jwtService auth.JWTService) *ActorMiddleware {
	return &ActorMiddleware{jwtService: jwtService}
}

// Resolve is the http middleware.
func (m *ActorMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, status, msg, err := m.actor(r)
		if status != 0 {
			shared.RespondWithErrorAndLog(w, r, status, msg, err, shared.WithElevatedLogLevel())
			return
		}
		if actor == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := domain.WithActor(r.Context(), actor)
		log := logger.FromContext(ctx).With(slog.String("actor", actor))
		ctx = logger.WithLogger(ctx, log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *ActorMiddleware) actor(r *http.Request) (string, int, string, error) {
	if m.jwtService == nil {
		actor := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if utf8.RuneCountInString(actor) > domain.MaxAssigneeLength {
			return "", http.StatusBadRequest, "Invalid " + UserIDHeader + " header", domain.ErrAssigneeTooLong
		}
		return actor, 0, "", nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", 0, "", nil
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", http.StatusUnauthorized, "Invalid authorization format", nil
	}

	claims, err := m.jwtService.ValidateToken(r.Context(), strings.TrimSpace(token))
	switch {
	case err == nil:
		return claims.Subject, 0, "", nil
	case errors.Is(err, auth.ErrExpiredToken):
		return "", http.StatusUnauthorized, "Token expired", err
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingSubject):
		return "", http.StatusUnauthorized, "Invalid token", err
	default:
		return "", http.StatusInternalServerError, "Authentication error", err
	}
}
