package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "cardvault/pkg/domain"
	dErrors "cardvault/pkg/domain-errors"
	"cardvault/pkg/platform/httputil"
	"cardvault/pkg/requestcontext"
)

// Identity is the authenticated caller as reported by the users service.
type Identity struct {
	UserID   id.UserID
	Email    string
	FullName string
}

// IdentityResolver exchanges a bearer token for the caller's identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// RequireUser resolves the bearer token with one call to the users service and
// stores the caller in the request context.
//
//   - missing Authorization header: 403
//   - header not in "Bearer <token>" form: 400
//   - token rejected or users service unreachable: 401
func RequireUser(resolver IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Authorization header is missing"))
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Invalid Authorization header"))
				return
			}

			identity, err := resolver.Resolve(ctx, parts[1])
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, identity.UserID)
			ctx = requestcontext.WithUserContact(ctx, requestcontext.Contact{
				Email:    identity.Email,
				FullName: identity.FullName,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
