package testutil

import (
	"net/http"

	id "cardvault/pkg/domain"
	"cardvault/pkg/requestcontext"
)

// WithUser puts an authenticated caller on the request context, the way
// RequireUser does after resolving a bearer token.
func WithUser(req *http.Request, userID id.UserID, contact requestcontext.Contact) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithUserContact(ctx, contact)
	return req.WithContext(ctx)
}

// WithUserID adds a user ID to the request context.
// If the userID is not a valid UUID, it will not be added to the context.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsed, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
	}
	return req
}
