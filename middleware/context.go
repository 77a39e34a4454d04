package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

// ClaimsKey is the context key for verified token claims
const ClaimsKey contextKey = "claims"

// Claims represents the verified token claims
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	Iss   string `json:"iss,omitempty"`
}

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// requestClaimsKey holds a slot installed by RequestLogger so claims attached
// further in the chain are visible when the request line is logged
const requestClaimsKey contextKey = "request_claims"

type claimsSlot struct {
	claims *Claims
}

// GetClaimsFromContext retrieves token claims from context. On the context
// RequestLogger passed down, it also returns claims attached by RequireAuth.
func GetClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*Claims); ok {
		return claims
	}
	if slot, ok := ctx.Value(requestClaimsKey).(*claimsSlot); ok {
		return slot.claims
	}
	return nil
}

// WithClaims adds token claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	if slot, ok := ctx.Value(requestClaimsKey).(*claimsSlot); ok {
		slot.claims = claims
	}
	return context.WithValue(ctx, ClaimsKey, claims)
}

func withClaimsSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestClaimsKey, &claimsSlot{})
}
