package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/triage-ai/botsentry/internal/store"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// Admin is the principal behind an authenticated admin request.
type Admin struct {
	KeyID  int64
	Name   string
	Source string // "database" or "config"
}

// Authenticator validates the Authorization header of an admin request.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*Admin, error)
}

// ExtractBearer pulls a bsk_ key out of an Authorization header value.
func ExtractBearer(header string) (string, error) {
	token := strings.TrimSpace(header)
	if token == "" {
		return "", ErrMissingAPIKey
	}
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if !strings.HasPrefix(token, store.AdminKeyPrefix) || len(token) < store.AdminKeyPrefixLen {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}

type adminKey struct{}

// WithAdmin returns a context carrying the authenticated admin.
func WithAdmin(ctx context.Context, a *Admin) context.Context {
	return context.WithValue(ctx, adminKey{}, a)
}

// AdminFrom returns the admin stored by WithAdmin, or nil.
func AdminFrom(ctx context.Context) *Admin {
	a, _ := ctx.Value(adminKey{}).(*Admin)
	return a
}
