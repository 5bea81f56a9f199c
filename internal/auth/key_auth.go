package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/triage-ai/botsentry/internal/store"
)

// KeyStore returns the live admin keys that may match a key prefix.
// *store.Store satisfies it.
type KeyStore interface {
	LookupAdminKeys(ctx context.Context, prefix string) ([]store.AdminKey, error)
}

// StaticKeyStore serves bcrypt hashes from configuration. Configured hashes
// carry no prefix, so every lookup returns all of them.
type StaticKeyStore struct {
	keys []store.AdminKey
}

func NewStaticKeyStore(hashes []string) *StaticKeyStore {
	s := &StaticKeyStore{}
	for i, h := range hashes {
		s.keys = append(s.keys, store.AdminKey{
			ID:      int64(-(i + 1)),
			Name:    fmt.Sprintf("config-%d", i+1),
			KeyHash: h,
		})
	}
	return s
}

func (s *StaticKeyStore) LookupAdminKeys(_ context.Context, _ string) ([]store.AdminKey, error) {
	return s.keys, nil
}

// KeySource names a KeyStore for the Admin principal.
type KeySource struct {
	Name  string
	Store KeyStore
}

// KeyAuthenticator verifies bsk_ keys against one or more key sources.
// AuthCache with stale-while-revalidate keeps bcrypt off the hot path.
type KeyAuthenticator struct {
	sources []KeySource
	cache   *AuthCache
	logger  *zap.Logger
	timeout time.Duration
}

// NewKeyAuthenticator builds an authenticator. A zero cacheTTL means 30s.
func NewKeyAuthenticator(cacheTTL time.Duration, logger *zap.Logger, sources ...KeySource) *KeyAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &KeyAuthenticator{
		sources: sources,
		cache:   NewAuthCache(cacheTTL),
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Authenticate validates the header value.
//
// Flow:
//  1. Extract Bearer bsk_...
//  2. Cache lookup: fresh hit returns, stale hit returns and refreshes in
//     the background, miss verifies synchronously
//  3. Lookup errors become ErrAuthUnavailable; a request is never let
//     through without a verified key
func (a *KeyAuthenticator) Authenticate(ctx context.Context, header string) (*Admin, error) {
	apiKey, err := ExtractBearer(header)
	if err != nil {
		return nil, err
	}

	result := a.cache.Get(apiKey)
	if result.Hit {
		if result.NeedsRefresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Admin, nil
	}

	admin, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		return nil, a.handleLookupError(err)
	}
	a.cache.Set(apiKey, admin)
	return admin, nil
}

func (a *KeyAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	admin, err := a.lookupAndVerify(ctx, apiKey)
	switch {
	case errors.Is(err, ErrInvalidAPIKey):
		// Revoked since it was cached.
		a.cache.Delete(apiKey)
	case err != nil:
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		a.cache.Release(apiKey)
	default:
		a.cache.Set(apiKey, admin)
	}
}

func (a *KeyAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*Admin, error) {
	prefix := apiKey[:store.AdminKeyPrefixLen]

	var lookupErr error
	for _, src := range a.sources {
		keys, err := src.Store.LookupAdminKeys(ctx, prefix)
		if err != nil {
			lookupErr = errors.Join(lookupErr, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		for _, k := range keys {
			if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(apiKey)) == nil {
				return &Admin{KeyID: k.ID, Name: k.Name, Source: src.Name}, nil
			}
		}
	}
	if lookupErr != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", lookupErr)
	}
	return nil, ErrInvalidAPIKey
}

func (a *KeyAuthenticator) handleLookupError(err error) error {
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrInvalidAPIKey
	}
	a.logger.Warn("auth key store unreachable", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
}
