package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/triage-ai/botsentry/internal/store"
)

const testAdminKey = "bsk_0123456789abcdef0123456789abcdef"

// testHash returns a bcrypt hash of key using MinCost (fast for tests).
func testHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

type mockKeyStore struct {
	mu        sync.Mutex
	keys      []store.AdminKey
	err       error
	prefixes  []string
	callCount atomic.Int32
}

func (m *mockKeyStore) LookupAdminKeys(_ context.Context, prefix string) ([]store.AdminKey, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefixes = append(m.prefixes, prefix)
	if m.err != nil {
		return nil, m.err
	}
	return m.keys, nil
}

func (m *mockKeyStore) set(keys []store.AdminKey, err error) {
	m.mu.Lock()
	m.keys, m.err = keys, err
	m.mu.Unlock()
}

func dbSource(s KeyStore) KeySource { return KeySource{Name: "database", Store: s} }

func TestKeyAuth_CacheMiss_ValidKey(t *testing.T) {
	db := &mockKeyStore{keys: []store.AdminKey{{ID: 7, Name: "ops", KeyHash: testHash(t, testAdminKey)}}}
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(), dbSource(db))

	admin, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if admin.KeyID != 7 || admin.Name != "ops" || admin.Source != "database" {
		t.Errorf("unexpected admin: %+v", admin)
	}
	if db.prefixes[0] != testAdminKey[:store.AdminKeyPrefixLen] {
		t.Errorf("expected lookup by prefix, got %q", db.prefixes[0])
	}
}

func TestKeyAuth_CacheHit_SkipsLookup(t *testing.T) {
	db := &mockKeyStore{keys: []store.AdminKey{{ID: 1, Name: "ops", KeyHash: testHash(t, testAdminKey)}}}
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(), dbSource(db))

	for i := 0; i < 5; i++ {
		if _, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := db.callCount.Load(); got != 1 {
		t.Errorf("expected 1 lookup, got %d", got)
	}
}

func TestKeyAuth_WrongKey(t *testing.T) {
	db := &mockKeyStore{keys: []store.AdminKey{{ID: 1, KeyHash: testHash(t, testAdminKey)}}}
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(), dbSource(db))

	_, err := a.Authenticate(context.Background(), "Bearer bsk_0123456789ffffffffffffffffffffff")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestKeyAuth_NoCandidates(t *testing.T) {
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(), dbSource(&mockKeyStore{}))

	_, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestKeyAuth_MalformedHeader_NoLookup(t *testing.T) {
	db := &mockKeyStore{}
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(), dbSource(db))

	if _, err := a.Authenticate(context.Background(), ""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := a.Authenticate(context.Background(), "Bearer nope"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}
	if db.callCount.Load() != 0 {
		t.Error("malformed headers must not reach the store")
	}
}

func TestKeyAuth_StoreDown_Unavailable(t *testing.T) {
	db := &mockKeyStore{err: errors.New("connection refused")}
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(), dbSource(db))

	_, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey)
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got %v", err)
	}
}

func TestKeyAuth_StoreDown_ConfigKeyStillWorks(t *testing.T) {
	db := &mockKeyStore{err: errors.New("connection refused")}
	static := NewStaticKeyStore([]string{testHash(t, testAdminKey)})
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(),
		dbSource(db), KeySource{Name: "config", Store: static})

	admin, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey)
	if err != nil {
		t.Fatalf("expected config key to authenticate, got %v", err)
	}
	if admin.Source != "config" || admin.Name != "config-1" {
		t.Errorf("unexpected admin: %+v", admin)
	}
}

func TestStaticKeyStore(t *testing.T) {
	s := NewStaticKeyStore([]string{"h1", "h2"})
	keys, err := s.LookupAdminKeys(context.Background(), "bsk_anyp")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[1].Name != "config-2" || keys[1].ID >= 0 {
		t.Errorf("unexpected keys: %+v", keys)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestKeyAuth_StaleHit_RefreshesInBackground(t *testing.T) {
	db := &mockKeyStore{keys: []store.AdminKey{{ID: 1, Name: "ops", KeyHash: testHash(t, testAdminKey)}}}
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(), dbSource(db))
	clock := &fakeClock{t: time.Now()}
	a.cache.now = clock.now

	if _, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey); err != nil {
		t.Fatal(err)
	}
	db.set([]store.AdminKey{{ID: 1, Name: "ops-renamed", KeyHash: testHash(t, testAdminKey)}}, nil)
	clock.advance(2 * time.Minute)

	admin, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey)
	if err != nil {
		t.Fatal(err)
	}
	if admin.Name != "ops" {
		t.Errorf("stale read should return cached admin, got %s", admin.Name)
	}
	waitFor(t, func() bool {
		r := a.cache.Get(testAdminKey)
		return r.Hit && r.Admin.Name == "ops-renamed"
	})
}

func TestKeyAuth_StaleHit_RevokedKeyEvicted(t *testing.T) {
	db := &mockKeyStore{keys: []store.AdminKey{{ID: 1, Name: "ops", KeyHash: testHash(t, testAdminKey)}}}
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(), dbSource(db))
	clock := &fakeClock{t: time.Now()}
	a.cache.now = clock.now

	if _, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey); err != nil {
		t.Fatal(err)
	}
	db.set(nil, nil)
	clock.advance(2 * time.Minute)
	if _, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return !a.cache.Get(testAdminKey).Hit })

	_, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected revoked key rejected, got %v", err)
	}
}

func TestKeyAuth_StaleHit_StoreDownKeepsEntry(t *testing.T) {
	db := &mockKeyStore{keys: []store.AdminKey{{ID: 1, Name: "ops", KeyHash: testHash(t, testAdminKey)}}}
	a := NewKeyAuthenticator(time.Minute, zap.NewNop(), dbSource(db))
	clock := &fakeClock{t: time.Now()}
	a.cache.now = clock.now

	if _, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey); err != nil {
		t.Fatal(err)
	}
	db.set(nil, errors.New("timeout"))
	clock.advance(2 * time.Minute)
	if _, err := a.Authenticate(context.Background(), "Bearer "+testAdminKey); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return db.callCount.Load() == 2 })
	// The failed refresh releases the flag, so the entry is retried later.
	waitFor(t, func() bool { return a.cache.Get(testAdminKey).NeedsRefresh })
}

func BenchmarkKeyAuth_CacheHit(b *testing.B) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	db := &mockKeyStore{keys: []store.AdminKey{{ID: 1, KeyHash: string(hash)}}}
	a := NewKeyAuthenticator(5*time.Minute, zap.NewNop(), dbSource(db))
	ctx := context.Background()
	if _, err := a.Authenticate(ctx, "Bearer "+testAdminKey); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := a.Authenticate(ctx, "Bearer "+testAdminKey); err != nil {
				b.Fatal(err)
			}
		}
	})
}
