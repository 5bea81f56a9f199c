package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AdminKeyPrefix starts every admin API key.
const AdminKeyPrefix = "bsk_"

// AdminKeyPrefixLen is how much of a key is stored in clear for lookup.
const AdminKeyPrefixLen = 8

// AdminKey represents a row in the admin_api_keys table.
type AdminKey struct {
	ID        int64
	Name      string
	KeyHash   string
	KeyPrefix string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// GenerateAdminKey creates a new bsk_ key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAdminKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAdminKey: %w", err)
	}
	fullKey := AdminKeyPrefix + hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAdminKey: %w", err)
	}
	return fullKey, string(hash), fullKey[:AdminKeyPrefixLen], nil
}

func scanAdminKey(row rowScanner) (*AdminKey, error) {
	var k AdminKey
	var revoked sql.NullTime
	if err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.CreatedAt, &revoked); err != nil {
		return nil, err
	}
	if revoked.Valid {
		k.RevokedAt = &revoked.Time
	}
	return &k, nil
}

// CreateAdminKey stores a new admin key and returns it with the plaintext key
// (shown once).
func (s *Store) CreateAdminKey(ctx context.Context, name string) (*AdminKey, string, error) {
	fullKey, hash, prefix, err := GenerateAdminKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateAdminKey: %w", err)
	}

	k, err := scanAdminKey(s.db.QueryRowContext(ctx, `
		INSERT INTO admin_api_keys (name, key_hash, key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, name, key_hash, key_prefix, created_at, revoked_at`,
		name, hash, prefix,
	))
	if err != nil {
		return nil, "", fmt.Errorf("CreateAdminKey: %w", err)
	}
	return k, fullKey, nil
}

// ListAdminKeys returns all keys, newest first.
func (s *Store) ListAdminKeys(ctx context.Context) ([]AdminKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key_hash, key_prefix, created_at, revoked_at
		FROM admin_api_keys ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListAdminKeys: %w", err)
	}
	defer rows.Close()

	var keys []AdminKey
	for rows.Next() {
		k, err := scanAdminKey(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAdminKeys: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

// RevokeAdminKey marks a key revoked. Returns sql.ErrNoRows if no live key
// has the ID.
func (s *Store) RevokeAdminKey(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE admin_api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("RevokeAdminKey: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LookupAdminKeys returns the live keys sharing a prefix. Used by auth to
// narrow candidates before bcrypt verify.
func (s *Store) LookupAdminKeys(ctx context.Context, prefix string) ([]AdminKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key_hash, key_prefix, created_at, revoked_at
		FROM admin_api_keys
		WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("LookupAdminKeys: %w", err)
	}
	defer rows.Close()

	var keys []AdminKey
	for rows.Next() {
		k, err := scanAdminKey(rows)
		if err != nil {
			return nil, fmt.Errorf("LookupAdminKeys: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}
