package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/triage-ai/botsentry/internal/engine"
)

// PatternType distinguishes literal substring patterns from regexes.
type PatternType string

const (
	PatternExact PatternType = "exact"
	PatternRegex PatternType = "regex"
)

// Pattern sources written by this service. External sources use their own name.
const (
	SourceManual      = "manual"
	SourceAutoLearned = "auto-learned"
)

// BotPattern represents a row in the bot_patterns table.
type BotPattern struct {
	ID            int64
	Pattern       string
	PatternType   PatternType
	BotName       string
	BotVendor     string
	BotCategory   engine.Category
	Priority      engine.Priority
	Source        string
	SourceVersion string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPattern holds the fields for inserting a catalog entry.
type NewPattern struct {
	Pattern       string
	PatternType   PatternType
	BotName       string
	BotVendor     string
	BotCategory   engine.Category
	Priority      engine.Priority
	Source        string
	SourceVersion string
}

// UpdatePatternParams holds optional fields for partial pattern updates.
type UpdatePatternParams struct {
	BotName     *string
	BotVendor   *string
	BotCategory *engine.Category
	Priority    *engine.Priority
	IsActive    *bool
}

// ListPatternsParams filters the admin pattern listing.
type ListPatternsParams struct {
	Source *string
	Active *bool
	Limit  int
	Offset int
}

const patternColumns = `id, pattern, pattern_type, bot_name, bot_vendor, bot_category,
	priority, source, source_version, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*BotPattern, error) {
	var p BotPattern
	if err := row.Scan(&p.ID, &p.Pattern, &p.PatternType, &p.BotName, &p.BotVendor,
		&p.BotCategory, &p.Priority, &p.Source, &p.SourceVersion, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActivePatterns returns every active catalog entry ordered by id.
func (s *Store) ListActivePatterns(ctx context.Context) ([]BotPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+patternColumns+`
		FROM bot_patterns WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListActivePatterns: %w", err)
	}
	defer rows.Close()

	var patterns []BotPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActivePatterns: %w", err)
		}
		patterns = append(patterns, *p)
	}
	return patterns, rows.Err()
}

// ListPatterns returns catalog entries matching the filters, newest first.
func (s *Store) ListPatterns(ctx context.Context, params ListPatternsParams) ([]BotPattern, error) {
	conditions := []string{"TRUE"}
	var args []any
	if params.Source != nil {
		args = append(args, *params.Source)
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)))
	}
	if params.Active != nil {
		args = append(args, *params.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, params.Offset)

	query := fmt.Sprintf(`
		SELECT `+patternColumns+`
		FROM bot_patterns WHERE %s
		ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListPatterns: %w", err)
	}
	defer rows.Close()

	var patterns []BotPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPatterns: %w", err)
		}
		patterns = append(patterns, *p)
	}
	return patterns, rows.Err()
}

// GetPattern returns a pattern by ID, or nil if not found.
func (s *Store) GetPattern(ctx context.Context, id int64) (*BotPattern, error) {
	p, err := scanPattern(s.db.QueryRowContext(ctx, `
		SELECT `+patternColumns+`
		FROM bot_patterns WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPattern: %w", err)
	}
	return p, nil
}

// FindActivePattern returns the active entry with exactly this pattern
// string, or nil if none exists.
func (s *Store) FindActivePattern(ctx context.Context, pattern string) (*BotPattern, error) {
	p, err := scanPattern(s.db.QueryRowContext(ctx, `
		SELECT `+patternColumns+`
		FROM bot_patterns WHERE pattern = $1 AND is_active`, pattern))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindActivePattern: %w", err)
	}
	return p, nil
}

// FindPattern returns the entry with exactly this pattern string whether or
// not it is active. An active row is preferred, then the newest. Returns nil
// if none exists.
func (s *Store) FindPattern(ctx context.Context, pattern string) (*BotPattern, error) {
	p, err := scanPattern(s.db.QueryRowContext(ctx, `
		SELECT `+patternColumns+`
		FROM bot_patterns WHERE pattern = $1
		ORDER BY is_active DESC, id DESC
		LIMIT 1`, pattern))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindPattern: %w", err)
	}
	return p, nil
}

// InsertPattern adds a catalog entry. The partial unique index on active
// patterns makes the insert a no-op when an identical active pattern exists;
// in that case it returns (nil, false, nil).
func (s *Store) InsertPattern(ctx context.Context, np NewPattern) (*BotPattern, bool, error) {
	if np.PatternType == "" {
		np.PatternType = PatternRegex
	}
	if np.BotCategory == engine.CategoryNone {
		np.BotCategory = engine.CategoryOther
	}
	if np.Priority == engine.PriorityNone {
		np.Priority = engine.PriorityMedium
	}
	if np.Source == "" {
		np.Source = SourceManual
	}

	p, err := scanPattern(s.db.QueryRowContext(ctx, `
		INSERT INTO bot_patterns (pattern, pattern_type, bot_name, bot_vendor, bot_category,
		                          priority, source, source_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pattern) WHERE is_active DO NOTHING
		RETURNING `+patternColumns,
		np.Pattern, np.PatternType, np.BotName, np.BotVendor, np.BotCategory,
		np.Priority, np.Source, np.SourceVersion,
	))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("InsertPattern: %w", err)
	}
	return p, true, nil
}

// UpdatePatternSource records which external source and version last
// vouched for a pattern.
func (s *Store) UpdatePatternSource(ctx context.Context, id int64, source, version string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bot_patterns SET
			source         = $2,
			source_version = $3,
			updated_at     = now()
		WHERE id = $1`, id, source, version)
	if err != nil {
		return fmt.Errorf("UpdatePatternSource: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdatePattern applies a partial update to a pattern. Only non-nil fields
// are changed. Reactivating a pattern that already has an active twin returns
// ErrDuplicatePattern.
func (s *Store) UpdatePattern(ctx context.Context, id int64, params UpdatePatternParams) (*BotPattern, error) {
	p, err := scanPattern(s.db.QueryRowContext(ctx, `
		UPDATE bot_patterns SET
			bot_name     = COALESCE($2, bot_name),
			bot_vendor   = COALESCE($3, bot_vendor),
			bot_category = COALESCE($4, bot_category),
			priority     = COALESCE($5, priority),
			is_active    = COALESCE($6, is_active),
			updated_at   = now()
		WHERE id = $1
		RETURNING `+patternColumns,
		id, params.BotName, params.BotVendor, nullableString(params.BotCategory),
		nullableString(params.Priority), params.IsActive,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicatePattern
	}
	if err != nil {
		return nil, fmt.Errorf("UpdatePattern: %w", err)
	}
	return p, nil
}

// DeactivatePattern retires a pattern. Patterns are never hard-deleted.
func (s *Store) DeactivatePattern(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bot_patterns SET is_active = FALSE, updated_at = now()
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("DeactivatePattern: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// nullableString converts an optional string-kinded value to a driver arg.
func nullableString[T ~string](v *T) any {
	if v == nil {
		return nil
	}
	return string(*v)
}
