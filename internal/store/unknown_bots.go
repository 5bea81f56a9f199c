package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/triage-ai/botsentry/internal/engine"
)

// ClassificationStatus is the lifecycle state of an unknown-bot candidate.
type ClassificationStatus string

const (
	StatusPending  ClassificationStatus = "pending"
	StatusPromoted ClassificationStatus = "promoted"
	StatusRejected ClassificationStatus = "rejected"
)

// UnknownBot represents a row in the unknown_bots table: a user agent the
// pipeline could not classify confidently, with the evidence accumulated
// across sightings.
type UnknownBot struct {
	ID                      int64
	UserAgent               string
	UserAgentHash           string
	IsBot                   bool
	Confidence              float64
	Method                  engine.Method
	SuggestedBotName        string
	Indicators              []engine.Indicator
	HeuristicBotProbability float64
	VisitCount              int64
	ClassificationStatus    ClassificationStatus
	FirstSeen               time.Time
	LastSeen                time.Time
}

// ListUnknownParams filters the unknown-bot listing.
type ListUnknownParams struct {
	Status         *ClassificationStatus
	MinProbability float64
	Limit          int
	Offset         int
}

// HashUserAgent returns the hex SHA-256 of a user agent, the dedup key of
// the unknown_bots table.
func HashUserAgent(ua string) string {
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}

const unknownColumns = `id, user_agent, user_agent_hash, is_bot, confidence, method,
	suggested_bot_name, indicators, heuristic_bot_probability, visit_count,
	classification_status, first_seen, last_seen`

func scanUnknown(row rowScanner) (*UnknownBot, error) {
	var u UnknownBot
	var indicators string
	if err := row.Scan(&u.ID, &u.UserAgent, &u.UserAgentHash, &u.IsBot, &u.Confidence,
		&u.Method, &u.SuggestedBotName, &indicators, &u.HeuristicBotProbability,
		&u.VisitCount, &u.ClassificationStatus, &u.FirstSeen, &u.LastSeen); err != nil {
		return nil, err
	}
	u.Indicators = splitIndicators(indicators)
	return &u, nil
}

// RecordUnknown upserts one non-confident observation in a single statement.
// Repeat sightings bump visit_count and last_seen and fold the sighting's bot
// confidence into heuristic_bot_probability as a noisy-OR:
//
//	p' = 1 - (1 - p) * (1 - c)
//
// Rows already promoted or rejected keep their status.
func (s *Store) RecordUnknown(ctx context.Context, obs engine.UnknownObservation) error {
	seen := obs.SeenAt
	if seen.IsZero() {
		seen = time.Now().UTC()
	}
	var evidence float64
	if obs.IsBot {
		evidence = obs.Confidence
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unknown_bots (user_agent, user_agent_hash, is_bot, confidence, method,
		                          suggested_bot_name, indicators, heuristic_bot_probability,
		                          first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (user_agent_hash) DO UPDATE SET
			is_bot             = EXCLUDED.is_bot,
			confidence         = EXCLUDED.confidence,
			method             = EXCLUDED.method,
			suggested_bot_name = CASE WHEN EXCLUDED.suggested_bot_name <> ''
			                          THEN EXCLUDED.suggested_bot_name
			                          ELSE unknown_bots.suggested_bot_name END,
			indicators         = EXCLUDED.indicators,
			heuristic_bot_probability = LEAST(1.0, 1.0 - (1.0 - unknown_bots.heuristic_bot_probability)
			                                          * (1.0 - EXCLUDED.heuristic_bot_probability)),
			visit_count        = unknown_bots.visit_count + 1,
			last_seen          = GREATEST(unknown_bots.last_seen, EXCLUDED.last_seen)`,
		obs.UserAgent, HashUserAgent(obs.UserAgent), obs.IsBot, obs.Confidence, string(obs.Method),
		obs.BotName, joinIndicators(obs.Indicators), evidence, seen,
	)
	if err != nil {
		return fmt.Errorf("RecordUnknown: %w", err)
	}
	return nil
}

// ListLearnable returns pending candidates whose accumulated probability is
// at least minProbability, most probable first.
func (s *Store) ListLearnable(ctx context.Context, minProbability float64, limit int) ([]UnknownBot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+unknownColumns+`
		FROM unknown_bots
		WHERE classification_status = 'pending' AND heuristic_bot_probability >= $1
		ORDER BY heuristic_bot_probability DESC, id
		LIMIT $2`, minProbability, limit)
	if err != nil {
		return nil, fmt.Errorf("ListLearnable: %w", err)
	}
	defer rows.Close()

	var bots []UnknownBot
	for rows.Next() {
		u, err := scanUnknown(rows)
		if err != nil {
			return nil, fmt.Errorf("ListLearnable: %w", err)
		}
		bots = append(bots, *u)
	}
	return bots, rows.Err()
}

// ListUnknownBots returns candidates for review, most recently seen first.
func (s *Store) ListUnknownBots(ctx context.Context, params ListUnknownParams) ([]UnknownBot, error) {
	conditions := []string{"heuristic_bot_probability >= $1"}
	args := []any{params.MinProbability}
	if params.Status != nil {
		args = append(args, string(*params.Status))
		conditions = append(conditions, fmt.Sprintf("classification_status = $%d", len(args)))
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, params.Offset)

	query := fmt.Sprintf(`
		SELECT `+unknownColumns+`
		FROM unknown_bots WHERE %s
		ORDER BY last_seen DESC, id DESC LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListUnknownBots: %w", err)
	}
	defer rows.Close()

	var bots []UnknownBot
	for rows.Next() {
		u, err := scanUnknown(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUnknownBots: %w", err)
		}
		bots = append(bots, *u)
	}
	return bots, rows.Err()
}

// GetUnknownBot returns a candidate by ID, or nil if not found.
func (s *Store) GetUnknownBot(ctx context.Context, id int64) (*UnknownBot, error) {
	u, err := scanUnknown(s.db.QueryRowContext(ctx, `
		SELECT `+unknownColumns+`
		FROM unknown_bots WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetUnknownBot: %w", err)
	}
	return u, nil
}

// SetClassificationStatus moves a candidate to promoted or rejected.
// Returns sql.ErrNoRows if the candidate does not exist.
func (s *Store) SetClassificationStatus(ctx context.Context, id int64, status ClassificationStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE unknown_bots SET classification_status = $2 WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("SetClassificationStatus: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func joinIndicators(in []engine.Indicator) string {
	parts := make([]string, len(in))
	for i, ind := range in {
		parts[i] = string(ind)
	}
	return strings.Join(parts, ",")
}

func splitIndicators(s string) []engine.Indicator {
	if s == "" {
		return []engine.Indicator{}
	}
	parts := strings.Split(s, ",")
	out := make([]engine.Indicator, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, engine.Indicator(p))
		}
	}
	return out
}
