// Package userstore keeps verified users and their daily analysis limits
// in Postgres.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LimitStatus is the result of a limit check for one user.
type LimitStatus struct {
	// Known is false when the tg_id has never been verified.
	Known     bool `json:"known"`
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Store wraps a pgx pool over the verified_users and cache_ids tables.
type Store struct {
	pool  *pgxpool.Pool
	limit int
	// now is swappable for date-boundary tests.
	now func() time.Time
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, dbURL string, dailyLimit int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("userstore: connect: %w", err)
	}
	s := &Store{pool: pool, limit: dailyLimit, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS verified_users (
			tg_id BIGINT PRIMARY KEY,
			pocket_id TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			daily_usage INTEGER DEFAULT 0,
			last_usage_date DATE DEFAULT CURRENT_DATE
		)`,
		`CREATE TABLE IF NOT EXISTS cache_ids (
			pocket_id TEXT PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("userstore: init schema: %w", err)
		}
	}
	return nil
}

// CheckLimit reports whether tg_id may run an analysis right now. A new
// UTC day resets the counter to zero. The counter is never incremented
// here; IncrementUsage runs only after a successful analysis.
func (s *Store) CheckLimit(ctx context.Context, tgID int64) (LimitStatus, error) {
	var usage int
	var lastDate time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT daily_usage, last_usage_date FROM verified_users WHERE tg_id = $1`,
		tgID,
	).Scan(&usage, &lastDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return LimitStatus{Known: false}, nil
	}
	if err != nil {
		return LimitStatus{}, fmt.Errorf("userstore: check limit: %w", err)
	}

	today := utcDate(s.now())
	if utcDate(lastDate).Before(today) {
		if _, err := s.pool.Exec(ctx,
			`UPDATE verified_users SET daily_usage = 0, last_usage_date = $1 WHERE tg_id = $2`,
			today, tgID,
		); err != nil {
			return LimitStatus{}, fmt.Errorf("userstore: reset usage: %w", err)
		}
		return LimitStatus{Known: true, Allowed: true, Remaining: s.limit}, nil
	}

	allowed, remaining := evaluateLimit(usage, s.limit)
	return LimitStatus{Known: true, Allowed: allowed, Remaining: remaining}, nil
}

// IncrementUsage bumps the daily counter after a successful analysis.
func (s *Store) IncrementUsage(ctx context.Context, tgID int64) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE verified_users SET daily_usage = daily_usage + 1 WHERE tg_id = $1`,
		tgID,
	); err != nil {
		return fmt.Errorf("userstore: increment usage: %w", err)
	}
	return nil
}

// Verify registers or re-binds a tg_id to a broker account id.
func (s *Store) Verify(ctx context.Context, tgID int64, pocketID string) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO verified_users (tg_id, pocket_id) VALUES ($1, $2)
		 ON CONFLICT (tg_id) DO UPDATE SET pocket_id = $2`,
		tgID, pocketID,
	); err != nil {
		return fmt.Errorf("userstore: verify: %w", err)
	}
	return nil
}

// IsVerified reports whether tg_id has been registered.
func (s *Store) IsVerified(ctx context.Context, tgID int64) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM verified_users WHERE tg_id = $1`, tgID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("userstore: is verified: %w", err)
	}
	return true, nil
}

// PocketID returns the broker account id bound to tg_id, or "" if none.
func (s *Store) PocketID(ctx context.Context, tgID int64) (string, error) {
	var pocketID string
	err := s.pool.QueryRow(ctx,
		`SELECT pocket_id FROM verified_users WHERE tg_id = $1`, tgID,
	).Scan(&pocketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("userstore: pocket id: %w", err)
	}
	return pocketID, nil
}

// CacheContains reports whether a pocket id was already seen.
func (s *Store) CacheContains(ctx context.Context, pocketID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM cache_ids WHERE pocket_id = $1`, pocketID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("userstore: cache lookup: %w", err)
	}
	return true, nil
}

// AddToCache records a pocket id; duplicates are ignored.
func (s *Store) AddToCache(ctx context.Context, pocketID string) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO cache_ids (pocket_id) VALUES ($1) ON CONFLICT (pocket_id) DO NOTHING`,
		pocketID,
	); err != nil {
		return fmt.Errorf("userstore: add to cache: %w", err)
	}
	return nil
}

func evaluateLimit(usage, limit int) (allowed bool, remaining int) {
	if usage < limit {
		return true, limit - usage
	}
	return false, 0
}

func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
