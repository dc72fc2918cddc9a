package autosearch

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Backoff defaults. Each consecutive failure doubles the wait.
const (
	DefaultBackoffBase = 30 * time.Minute
	DefaultBackoffMax  = 24 * time.Hour
)

// backoffStore persists per-target search failure state. Failed searches
// wait out an exponentially growing window before automatic retry; manual
// searches bypass the window entirely.
type backoffStore struct {
	db   *sql.DB
	base time.Duration
	max  time.Duration
}

func newBackoffStore(db *sql.DB, base, max time.Duration) *backoffStore {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	return &backoffStore{db: db, base: base, max: max}
}

// Eligible reports whether an automatic search may run now. A target with no
// failure history is always eligible.
func (b *backoffStore) Eligible(ctx context.Context, eventID int64, part int) (bool, time.Time, error) {
	var next sql.NullTime
	err := b.db.QueryRowContext(ctx, `
		SELECT next_eligible_at FROM search_backoff
		WHERE event_id = ? AND part_number = ?`, eventID, part).Scan(&next)
	if err != nil {
		if err == sql.ErrNoRows {
			return true, time.Time{}, nil
		}
		return false, time.Time{}, fmt.Errorf("failed to read search backoff: %w", err)
	}
	if !next.Valid || !time.Now().Before(next.Time) {
		return true, time.Time{}, nil
	}
	return false, next.Time, nil
}

// RecordFailure bumps the failure count and pushes the next eligible time
// out exponentially: base * 2^(failures-1), capped.
func (b *backoffStore) RecordFailure(ctx context.Context, eventID int64, part int, reason string) error {
	var failures int
	err := b.db.QueryRowContext(ctx, `
		SELECT failure_count FROM search_backoff
		WHERE event_id = ? AND part_number = ?`, eventID, part).Scan(&failures)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read search backoff: %w", err)
	}
	failures++

	wait := b.base
	for i := 1; i < failures && wait < b.max; i++ {
		wait *= 2
	}
	if wait > b.max {
		wait = b.max
	}

	now := time.Now()
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO search_backoff (event_id, part_number, last_attempt, last_failure_reason, failure_count, next_eligible_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id, part_number) DO UPDATE SET
			last_attempt = excluded.last_attempt,
			last_failure_reason = excluded.last_failure_reason,
			failure_count = excluded.failure_count,
			next_eligible_at = excluded.next_eligible_at`,
		eventID, part, now, reason, failures, now.Add(wait))
	if err != nil {
		return fmt.Errorf("failed to record search failure: %w", err)
	}
	return nil
}

// Reset clears failure state after a successful dispatch.
func (b *backoffStore) Reset(ctx context.Context, eventID int64, part int) error {
	_, err := b.db.ExecContext(ctx, `
		DELETE FROM search_backoff WHERE event_id = ? AND part_number = ?`, eventID, part)
	if err != nil {
		return fmt.Errorf("failed to reset search backoff: %w", err)
	}
	return nil
}
