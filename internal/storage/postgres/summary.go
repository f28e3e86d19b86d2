package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/skirmish/internal/arena"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// SummaryRepository persists finished-encounter summaries. It satisfies
// arena.SummarySink, so the manager can hand summaries straight to it.
type SummaryRepository struct {
	db *pgxpool.Pool
}

var _ arena.SummarySink = (*SummaryRepository)(nil)

// NewSummaryRepository creates a SummaryRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSummaryRepository(db *pgxpool.Pool) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Save inserts one encounter summary. Saving the same summary ID twice is
// treated as already done and returns nil.
//
// Precondition: sum.ID must be a valid UUID string.
// Postcondition: The summary row exists in encounter_summaries.
func (r *SummaryRepository) Save(ctx context.Context, sum arena.Summary) error {
	// A wiped-out roster leaves Survivors nil, which pgx would encode as
	// NULL; the column wants an empty array.
	survivors := sum.Survivors
	if survivors == nil {
		survivors = []string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO encounter_summaries
		   (id, session_id, group_id, reason, rounds, combatants, survivors, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sum.ID, sum.SessionID, sum.GroupID, string(sum.Reason),
		sum.Rounds, sum.Combatants, survivors,
		sum.StartedAt, sum.EndedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("inserting encounter summary: %w", err)
	}
	return nil
}

// ListRecent returns up to limit summaries, most recently ended first.
//
// Precondition: limit must be positive.
// Postcondition: Returns at most limit summaries ordered by ended_at descending.
func (r *SummaryRepository) ListRecent(ctx context.Context, limit int) ([]arena.Summary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, group_id, reason, rounds, combatants, survivors, started_at, ended_at
		 FROM encounter_summaries
		 ORDER BY ended_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying encounter summaries: %w", err)
	}
	defer rows.Close()

	var out []arena.Summary
	for rows.Next() {
		var sum arena.Summary
		var reason string
		if err := rows.Scan(
			&sum.ID, &sum.SessionID, &sum.GroupID, &reason,
			&sum.Rounds, &sum.Combatants, &sum.Survivors,
			&sum.StartedAt, &sum.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning encounter summary: %w", err)
		}
		sum.Reason = encounter.EndReason(reason)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading encounter summaries: %w", err)
	}
	return out, nil
}

// BySession returns all summaries recorded for one session, most recently
// ended first.
//
// Precondition: sessionID must be non-empty.
func (r *SummaryRepository) BySession(ctx context.Context, sessionID string) ([]arena.Summary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, group_id, reason, rounds, combatants, survivors, started_at, ended_at
		 FROM encounter_summaries
		 WHERE session_id = $1
		 ORDER BY ended_at DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session summaries: %w", err)
	}
	defer rows.Close()

	var out []arena.Summary
	for rows.Next() {
		var sum arena.Summary
		var reason string
		if err := rows.Scan(
			&sum.ID, &sum.SessionID, &sum.GroupID, &reason,
			&sum.Rounds, &sum.Combatants, &sum.Survivors,
			&sum.StartedAt, &sum.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning session summary: %w", err)
		}
		sum.Reason = encounter.EndReason(reason)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading session summaries: %w", err)
	}
	return out, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
