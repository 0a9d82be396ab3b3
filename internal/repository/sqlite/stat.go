package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/gitstats/internal/model"
	"github.com/sakif/gitstats/internal/repository"
)

// compile-time check that *DB implements repository.StatRepository
var _ repository.StatRepository = (*DB)(nil)

// UpsertStat atomically inserts or replaces the stats row for
// (stat.AccountID, stat.Repository).
//
// WHY A SINGLE ON CONFLICT STATEMENT AND NOT READ-THEN-WRITE?
// Two concurrent syncs of the same repository would race between the read
// and the write, and one of them would either insert a duplicate row or
// fail on the UNIQUE constraint. With ON CONFLICT the database serialises
// the two writes itself: both land on the same row, last writer wins, and
// since both carry GitHub's current totals (not deltas) the outcome is
// identical either way. That is what makes repeated or retried syncs
// idempotent.
//
// Counters are REPLACED on conflict — the upstream provider's totals are
// the source of truth, so there is nothing to accumulate.
func (db *DB) UpsertStat(ctx context.Context, stat *model.RepositoryStat) error {
	now := time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO repo_stats (id, account_id, repository, lines_added, lines_deleted, commit_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account_id, repository) DO UPDATE SET
			lines_added   = excluded.lines_added,
			lines_deleted = excluded.lines_deleted,
			commit_count  = excluded.commit_count,
			updated_at    = excluded.updated_at`,
		xid.New().String(),
		stat.AccountID,
		stat.Repository,
		stat.LinesAdded,
		stat.LinesDeleted,
		stat.CommitCount,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting stats for %s/%s: %w", stat.AccountID, stat.Repository, err)
	}

	// Read back the canonical row so the caller gets the stable id and the
	// authoritative updated_at, whichever write won.
	var stored model.RepositoryStat
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, account_id, repository, lines_added, lines_deleted, commit_count, updated_at
		 FROM repo_stats WHERE account_id = ? AND repository = ?`,
		stat.AccountID, stat.Repository,
	).Scan(
		&stored.ID,
		&stored.AccountID,
		&stored.Repository,
		&stored.LinesAdded,
		&stored.LinesDeleted,
		&stored.CommitCount,
		&stored.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: reading back stats for %s/%s: %w", stat.AccountID, stat.Repository, err)
	}
	*stat = stored

	return nil
}

// ListByAccount returns all persisted stats rows for the account,
// most recently synced first.
func (db *DB) ListByAccount(ctx context.Context, accountID string) ([]model.RepositoryStat, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, account_id, repository, lines_added, lines_deleted, commit_count, updated_at
		 FROM repo_stats
		 WHERE account_id = ?
		 ORDER BY updated_at DESC, repository ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing stats for account %s: %w", accountID, err)
	}
	// rows MUST be closed, or the connection leaks back into the pool dirty.
	defer rows.Close()

	// Initialise to an empty slice (not nil) so the JSON response is []
	// rather than null when the account has no synced repositories yet.
	stats := []model.RepositoryStat{}
	for rows.Next() {
		var s model.RepositoryStat
		if err := rows.Scan(
			&s.ID,
			&s.AccountID,
			&s.Repository,
			&s.LinesAdded,
			&s.LinesDeleted,
			&s.CommitCount,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning stats row: %w", err)
		}
		stats = append(stats, s)
	}

	// rows.Err() reports errors that occurred DURING iteration
	// (e.g. the connection dropped halfway through).
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating stats rows: %w", err)
	}

	return stats, nil
}
