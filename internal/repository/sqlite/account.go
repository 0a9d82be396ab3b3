package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/gitstats/internal/apperror"
	"github.com/sakif/gitstats/internal/model"
	"github.com/sakif/gitstats/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

// Upsert inserts or updates an account based on its GitHub ID.
//
// NATIVE UPSERT (INSERT ... ON CONFLICT DO UPDATE):
// We let SQLite resolve the conflict on the github_id UNIQUE constraint in a
// single atomic statement, instead of SELECT-then-INSERT/UPDATE in Go code.
// Two concurrent logins for the same GitHub account therefore can never
// create two rows or interleave into a lost update.
//
// On conflict, ONLY the mutable fields are overwritten: login, avatar, and
// the access token (GitHub may rotate or re-scope the token on each login,
// and a stale token must never be retained). The internal id and created_at
// of the existing row are kept.
//
// After the statement we SELECT the row back by github_id to populate the
// caller's struct with the canonical id and timestamps — the freshly
// generated xid is discarded if the row already existed.
func (db *DB) Upsert(ctx context.Context, account *model.Account) error {
	now := time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, github_id, login, avatar_url, access_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(github_id) DO UPDATE SET
			login        = excluded.login,
			avatar_url   = excluded.avatar_url,
			access_token = excluded.access_token,
			updated_at   = excluded.updated_at`,
		xid.New().String(),
		account.GitHubID,
		account.Login,
		account.AvatarURL,
		account.AccessToken,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting account (githubID=%d): %w", account.GitHubID, err)
	}

	// Read back the canonical row — id and created_at come from the DB,
	// not from whatever this call happened to generate.
	stored, err := db.getAccountByGitHubID(ctx, account.GitHubID)
	if err != nil {
		return fmt.Errorf("sqlite: reading back account (githubID=%d): %w", account.GitHubID, err)
	}
	*account = *stored

	return nil
}

// GetByID retrieves an account by its internal ID.
// Returns apperror.ErrNotFound if no account exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return db.scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, avatar_url, access_token, created_at, updated_at
		 FROM accounts WHERE id = ?`,
		id,
	), "account", id)
}

// getAccountByGitHubID looks an account up by the upstream natural key.
// Only used internally by Upsert's read-back; the API never exposes it.
func (db *DB) getAccountByGitHubID(ctx context.Context, githubID int64) (*model.Account, error) {
	return db.scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, avatar_url, access_token, created_at, updated_at
		 FROM accounts WHERE github_id = ?`,
		githubID,
	), "account", fmt.Sprintf("github:%d", githubID))
}

func (db *DB) scanAccount(row *sql.Row, resource, id string) (*model.Account, error) {
	var a model.Account

	err := row.Scan(
		&a.ID,
		&a.GitHubID,
		&a.Login,
		&a.AvatarURL,
		&a.AccessToken,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound(resource, id)
		}
		return nil, fmt.Errorf("sqlite: getting %s %s: %w", resource, id, err)
	}

	return &a, nil
}
