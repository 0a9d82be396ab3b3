// Package repository defines the persistence interfaces the service layer
// depends on. Concrete implementations live in subpackages (sqlite).
//
// Services receive these interfaces — never *sqlite.DB directly — so tests
// can inject in-memory fakes and the storage backend can be swapped without
// touching business logic.
package repository

import (
	"context"

	"github.com/sakif/gitstats/internal/model"
)

// AccountRepository persists one record per linked GitHub identity.
type AccountRepository interface {
	// Upsert inserts the account on first login or, when a row with the same
	// GitHubID exists, overwrites its login, avatar, and access token. The
	// internal ID and CreatedAt of an existing row are preserved; the
	// caller's struct is updated in place with the canonical row.
	Upsert(ctx context.Context, account *model.Account) error

	// GetByID returns the account with the given internal ID, or an error
	// wrapping apperror.ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Account, error)
}

// StatRepository persists the per-repository activity counters.
type StatRepository interface {
	// UpsertStat atomically inserts or replaces the row for
	// (stat.AccountID, stat.Repository). Counters are overwritten, never
	// accumulated. Safe under concurrent calls: the UNIQUE constraint plus
	// single-statement conflict handling guarantee at most one row per pair.
	UpsertStat(ctx context.Context, stat *model.RepositoryStat) error

	// ListByAccount returns all rows for the account, most recently
	// updated first.
	ListByAccount(ctx context.Context, accountID string) ([]model.RepositoryStat, error)
}
