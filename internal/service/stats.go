package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/gitstats/internal/apperror"
	"github.com/sakif/gitstats/internal/gateway"
	"github.com/sakif/gitstats/internal/model"
	"github.com/sakif/gitstats/internal/repository"
)

// StatsService synchronises and reads per-repository activity counters.
//
// The sync path (SyncRepository) is the one piece of this system with real
// state-transition logic: fetch upstream truth, reduce it, and replace the
// persisted row. The read path (ListStats) is a pure read-and-reduce over
// whatever the sync path last persisted — no caching, no upstream calls.
type StatsService struct {
	fetcher gateway.ActivityFetcher
	stats   repository.StatRepository
	logger  *slog.Logger
}

// NewStatsService creates a StatsService.
func NewStatsService(fetcher gateway.ActivityFetcher, stats repository.StatRepository, logger *slog.Logger) *StatsService {
	return &StatsService{
		fetcher: fetcher,
		stats:   stats,
		logger:  logger,
	}
}

// SyncRepository fetches the account's contribution totals for one
// repository from GitHub and persists them, replacing any previous counters.
//
// AGGREGATION RULES (matching GitHub's own accounting):
//   - The contributor entry is matched by case-sensitive exact login.
//     KNOWN LIMITATION: the login is a fragile join key — it changes on
//     rename and is compared case-sensitively because that is what the
//     upstream payload gives us. GitHub's stable numeric ID would be the
//     robust key, but exact-login matching is kept for compatibility with
//     upstream semantics.
//   - Lines added/deleted are the sums over all weekly buckets.
//   - The commit count is the contributor's reported total, NOT a re-derived
//     sum of the weeks.
//   - No matching contributor (or an empty contributor list) is a normal
//     outcome: the account simply has no commits there, and an all-zero row
//     is persisted.
//
// The write happens only after the full aggregation succeeds, so an upstream
// failure can never corrupt or partially overwrite a previously persisted
// row. The upsert makes the whole operation idempotent — callers are free to
// retry it.
func (s *StatsService) SyncRepository(ctx context.Context, account *model.Account, owner, repo string) (*model.RepositoryStat, error) {
	owner = strings.TrimSpace(owner)
	repo = strings.TrimSpace(repo)
	if owner == "" {
		return nil, apperror.ValidationFailed("owner", "repository owner is required")
	}
	if repo == "" {
		return nil, apperror.ValidationFailed("repo", "repository name is required")
	}
	fullName := owner + "/" + repo

	contributors, err := s.fetcher.FetchContributorStats(ctx, account.AccessToken, owner, repo)
	if err != nil {
		s.logger.Error("stats sync: upstream fetch failed",
			slog.String("accountID", account.ID),
			slog.String("repository", fullName),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("failed to fetch repository stats", err)
	}

	stat := &model.RepositoryStat{
		AccountID:  account.ID,
		Repository: fullName,
	}
	for _, c := range contributors {
		if c.Login != account.Login {
			continue
		}
		stat.CommitCount = c.TotalCommits
		for _, week := range c.Weeks {
			stat.LinesAdded += week.Additions
			stat.LinesDeleted += week.Deletions
		}
		break
	}

	if err := s.stats.UpsertStat(ctx, stat); err != nil {
		s.logger.Error("stats sync: persistence failed",
			slog.String("accountID", account.ID),
			slog.String("repository", fullName),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("syncing stats for %s: %w", fullName, err)
	}

	s.logger.Info("repository stats synced",
		slog.String("accountID", account.ID),
		slog.String("repository", fullName),
		slog.Int("linesAdded", stat.LinesAdded),
		slog.Int("linesDeleted", stat.LinesDeleted),
		slog.Int("commitCount", stat.CommitCount),
	)

	return stat, nil
}

// ListStats returns all persisted rows for the account, most recently synced
// first, together with the elementwise totals across them.
func (s *StatsService) ListStats(ctx context.Context, accountID string) ([]model.RepositoryStat, model.StatTotals, error) {
	var totals model.StatTotals

	if accountID == "" {
		return nil, totals, apperror.ValidationFailed("accountID", "account ID is required")
	}

	stats, err := s.stats.ListByAccount(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to list stats",
			slog.String("accountID", accountID),
			slog.String("error", err.Error()),
		)
		return nil, totals, fmt.Errorf("listing stats: %w", err)
	}

	for _, stat := range stats {
		totals.LinesAdded += stat.LinesAdded
		totals.LinesDeleted += stat.LinesDeleted
		totals.CommitCount += stat.CommitCount
	}

	return stats, totals, nil
}

// ListRepositories is a pass-through to the upstream repository listing for
// the account — nothing is persisted, the gateway already returns the
// trimmed shape the API exposes.
func (s *StatsService) ListRepositories(ctx context.Context, account *model.Account) ([]gateway.Repository, error) {
	repos, err := s.fetcher.FetchRepositories(ctx, account.AccessToken)
	if err != nil {
		s.logger.Error("failed to list repositories",
			slog.String("accountID", account.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("failed to fetch repositories", err)
	}
	return repos, nil
}
