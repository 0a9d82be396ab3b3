package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/gitstats/internal/apperror"
	"github.com/sakif/gitstats/internal/gateway"
	"github.com/sakif/gitstats/internal/model"

	"github.com/rs/xid"
)

// fakeStatStore is an in-memory repository.StatRepository with the same
// conflict key as the real one: one row per (account, repository).
type fakeStatStore struct {
	rows      []model.RepositoryStat // kept in insertion order
	upsertErr error
	listErr   error
}

func (f *fakeStatStore) UpsertStat(_ context.Context, stat *model.RepositoryStat) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for i := range f.rows {
		if f.rows[i].AccountID == stat.AccountID && f.rows[i].Repository == stat.Repository {
			stat.ID = f.rows[i].ID
			f.rows[i] = *stat
			return nil
		}
	}
	stat.ID = xid.New().String()
	f.rows = append(f.rows, *stat)
	return nil
}

func (f *fakeStatStore) ListByAccount(_ context.Context, accountID string) ([]model.RepositoryStat, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	stats := []model.RepositoryStat{}
	for _, row := range f.rows {
		if row.AccountID == accountID {
			stats = append(stats, row)
		}
	}
	return stats, nil
}

func newTestStatsService(fetcher *fakeFetcher, store *fakeStatStore) *StatsService {
	return NewStatsService(fetcher, store, testLogger())
}

func testAccount() *model.Account {
	return &model.Account{
		ID:          "acct-1",
		GitHubID:    42,
		Login:       "ada",
		AccessToken: "gho_secret",
	}
}

// =========================================================================
// SYNC TESTS
// =========================================================================

func TestSyncRepository_AggregatesWeeklyBuckets(t *testing.T) {
	fetcher := &fakeFetcher{
		activity: []gateway.ContributorActivity{
			{
				Login:        "someone-else",
				TotalCommits: 99,
				Weeks:        []gateway.WeeklyActivity{{Additions: 1000, Deletions: 1000}},
			},
			{
				Login:        "ada",
				TotalCommits: 7, // Reported total, deliberately not the sum of weekly commits
				Weeks: []gateway.WeeklyActivity{
					{Additions: 10, Deletions: 2},
					{Additions: 5, Deletions: 1},
					{Additions: 0, Deletions: 0}, // Idle weeks contribute nothing
				},
			},
		},
	}
	store := &fakeStatStore{}
	svc := newTestStatsService(fetcher, store)

	stat, err := svc.SyncRepository(context.Background(), testAccount(), "ada", "engine")
	if err != nil {
		t.Fatalf("SyncRepository() error = %v", err)
	}

	if stat.Repository != "ada/engine" {
		t.Errorf("repository = %q, want %q", stat.Repository, "ada/engine")
	}
	if stat.LinesAdded != 15 {
		t.Errorf("linesAdded = %d, want 15", stat.LinesAdded)
	}
	if stat.LinesDeleted != 3 {
		t.Errorf("linesDeleted = %d, want 3", stat.LinesDeleted)
	}
	if stat.CommitCount != 7 {
		t.Errorf("commitCount = %d, want the reported total 7", stat.CommitCount)
	}

	// The sync must use the account's own stored credential upstream.
	if fetcher.gotToken != "gho_secret" {
		t.Errorf("upstream fetch used token %q, want the account's stored token", fetcher.gotToken)
	}
	if len(store.rows) != 1 {
		t.Fatalf("store holds %d rows, want 1", len(store.rows))
	}
}

func TestSyncRepository_LoginMatchIsExact(t *testing.T) {
	// "Ada" is not "ada" — contributors that differ only in case must not
	// be attributed to the account.
	fetcher := &fakeFetcher{
		activity: []gateway.ContributorActivity{
			{Login: "Ada", TotalCommits: 50, Weeks: []gateway.WeeklyActivity{{Additions: 500, Deletions: 100}}},
		},
	}
	store := &fakeStatStore{}
	svc := newTestStatsService(fetcher, store)

	stat, err := svc.SyncRepository(context.Background(), testAccount(), "ada", "engine")
	if err != nil {
		t.Fatalf("SyncRepository() error = %v", err)
	}
	if stat.LinesAdded != 0 || stat.LinesDeleted != 0 || stat.CommitCount != 0 {
		t.Errorf("case-mismatched contributor was counted: %+v", stat)
	}
}

func TestSyncRepository_NoContributionPersistsZeroRow(t *testing.T) {
	// The account never committed here. That's a normal outcome — an
	// all-zero row is written so the dashboard can show the repository.
	fetcher := &fakeFetcher{activity: []gateway.ContributorActivity{}}
	store := &fakeStatStore{}
	svc := newTestStatsService(fetcher, store)

	stat, err := svc.SyncRepository(context.Background(), testAccount(), "other", "repo")
	if err != nil {
		t.Fatalf("SyncRepository() error = %v", err)
	}
	if stat.LinesAdded != 0 || stat.LinesDeleted != 0 || stat.CommitCount != 0 {
		t.Errorf("expected an all-zero row, got %+v", stat)
	}
	if len(store.rows) != 1 {
		t.Fatalf("zero result was not persisted: %d rows", len(store.rows))
	}
}

func TestSyncRepository_Idempotent(t *testing.T) {
	fetcher := &fakeFetcher{
		activity: []gateway.ContributorActivity{
			{Login: "ada", TotalCommits: 3, Weeks: []gateway.WeeklyActivity{{Additions: 30, Deletions: 4}}},
		},
	}
	store := &fakeStatStore{}
	svc := newTestStatsService(fetcher, store)

	first, err := svc.SyncRepository(context.Background(), testAccount(), "ada", "engine")
	if err != nil {
		t.Fatalf("first SyncRepository() error = %v", err)
	}
	second, err := svc.SyncRepository(context.Background(), testAccount(), "ada", "engine")
	if err != nil {
		t.Fatalf("second SyncRepository() error = %v", err)
	}

	// Re-syncing replaces the row, it never duplicates it.
	if len(store.rows) != 1 {
		t.Fatalf("double sync produced %d rows, want 1", len(store.rows))
	}
	if second.ID != first.ID {
		t.Errorf("re-sync changed the row ID: %q → %q", first.ID, second.ID)
	}
	if second.LinesAdded != first.LinesAdded || second.CommitCount != first.CommitCount {
		t.Errorf("re-sync of unchanged data changed the counters: %+v vs %+v", first, second)
	}
}

func TestSyncRepository_UpstreamFailureLeavesStoreUntouched(t *testing.T) {
	fetcher := &fakeFetcher{
		activity: []gateway.ContributorActivity{
			{Login: "ada", TotalCommits: 3, Weeks: []gateway.WeeklyActivity{{Additions: 30, Deletions: 4}}},
		},
	}
	store := &fakeStatStore{}
	svc := newTestStatsService(fetcher, store)

	// Seed a good row, then make the next fetch fail.
	if _, err := svc.SyncRepository(context.Background(), testAccount(), "ada", "engine"); err != nil {
		t.Fatalf("seed SyncRepository() error = %v", err)
	}
	fetcher.statsErr = errors.New("502 from GitHub")

	_, err := svc.SyncRepository(context.Background(), testAccount(), "ada", "engine")
	if err == nil {
		t.Fatal("SyncRepository() should fail when the upstream fetch fails")
	}
	// Upstream failures surface as ErrUpstream so the handler maps them to 502.
	if !errors.Is(err, apperror.ErrUpstream) {
		t.Errorf("error should wrap apperror.ErrUpstream, got: %v", err)
	}

	// The previously persisted counters must survive the failed sync.
	if len(store.rows) != 1 || store.rows[0].LinesAdded != 30 {
		t.Errorf("failed sync corrupted the persisted row: %+v", store.rows)
	}
}

func TestSyncRepository_PersistenceFailureIsNotUpstream(t *testing.T) {
	fetcher := &fakeFetcher{activity: []gateway.ContributorActivity{}}
	store := &fakeStatStore{upsertErr: errors.New("database is locked")}
	svc := newTestStatsService(fetcher, store)

	_, err := svc.SyncRepository(context.Background(), testAccount(), "ada", "engine")
	if err == nil {
		t.Fatal("SyncRepository() should fail when the write fails")
	}
	// A local write failure is OUR fault (500), never blamed on GitHub (502).
	if errors.Is(err, apperror.ErrUpstream) {
		t.Errorf("persistence failure wrongly classified as upstream: %v", err)
	}
}

func TestSyncRepository_ValidatesPathSegments(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := &fakeStatStore{}
	svc := newTestStatsService(fetcher, store)

	tests := []struct {
		name  string
		owner string
		repo  string
	}{
		{name: "empty owner", owner: "", repo: "engine"},
		{name: "empty repo", owner: "ada", repo: ""},
		{name: "whitespace owner", owner: "   ", repo: "engine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SyncRepository(context.Background(), testAccount(), tt.owner, tt.repo)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("SyncRepository(%q, %q) error = %v, want validation failure", tt.owner, tt.repo, err)
			}
		})
	}
	if fetcher.statsCalls != 0 {
		t.Error("validation failures still reached the upstream fetcher")
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListStats_TotalsAreElementwiseSums(t *testing.T) {
	store := &fakeStatStore{
		rows: []model.RepositoryStat{
			{ID: "s1", AccountID: "acct-1", Repository: "ada/engine", LinesAdded: 15, LinesDeleted: 3, CommitCount: 7},
			{ID: "s2", AccountID: "acct-1", Repository: "ada/notes", LinesAdded: 100, LinesDeleted: 40, CommitCount: 12},
			{ID: "s3", AccountID: "someone-else", Repository: "x/y", LinesAdded: 999, LinesDeleted: 999, CommitCount: 999},
		},
	}
	svc := newTestStatsService(&fakeFetcher{}, store)

	stats, totals, err := svc.ListStats(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("ListStats() error = %v", err)
	}

	if len(stats) != 2 {
		t.Fatalf("ListStats() returned %d rows, want 2 (other accounts excluded)", len(stats))
	}
	if totals.LinesAdded != 115 || totals.LinesDeleted != 43 || totals.CommitCount != 19 {
		t.Errorf("totals = %+v, want {115 43 19}", totals)
	}

	// INVARIANT: totals are always derivable from the returned list.
	var check model.StatTotals
	for _, s := range stats {
		check.LinesAdded += s.LinesAdded
		check.LinesDeleted += s.LinesDeleted
		check.CommitCount += s.CommitCount
	}
	if check != totals {
		t.Errorf("totals %+v do not match the sum of the returned rows %+v", totals, check)
	}
}

func TestListStats_EmptyAccount(t *testing.T) {
	svc := newTestStatsService(&fakeFetcher{}, &fakeStatStore{})

	stats, totals, err := svc.ListStats(context.Background(), "acct-without-syncs")
	if err != nil {
		t.Fatalf("ListStats() error = %v", err)
	}
	if stats == nil {
		t.Error("ListStats() returned nil, want an empty slice (serialises as [])")
	}
	if len(stats) != 0 {
		t.Errorf("ListStats() returned %d rows, want 0", len(stats))
	}
	if (totals != model.StatTotals{}) {
		t.Errorf("totals = %+v, want all zeros", totals)
	}
}

func TestListRepositories_WrapsUpstreamFailure(t *testing.T) {
	fetcher := &fakeFetcher{reposErr: errors.New("rate limited")}
	svc := newTestStatsService(fetcher, &fakeStatStore{})

	_, err := svc.ListRepositories(context.Background(), testAccount())
	if !errors.Is(err, apperror.ErrUpstream) {
		t.Errorf("ListRepositories() error = %v, want apperror.ErrUpstream", err)
	}
}

func TestListRepositories_PassThrough(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []gateway.Repository{
			{ID: 1, Name: "engine", FullName: "ada/engine"},
			{ID: 2, Name: "notes", FullName: "ada/notes", Private: true},
		},
	}
	svc := newTestStatsService(fetcher, &fakeStatStore{})

	repos, err := svc.ListRepositories(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("ListRepositories() error = %v", err)
	}
	if len(repos) != 2 || repos[0].FullName != "ada/engine" {
		t.Errorf("ListRepositories() = %+v, want the gateway's listing unchanged", repos)
	}
	if fetcher.gotToken != "gho_secret" {
		t.Errorf("listing used token %q, want the account's stored token", fetcher.gotToken)
	}
}
