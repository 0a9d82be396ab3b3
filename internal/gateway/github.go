// Package gateway is the upstream activity client — the only code that talks
// to the GitHub API. It abstracts the REST client behind the ActivityFetcher
// interface so the service layer can be tested without network access.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

// Viewer is the authenticated GitHub user behind an access token.
// GitHub returns a much larger object from /user — we only carry the fields
// the account store needs.
type Viewer struct {
	ID        int64  // GitHub's numeric user ID — stable, never changes
	Login     string // GitHub username, e.g. "sakif"
	AvatarURL string // Profile picture URL
}

// Repository is the trimmed repository listing entry the API exposes.
type Repository struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"fullName"`
	Private     bool      `json:"private"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WeeklyActivity is one week's line counts for a single contributor.
type WeeklyActivity struct {
	Additions int
	Deletions int
}

// ContributorActivity is one contributor's activity in one repository, as
// reported by GitHub's contributor-statistics endpoint: an overall commit
// total plus per-week line counts.
type ContributorActivity struct {
	Login        string
	TotalCommits int
	Weeks        []WeeklyActivity
}

// ActivityFetcher defines the behaviour of a gateway for fetching identity
// and activity data from GitHub on behalf of one account.
//
// Every method takes the credential explicitly. There is deliberately no
// "configured token" on the gateway itself: each request carries its own
// account's token, so concurrent requests for different accounts can never
// bleed credentials into each other through shared client state.
type ActivityFetcher interface {
	FetchViewer(ctx context.Context, token string) (*Viewer, error)
	FetchRepositories(ctx context.Context, token string) ([]Repository, error)
	FetchContributorStats(ctx context.Context, token, owner, repo string) ([]ContributorActivity, error)
}

// Request hygiene for the upstream calls.
//
// The request timeout is the system's guard against a stalled GitHub call
// pinning a request goroutine forever. The rate-limit waiter will sleep
// through short secondary-rate-limit windows, but only up to sleepLimit —
// anything longer fails fast instead of eating the whole timeout budget.
const (
	requestTimeout = 30 * time.Second
	sleepLimit     = 10 * time.Second
)

// GitHubGateway is the concrete ActivityFetcher backed by google/go-github.
type GitHubGateway struct {
	rateLimiter http.RoundTripper
	logger      *slog.Logger

	// baseURL overrides the GitHub API root. Left nil in production; tests
	// point it at a local httptest server.
	baseURL *url.URL
}

var _ ActivityFetcher = (*GitHubGateway)(nil)

// NewGitHubGateway creates the gateway.
//
// The secondary-rate-limit waiter is a RoundTripper and is safe to share:
// it is built once here and reused under every per-call client, so all
// outbound GitHub traffic funnels through the same rate-limit handling.
func NewGitHubGateway(logger *slog.Logger) (*GitHubGateway, error) {
	waiter, err := github_ratelimit.NewRateLimitWaiter(nil,
		github_ratelimit.WithSingleSleepLimit(sleepLimit, nil))
	if err != nil {
		return nil, fmt.Errorf("gateway: creating rate limit waiter: %w", err)
	}
	return &GitHubGateway{
		rateLimiter: waiter,
		logger:      logger,
	}, nil
}

// client builds a go-github client authenticated as the given token.
//
// Constructing a client per call is cheap (it's a couple of struct
// allocations, no network), and it is what keeps credentials per-request:
// the token lives in this client's oauth2 transport and nowhere else.
func (g *GitHubGateway) client(token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   g.rateLimiter,
			Source: ts,
		},
		Timeout: requestTimeout,
	}
	client := github.NewClient(httpClient)
	if g.baseURL != nil {
		client.BaseURL = g.baseURL
	}
	return client
}

// FetchViewer resolves the identity behind an access token via GET /user.
// Used once per login, right after the OAuth code exchange.
func (g *GitHubGateway) FetchViewer(ctx context.Context, token string) (*Viewer, error) {
	user, _, err := g.client(token).Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("gateway: fetching authenticated user: %w", err)
	}

	if user.GetID() == 0 {
		return nil, fmt.Errorf("gateway: GitHub returned an invalid user (ID = 0)")
	}

	return &Viewer{
		ID:        user.GetID(),
		Login:     user.GetLogin(),
		AvatarURL: user.GetAvatarURL(),
	}, nil
}

// FetchRepositories lists the repositories the token's user has access to,
// most recently updated first, following pagination to the end.
func (g *GitHubGateway) FetchRepositories(ctx context.Context, token string) ([]Repository, error) {
	client := g.client(token)
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var repos []Repository
	for {
		page, resp, err := client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("gateway: listing repositories: %w", err)
		}
		for _, r := range page {
			repos = append(repos, Repository{
				ID:          r.GetID(),
				Name:        r.GetName(),
				FullName:    r.GetFullName(),
				Private:     r.GetPrivate(),
				URL:         r.GetHTMLURL(),
				Description: r.GetDescription(),
				UpdatedAt:   r.GetUpdatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Debug("gateway: fetching next repository page", slog.Int("page", resp.NextPage))
	}

	return repos, nil
}

// FetchContributorStats returns every contributor's activity for one
// repository: commit total plus weekly line counts.
//
// GITHUB'S 202 BEHAVIOUR:
// The first request for a repository's contributor stats may return
// 202 Accepted while GitHub computes them in the background (go-github
// surfaces this as *github.AcceptedError). That is a transient condition,
// not data — we report it as an error so the caller retries the sync later,
// leaving any previously persisted row untouched.
func (g *GitHubGateway) FetchContributorStats(ctx context.Context, token, owner, repo string) ([]ContributorActivity, error) {
	stats, _, err := g.client(token).Repositories.ListContributorsStats(ctx, owner, repo)
	if err != nil {
		if _, ok := err.(*github.AcceptedError); ok {
			return nil, fmt.Errorf("gateway: contributor stats for %s/%s are still being computed, retry shortly", owner, repo)
		}
		return nil, fmt.Errorf("gateway: fetching contributor stats for %s/%s: %w", owner, repo, err)
	}

	// A repository with no commits has no contributors — an empty slice is
	// a normal answer, the aggregator turns it into an all-zero stats row.
	activity := make([]ContributorActivity, 0, len(stats))
	for _, cs := range stats {
		ca := ContributorActivity{
			Login:        cs.GetAuthor().GetLogin(),
			TotalCommits: cs.GetTotal(),
			Weeks:        make([]WeeklyActivity, 0, len(cs.Weeks)),
		}
		for _, week := range cs.Weeks {
			ca.Weeks = append(ca.Weeks, WeeklyActivity{
				Additions: week.GetAdditions(),
				Deletions: week.GetDeletions(),
			})
		}
		activity = append(activity, ca)
	}

	return activity, nil
}
