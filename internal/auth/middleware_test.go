package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sakif/gitstats/internal/apperror"
	"github.com/sakif/gitstats/internal/model"
)

// fakeAccountRepo is an in-memory repository.AccountRepository for
// middleware tests. Only GetByID matters here.
type fakeAccountRepo struct {
	accounts map[string]*model.Account
}

func (f *fakeAccountRepo) Upsert(_ context.Context, account *model.Account) error {
	f.accounts[account.ID] = account
	return nil
}

func (f *fakeAccountRepo) GetByID(_ context.Context, id string) (*model.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, apperror.NotFound("account", id)
	}
	return account, nil
}

// newGateFixture wires RequireAuth around a probe handler that records
// whether it ran and what account it saw in the context.
func newGateFixture(t *testing.T) (http.Handler, *TokenService, *fakeAccountRepo, *bool, **model.Account) {
	t.Helper()

	tokens := newTestTokenService(t)
	repo := &fakeAccountRepo{accounts: make(map[string]*model.Account)}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	var handlerRan bool
	var seenAccount *model.Account
	probe := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
		seenAccount, _ = AccountFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	gate := RequireAuth(tokens, repo, logger)(probe)
	return gate, tokens, repo, &handlerRan, &seenAccount
}

func TestRequireAuth_ValidToken(t *testing.T) {
	gate, tokens, repo, handlerRan, seenAccount := newGateFixture(t)

	repo.accounts["acct-1"] = &model.Account{
		ID:          "acct-1",
		GitHubID:    42,
		Login:       "ada",
		AccessToken: "gho_secret",
	}
	token, err := tokens.Generate("acct-1", "ada")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !*handlerRan {
		t.Fatal("protected handler did not run for a valid token")
	}

	// The gate must attach the FULL account — including the upstream
	// credential downstream sync calls need.
	if *seenAccount == nil {
		t.Fatal("AccountFromContext returned nothing inside the protected handler")
	}
	if (*seenAccount).ID != "acct-1" {
		t.Errorf("context account ID = %q, want %q", (*seenAccount).ID, "acct-1")
	}
	if (*seenAccount).AccessToken != "gho_secret" {
		t.Error("context account is missing the stored access token")
	}
}

// Every failure mode must yield 401 — never 500 — and must stop the chain
// before the protected handler runs.
func TestRequireAuth_RejectsInvalidRequests(t *testing.T) {
	gate, tokens, repo, handlerRan, _ := newGateFixture(t)

	repo.accounts["acct-1"] = &model.Account{ID: "acct-1", Login: "ada"}

	validToken, _ := tokens.Generate("acct-1", "ada")
	orphanToken, _ := tokens.Generate("acct-gone", "ghost")
	expiredToken, _ := tokens.GenerateWithDuration("acct-1", "ada", -1*time.Second)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no Authorization header", header: ""},
		{name: "not a Bearer header", header: "Basic dXNlcjpwYXNz"},
		{name: "Bearer with empty token", header: "Bearer "},
		{name: "malformed token", header: "Bearer this.is.garbage"},
		{name: "expired token", header: "Bearer " + expiredToken},
		{name: "token for a deleted account", header: "Bearer " + orphanToken},
		{name: "wrong prefix casing", header: "bearer " + validToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*handlerRan = false

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			gate.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if *handlerRan {
				t.Error("protected handler ran despite invalid authentication")
			}
		})
	}
}

func TestAccountFromContext_Anonymous(t *testing.T) {
	// A context that never went through RequireAuth has no account.
	account, ok := AccountFromContext(context.Background())
	if ok || account != nil {
		t.Errorf("AccountFromContext on empty context = (%v, %v), want (nil, false)", account, ok)
	}
}
