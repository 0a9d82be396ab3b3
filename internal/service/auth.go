// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository / Gateway     → database and GitHub API access
//
// AuthService owns the login flow. It sits between the HTTP handlers and the
// OAuth/JWT/persistence collaborators:
//
//	AuthHandler (HTTP) → AuthService → CodeExchanger (OAuth)
//	                                 → gateway.ActivityFetcher (identity)
//	                                 → repository.AccountRepository (DB)
//	                                 → auth.TokenService (JWT)
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/gitstats/internal/auth"
	"github.com/sakif/gitstats/internal/gateway"
	"github.com/sakif/gitstats/internal/model"
	"github.com/sakif/gitstats/internal/repository"
)

// CodeExchanger trades an OAuth authorization code for an access token.
// *auth.GitHubProvider is the production implementation; tests inject a fake.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (string, error)
}

// AuthService handles the authentication business logic.
type AuthService struct {
	exchanger CodeExchanger
	fetcher   gateway.ActivityFetcher
	accounts  repository.AccountRepository
	tokens    *auth.TokenService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewAuthService(
	exchanger CodeExchanger,
	fetcher gateway.ActivityFetcher,
	accounts repository.AccountRepository,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		exchanger: exchanger,
		fetcher:   fetcher,
		accounts:  accounts,
		tokens:    tokens,
		logger:    logger,
	}
}

// AuthResult is returned by Login. It bundles the account and the issued JWT
// so the handler can build the success redirect in one step.
type AuthResult struct {
	Account *model.Account
	Token   string
}

// Login completes the OAuth callback: code → credential → identity →
// account upsert → session token.
//
// ORDERING MATTERS:
// The account write happens strictly AFTER the identity fetch succeeds. A
// failure anywhere in the chain aborts the whole flow without creating a
// partial account record — there is nothing to roll back because nothing
// was written yet. None of the steps is retried here; the user just logs
// in again.
//
// On every successful login the stored credential, login, and avatar are
// overwritten: GitHub may have rotated or re-scoped the token, and stale
// values must never be retained.
func (s *AuthService) Login(ctx context.Context, code string) (*AuthResult, error) {
	if code == "" {
		return nil, fmt.Errorf("service/auth: authorization code must not be empty")
	}

	accessToken, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/auth: exchanging code: %w", err)
	}

	viewer, err := s.fetcher.FetchViewer(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("service/auth: resolving identity: %w", err)
	}

	// Build the account from the GitHub profile. The repository's Upsert
	// fills in the internal ID and timestamps (preserving both when the
	// GitHub identity is already linked).
	account := &model.Account{
		GitHubID:    viewer.ID,
		Login:       viewer.Login,
		AvatarURL:   viewer.AvatarURL,
		AccessToken: accessToken,
	}
	if err := s.accounts.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("service/auth: upserting account (githubID=%d): %w", viewer.ID, err)
	}

	s.logger.Info("account authenticated via GitHub",
		slog.String("accountID", account.ID),
		slog.String("login", account.Login),
	)

	token, err := s.tokens.Generate(account.ID, account.Login)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating session token for account %s: %w", account.ID, err)
	}

	return &AuthResult{
		Account: account,
		Token:   token,
	}, nil
}

// GetAccountByID returns the account for the given internal ID.
//
// Used by the /api/auth/me handler after the middleware has validated the
// session token. Returns an error wrapping apperror.ErrNotFound when the
// account has since vanished — callers treat that as an invalid session,
// not as a distinct not-found condition.
func (s *AuthService) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: account ID must not be empty")
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching account %s: %w", id, err)
	}

	return account, nil
}
