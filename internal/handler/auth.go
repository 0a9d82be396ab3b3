package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/rs/xid"
	"github.com/sakif/gitstats/internal/auth"
	"github.com/sakif/gitstats/internal/service"
)

// AuthHandler manages the GitHub OAuth login flow and session lookups.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → receive the code, run the login flow, redirect
//     the frontend with the issued session token
//   - HandleMe             → return the authenticated account's public profile
//
// The handler owns only HTTP concerns (cookies, redirects, query params);
// the actual exchange/upsert/token-minting lives in service.AuthService.
type AuthHandler struct {
	github     *auth.GitHubProvider
	authSvc    *service.AuthService
	successURL string // frontend destination that receives ?token=<jwt>
	failureURL string // frontend destination for any login failure, no detail attached
	logger     *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(
	github *auth.GitHubProvider,
	authSvc *service.AuthService,
	successURL, failureURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		github:     github,
		authSvc:    authSvc,
		successURL: successURL,
		failureURL: failureURL,
		logger:     logger,
	}
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /api/auth/github
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived cookie.
// When GitHub calls back, HandleGitHubCallback verifies the state matches.
// This proves the callback was initiated by this server, not a CSRF attacker.
//
// The state cookie is:
//   - HttpOnly: JavaScript can't read it
//   - SameSite=Lax: not sent on cross-site POSTs (extra CSRF protection)
//   - 10-minute expiry: long enough for the user to approve, short enough to limit risk
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	// Generate a random, unguessable state value
	state := xid.New().String()

	// Store it in a cookie so we can verify it on callback
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// Redirect the browser to GitHub
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Run the login flow: exchange code → resolve identity → upsert account
//     → mint the 24h session token
//  3. Redirect the frontend to its login-success page with ?token=<jwt>
//
// EVERY failure path redirects to the generic login-error page. The cause is
// logged server-side but never leaks into the redirect URL — a failed login
// looks identical to the caller no matter what broke.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		h.redirectFailure(w, r)
		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch",
			slog.String("expected", stateCookie.Value),
			slog.String("got", r.URL.Query().Get("state")),
		)
		h.redirectFailure(w, r)
		return
	}

	// Clear the state cookie — it's single-use
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// Check if GitHub sent an error (user denied authorization)
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("error", errParam),
		)
		h.redirectFailure(w, r)
		return
	}

	// --- Step 2: Run the login flow ---
	code := r.URL.Query().Get("code")
	if code == "" {
		h.logger.Warn("auth callback: missing code parameter")
		h.redirectFailure(w, r)
		return
	}

	result, err := h.authSvc.Login(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		h.redirectFailure(w, r)
		return
	}

	// --- Step 3: Hand the session token to the frontend ---
	// The token travels as a query parameter so the SPA can store it and
	// send it back as a Bearer header on API calls.
	http.Redirect(w, r, h.successURL+"?token="+url.QueryEscape(result.Token), http.StatusSeeOther)
}

func (h *AuthHandler) redirectFailure(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.failureURL, http.StatusSeeOther)
}

// HandleMe returns the currently authenticated account's public profile.
//
// HTTP: GET /api/auth/me
// Auth: Required (RequireAuth middleware loads the account into context)
//
// The response marshals model.Account, whose AccessToken carries `json:"-"` —
// the stored GitHub credential can never appear here.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		// Should never happen on a RequireAuth-protected route, but be safe.
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, account)
}
