package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/gitstats/internal/model"
	"github.com/sakif/gitstats/internal/repository"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "account", acc), ANY package that knows the string
// "account" can read or shadow your value. Using a package-private type
// prevents collisions: only THIS package can create a key of type contextKey,
// so only this package can read or write account values in the context.
type contextKey string

const accountKey contextKey = "account"

// RequireAuth is the authorization gate for protected routes.
//
// It reads the JWT from the "Authorization: Bearer <token>" header, validates
// signature and expiry, then loads the account FRESH from the store — not
// just from the token claims — so a credential rotated by a newer login is
// honored immediately. The full account (including its current GitHub access
// token, which downstream sync calls need) is stored in the request context.
//
// Every failure mode returns 401: no header, malformed header, bad signature,
// expired token, or an account that no longer exists. From the caller's
// perspective these are all the same thing — the session is invalid. None of
// them may surface as a 500.
func RequireAuth(tokens *TokenService, accounts repository.AccountRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := tokens.Validate(tokenStr)
			if err != nil {
				logger.Debug("auth: token rejected", slog.String("error", err.Error()))
				unauthorized(w)
				return
			}

			// Fresh load: the token only proves "this bearer is account X";
			// the record itself (login, avatar, access token) may have
			// changed since issuance, and the account may be gone entirely.
			account, err := accounts.GetByID(r.Context(), claims.Subject)
			if err != nil {
				logger.Debug("auth: account lookup failed",
					slog.String("accountID", claims.Subject),
					slog.String("error", err.Error()),
				)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAccount(r.Context(), account)))
		})
	}
}

// ContextWithAccount returns a context carrying the authenticated account.
// RequireAuth uses it for every protected request; handler tests use it to
// stand in for the middleware.
func ContextWithAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFromContext retrieves the authenticated account from the request context.
//
// Returns (nil, false) if the request did not pass through RequireAuth.
//
// Usage in handlers:
//
//	account, ok := auth.AccountFromContext(r.Context())
//	if !ok {
//	    // should never happen on a protected route
//	}
func AccountFromContext(ctx context.Context) (*model.Account, bool) {
	account, ok := ctx.Value(accountKey).(*model.Account)
	return account, ok && account != nil
}

// bearerToken extracts the JWT from the Authorization header.
// Returns ("", false) if the header is absent or not in "Bearer <token>" form.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
}
