// Package auth provides the GitHub OAuth exchange, JWT session tokens, and
// the authentication middleware for the stats API.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. Browser hits /api/auth/github → redirected to GitHub's authorize page
// 2. GitHub calls back /api/auth/github/callback with a code
// 3. Server exchanges the code for an access token, fetches the GitHub
//    identity, and upserts the account (storing the token for later API calls)
// 4. Server issues a 24-hour JWT session token and redirects the frontend
//    to its login-success page with the token in the query string
// 5. On subsequent API calls, the client sends "Authorization: Bearer <jwt>";
//    middleware validates it and loads the account into the request context
//
// WHY JWT?
// JWT (JSON Web Token) is stateless — the server stores no session data.
// Everything needed (account ID, login, expiry) is inside the signed token,
// and the signature ensures nobody can tamper with it without the secret key.
// The flip side: there is no revocation list — a token stays valid until its
// expiry, which is why the lifetime is bounded at 24 hours.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionDuration is the fixed validity window of a session token.
// Issued at T, a token is accepted strictly before T+24h and rejected after.
const SessionDuration = 24 * time.Hour

const issuer = "gitstats"

// TokenService mints and verifies the session tokens that authorize API calls.
//
// It holds the HMAC secret used to sign and verify. The same secret must be
// used for both operations; it is process-wide configuration injected once at
// startup (see cmd/server/main.go) — never a mutable global.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// SessionClaims is the JWT payload. It embeds jwt.RegisteredClaims (Subject,
// ExpiresAt, IssuedAt, Issuer) and adds the account's display name.
//
// "sub" carries the internal account ID — the standard claim for identifying
// who the token belongs to. "login" is informational (the frontend shows it
// without a round-trip); authorization always goes through the fresh account
// load in the middleware, never through these claims alone.
type SessionClaims struct {
	Login string `json:"login"`
	jwt.RegisteredClaims
}

// Generate creates and signs a 24-hour session token for the given account.
//
// Signing algorithm: HS256 (HMAC-SHA256)
// - Symmetric: same key for signing and verifying
// - Fast and simple — good for single-server deployments
func (s *TokenService) Generate(accountID, login string) (string, error) {
	return s.GenerateWithDuration(accountID, login, SessionDuration)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Exposed for tests that need already-expired or nearly-expired tokens.
func (s *TokenService) GenerateWithDuration(accountID, login string, d time.Duration) (string, error) {
	now := time.Now()

	c := SessionClaims{
		Login: login,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	// jwt.NewWithClaims creates an unsigned token with the given algorithm.
	// SignedString(key) signs it and returns the complete JWT string.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns its claims.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (ExpiresAt is in the future)
//   - Issuer matches "gitstats" (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//
// ALGORITHM CONFUSION ATTACK:
// Without checking the algorithm, an attacker could send a token signed with
// "none" and the library might accept it. Passing jwt.WithValidMethods prevents this.
func (s *TokenService) Validate(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(token *jwt.Token) (any, error) {
			// Reject tokens that aren't signed with HS256
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		// Translate jwt library errors into cleaner messages
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return c, nil
}
