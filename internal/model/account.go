// Package model defines the data structures used throughout the application.
package model

import "time"

// Account represents one linked GitHub identity.
//
// GitHub is the identity provider, so the natural key is GitHub's numeric
// user ID. We still generate our own internal string ID (xid) so our primary
// keys aren't tied to a third party's numbering scheme.
//
// WHY AccessToken IS json:"-"?
// The access token is a bearer credential for the GitHub API, scoped to the
// user's repositories. It must NEVER appear in a response payload — with the
// `json:"-"` tag the encoder skips the field entirely, so there is no code
// path that can accidentally serialize it. It is overwritten on every login
// because GitHub may rotate or re-scope it.
//
// WHY GitHubID int64?
// GitHub user IDs are integers (e.g. 1234567). int64 avoids overflow for
// large account numbers. The UNIQUE constraint on github_id in the DB ensures
// one GitHub account maps to exactly one Account row.
type Account struct {
	ID          string    `json:"id"        db:"id"`
	GitHubID    int64     `json:"githubId"  db:"github_id"` // GitHub's numeric user ID — stable, never changes
	Login       string    `json:"login"     db:"login"`     // GitHub username, e.g. "sakif" — refreshed on every login
	AvatarURL   string    `json:"avatarUrl" db:"avatar_url"`
	AccessToken string    `json:"-"         db:"access_token"` // GitHub API bearer credential — never serialized
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`   // set once on first login, immutable
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
