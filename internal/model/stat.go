package model

import "time"

// RepositoryStat holds the persisted activity counters for one
// (account, repository) pair.
//
// The counters are NOT accumulated deltas — every sync replaces them with
// GitHub's current totals for that contributor, so the row always mirrors
// upstream truth. The UNIQUE(account_id, repository) constraint in the DB
// guarantees at most one row per pair even under concurrent syncs.
type RepositoryStat struct {
	ID           string    `json:"id"           db:"id"`
	AccountID    string    `json:"-"            db:"account_id"` // internal linkage, not part of the API payload
	Repository   string    `json:"repository"   db:"repository"` // full name, e.g. "owner/name"
	LinesAdded   int       `json:"linesAdded"   db:"lines_added"`
	LinesDeleted int       `json:"linesDeleted" db:"lines_deleted"`
	CommitCount  int       `json:"commitCount"  db:"commit_count"`
	UpdatedAt    time.Time `json:"lastUpdated"  db:"updated_at"` // refreshed on every sync
}

// StatTotals is the elementwise sum of an account's RepositoryStat rows,
// computed on read by the stats query service — never persisted.
type StatTotals struct {
	LinesAdded   int `json:"linesAdded"`
	LinesDeleted int `json:"linesDeleted"`
	CommitCount  int `json:"commitCount"`
}
