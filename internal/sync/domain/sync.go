package domain

import (
	"errors"
	"time"
)

// Mode selects how much of the mailbox a sync run covers.
type Mode string

const (
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

// ErrSyncRunning is returned when a sync is requested while one is active.
var ErrSyncRunning = errors.New("sync already running")

// SyncState is the per-account change cursor. HistoryID is monotonic: it
// only advances past pages fully committed to the email store, and only an
// explicit full resync resets it.
type SyncState struct {
	ID           string    `json:"id" gorm:"primaryKey"` // account key, e.g. "gmail"
	HistoryID    uint64    `json:"history_id"`
	AccountEmail string    `json:"account_email"`
	LastSyncAt   time.Time `json:"last_sync_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Credential is the opaque token record for a remote account. The core only
// observes whether one exists; its contents belong to the mailbox client.
type Credential struct {
	ID        string    `json:"id" gorm:"primaryKey"` // account key
	Token     string    `json:"-"`                    // serialized oauth2 token
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result summarizes a completed sync run.
type Result struct {
	SyncedCount int       `json:"synced_count"`
	Cursor      uint64    `json:"cursor"`
	Timestamp   time.Time `json:"timestamp"`
	FullSync    bool      `json:"full_sync"`
}

// Status is the connection state reported to clients.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	AccountEmail  string    `json:"account_email,omitempty"`
	Cursor        uint64    `json:"cursor,omitempty"`
	LastSyncAt    time.Time `json:"last_sync_at,omitempty"`
	TotalSynced   int64     `json:"total_synced"`
}
