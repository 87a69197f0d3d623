package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category represents a storefront category and its subcategories
type Category struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Slug          string    `json:"slug" db:"slug"`
	Subcategories []string  `json:"subcategories" db:"subcategories"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// SyncState tracks a record's remote copy
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncFailed  SyncState = "failed"
)

// SyncStatus is the remote sync outcome of one record.
type SyncStatus struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	State      SyncState `json:"state"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
