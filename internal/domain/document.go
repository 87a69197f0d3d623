package domain

import (
	"encoding/json"
	"time"
)

// Document is one record of the remote document store
type Document struct {
	Collection string          `json:"collection" db:"collection"`
	ID         string          `json:"id" db:"id"`
	Data       json.RawMessage `json:"data" db:"data"`
	UpdatedAt  time.Time       `json:"updatedAt" db:"updated_at"`
}

// DocumentChange is emitted by the remote store's live listener.
type DocumentChange struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         string `json:"op"`
}

// Deleted reports whether the change removed the document.
func (c DocumentChange) Deleted() bool {
	return c.Op == "DELETE"
}
