package castline

import (
	"time"
)

const (
	EventAggregateChanged string = "aggregate.changed"
)

// Document is the loosely typed field bag stored per key in the remote
// document store and, JSON encoded, in the local cache.
type Document map[string]any

// Event is broadcast to subscribers whenever the aggregate changes.
type Event struct {
	Type        string    `json:"type"`
	Fingerprint string    `json:"fingerprint"`
	Count       int       `json:"count"`
	At          time.Time `json:"at"`
}

// BackupDocument is the body of the singleton documents in the backups collection.
type BackupDocument[T any] struct {
	List      []T       `json:"list"`
	UpdatedAt time.Time `json:"updatedAt"`
}
