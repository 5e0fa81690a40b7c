package usecase

import (
	"context"
	"time"

	"github.com/totegamma/castline"
)

// DocumentStore is the remote document store. Missing documents are
// reported as domain.ErrNotFound; deleting one succeeds.
type DocumentStore interface {
	GetDocument(ctx context.Context, collection, key string) (castline.Document, error)
	ListDocuments(ctx context.Context, collection string) ([]castline.Document, error)
	SetDocument(ctx context.Context, collection, key string, doc castline.Document, merge bool) error
	DeleteDocument(ctx context.Context, collection, key string) error
}

// LocalCache is the device-local string key-value store. Missing keys are
// reported as domain.ErrNotFound.
type LocalCache interface {
	GetLocal(ctx context.Context, key string) (string, error)
	SetLocal(ctx context.Context, key, value string) error
	RemoveLocal(ctx context.Context, key string) error
}

// ModerationVerdict is the classifier's answer for one media reference.
type ModerationVerdict struct {
	Accepted   bool     `json:"accepted"`
	Categories []string `json:"categories"`
}

// Moderator screens media references.
type Moderator interface {
	Moderate(ctx context.Context, mediaURL string) (ModerationVerdict, error)
}

// AggregateNotifier is told when the consolidated aggregate changes.
type AggregateNotifier interface {
	Publish(ctx context.Context, channel string, event castline.Event) error
}

// Clock provides time to the usecases.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the current wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
