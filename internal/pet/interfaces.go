package pet

import (
	"context"
	"io"
	"time"
)

// Store persists scraped records and answers filtered queries.
type Store interface {
	// Insert appends records and returns their assigned identifiers in order.
	Insert(ctx context.Context, records []Record) ([]string, error)
	// Replace drops every stored record before inserting the new batch.
	Replace(ctx context.Context, records []Record) ([]string, error)
	Find(ctx context.Context, filter Filter) ([]Record, error)
	Close(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher fingerprints archived payloads.
type Hasher interface {
	Hash(data []byte) string
}
