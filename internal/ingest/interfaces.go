// Package ingest runs one ingestion: fetch days, bucket by month, persist, audit.
package ingest

import (
	"context"
	"time"

	"github.com/JakeFAU/award-ingestor/internal/grants"
)

// DayFetcher retrieves every page for one last-modified day.
type DayFetcher interface {
	FetchDay(ctx context.Context, day, searchID string) grants.DayResult
}

// Encoder converts a month of records into a columnar file.
type Encoder interface {
	Encode(records []grants.Record) ([]byte, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
