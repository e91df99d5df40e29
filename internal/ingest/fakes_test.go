package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/award-ingestor/internal/grants"
	"github.com/JakeFAU/award-ingestor/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("run-%d", s.n.Add(1)), nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("len-%d", len(data)), nil
}

// dayFetcher returns canned records per day, optionally delaying each day so
// completion order differs from submission order.
type dayFetcher struct {
	records map[string][]grants.Record
	delay   func(day string) time.Duration

	mu       sync.Mutex
	active   int
	maxSeen  int
	searches []string
}

func (f *dayFetcher) FetchDay(ctx context.Context, day, searchID string) grants.DayResult {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.searches = append(f.searches, searchID)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(day)):
		case <-ctx.Done():
			return grants.DayResult{Day: day, Err: ctx.Err()}
		}
	}
	src := f.records[day]
	out := make([]grants.Record, len(src))
	copy(out, src)
	return grants.DayResult{Day: day, Records: out, Pages: 1}
}

func recs(ids ...string) []grants.Record {
	out := make([]grants.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, grants.Record{AwardID: id, TotalObligatedAmount: 10.5})
	}
	return out
}

// flakyStore fails PutObject for paths containing failOn.
type flakyStore struct {
	*memory.BlobStore
	failOn string
}

func (s *flakyStore) PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	if s.failOn != "" && strings.Contains(path, s.failOn) {
		return "", errors.New("storage unavailable")
	}
	return s.BlobStore.PutObject(ctx, path, contentType, r)
}

type failingEncoder struct{}

func (failingEncoder) Encode([]grants.Record) ([]byte, error) {
	return nil, errors.New("schema mismatch")
}
