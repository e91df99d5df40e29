package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/award-ingestor/internal/clock"
	"github.com/JakeFAU/award-ingestor/internal/grants"
)

// AggregatorConfig bounds the day fan-out.
type AggregatorConfig struct {
	Workers  int
	DayDelay time.Duration
}

// MonthBucket holds every record fetched for the days of one month, in day order.
type MonthBucket struct {
	Month   string
	Records []grants.Record
}

// Aggregator fetches days concurrently and merges them in submission order.
type Aggregator struct {
	fetcher DayFetcher
	cfg     AggregatorConfig
	logger  *zap.Logger
}

// NewAggregator constructs an Aggregator. Workers defaults to 2.
func NewAggregator(fetcher DayFetcher, cfg AggregatorConfig, logger *zap.Logger) *Aggregator {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Collect fetches days and returns chronological month buckets. Every record is
// stamped with captureTime. The returned error is non-nil only when ctx ends.
func (a *Aggregator) Collect(ctx context.Context, days []string, searchID, captureTime string) ([]MonthBucket, error) {
	if len(days) == 0 {
		return nil, nil
	}

	slots := make([]chan grants.DayResult, len(days))
	for i := range slots {
		slots[i] = make(chan grants.DayResult, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i, day := range days {
			if gctx.Err() != nil {
				return
			}
			g.Go(func() error {
				slots[i] <- a.fetcher.FetchDay(gctx, day, searchID)
				return nil
			})
		}
	}()

	buckets, err := a.merge(ctx, days, slots, captureTime)

	<-submitted
	_ = g.Wait() // workers never return errors

	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// merge is the only writer of the bucket index.
func (a *Aggregator) merge(
	ctx context.Context,
	days []string,
	slots []chan grants.DayResult,
	captureTime string,
) ([]MonthBucket, error) {
	var buckets []MonthBucket
	index := make(map[string]int)

	for i, day := range days {
		var res grants.DayResult
		select {
		case res = <-slots[i]:
		case <-ctx.Done():
			return nil, fmt.Errorf("collect interrupted at %s: %w", day, ctx.Err())
		}

		grants.Stamp(res.Records, captureTime)
		month := MonthKey(day)
		pos, ok := index[month]
		if !ok {
			pos = len(buckets)
			index[month] = pos
			buckets = append(buckets, MonthBucket{Month: month})
		}
		buckets[pos].Records = append(buckets[pos].Records, res.Records...)
		a.logger.Debug("day merged",
			zap.String("day", day),
			zap.String("month", month),
			zap.Int("records", len(res.Records)),
			zap.Bool("truncated", res.Truncated()),
		)

		if err := clock.Pause(ctx, a.cfg.DayDelay); err != nil {
			return nil, fmt.Errorf("collect interrupted after %s: %w", day, err)
		}
	}
	return buckets, nil
}
