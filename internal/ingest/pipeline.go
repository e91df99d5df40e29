package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-ingestor/internal/clock/system"
	"github.com/JakeFAU/award-ingestor/internal/metrics"
	"github.com/JakeFAU/award-ingestor/internal/runlog"
)

var (
	// ErrMissingParameters is returned when keyword or search_id is empty.
	ErrMissingParameters = errors.New("missing required parameters: keyword and search_id")
	// ErrInvalidRequest marks caller mistakes such as malformed dates.
	ErrInvalidRequest = errors.New("invalid request")
)

// Request is one ingestion invocation. Empty dates fall back to Config defaults.
type Request struct {
	Keyword   string `json:"keyword"`
	SearchID  string `json:"search_id"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// Result reports what a run saved.
type Result struct {
	RunID       string
	Keyword     string
	SearchID    string
	StartDate   string
	EndDate     string
	Days        int
	Total       int
	CaptureTime string
	Artifacts   []Artifact
	Failures    int
}

// Notification is the completion message published after each run.
type Notification struct {
	RunID       string     `json:"run_id"`
	Keyword     string     `json:"keyword"`
	SearchID    string     `json:"search_id"`
	StartDate   string     `json:"start_date"`
	EndDate     string     `json:"end_date"`
	Total       int        `json:"total_records"`
	CaptureTime string     `json:"capture_time"`
	Artifacts   []Artifact `json:"artifacts"`
	Failures    int        `json:"failures"`
}

// Config holds run defaults.
type Config struct {
	DefaultStartDate string
	DefaultEndDate   string
	Topic            string
}

// Pipeline wires the aggregator, persister, audit log and notifier together.
type Pipeline struct {
	aggregator *Aggregator
	persister  *Persister
	runLog     runlog.Recorder
	publisher  Publisher
	clock      Clock
	ids        IDGenerator
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewPipeline constructs a Pipeline. publisher may be nil.
func NewPipeline(
	aggregator *Aggregator,
	persister *Persister,
	runLog runlog.Recorder,
	publisher Publisher,
	clock Clock,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
) (*Pipeline, error) {
	if aggregator == nil || persister == nil || runLog == nil || clock == nil || ids == nil {
		return nil, errors.New("pipeline: aggregator, persister, run log, clock and id generator are required")
	}
	if cfg.DefaultStartDate == "" {
		cfg.DefaultStartDate = "2024-01-01"
	}
	if cfg.DefaultEndDate == "" {
		cfg.DefaultEndDate = "2024-12-31"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		aggregator: aggregator,
		persister:  persister,
		runLog:     runLog,
		publisher:  publisher,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer("github.com/JakeFAU/award-ingestor/internal/ingest"),
	}, nil
}

// Run executes one ingestion. Audit log and notification failures are logged
// and do not fail the run.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	if req.Keyword == "" || req.SearchID == "" {
		return Result{}, ErrMissingParameters
	}
	if strings.ContainsAny(req.Keyword, `/\`) || strings.Contains(req.Keyword, "..") {
		return Result{}, fmt.Errorf("%w: keyword %q must not contain path separators", ErrInvalidRequest, req.Keyword)
	}
	if req.StartDate == "" {
		req.StartDate = p.cfg.DefaultStartDate
	}
	if req.EndDate == "" {
		req.EndDate = p.cfg.DefaultEndDate
	}
	start, err := ParseDate(req.StartDate)
	if err != nil {
		return Result{}, err
	}
	end, err := ParseDate(req.EndDate)
	if err != nil {
		return Result{}, err
	}

	runID, err := p.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := p.tracer.Start(ctx, "ingest.Run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("keyword", req.Keyword),
		attribute.String("search_id", req.SearchID),
	))
	defer span.End()

	log := p.logger.With(zap.String("run_id", runID), zap.String("keyword", req.Keyword))
	res := Result{
		RunID:       runID,
		Keyword:     req.Keyword,
		SearchID:    req.SearchID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		CaptureTime: p.clock.Now().UTC().Format(system.CaptureLayout),
	}
	days := DateRange(start, end)
	res.Days = len(days)
	log.Info("run started",
		zap.String("search_id", req.SearchID),
		zap.String("start_date", req.StartDate),
		zap.String("end_date", req.EndDate),
		zap.Int("days", res.Days),
	)

	buckets, err := p.aggregator.Collect(ctx, days, req.SearchID, res.CaptureTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collect failed")
		metrics.ObserveRun("error", 0, time.Since(started))
		return Result{}, fmt.Errorf("collect: %w", err)
	}

	persisted := p.persister.Persist(ctx, req.Keyword, buckets)
	res.Total = persisted.Total
	res.Artifacts = persisted.Artifacts
	res.Failures = persisted.Failures

	entry := runlog.Entry{
		Keyword:      req.Keyword,
		SearchID:     req.SearchID,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		TotalRecords: res.Total,
		CaptureTime:  res.CaptureTime,
	}
	if err := p.runLog.Record(ctx, entry); err != nil {
		log.Error("run log update failed", zap.Error(err))
	}

	p.notify(ctx, log, res)

	span.SetAttributes(attribute.Int("total_records", res.Total))
	metrics.ObserveRun("success", res.Total, time.Since(started))
	log.Info("run finished",
		zap.Int("total_records", res.Total),
		zap.Int("failures", res.Failures),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (p *Pipeline) notify(ctx context.Context, log *zap.Logger, res Result) {
	if p.publisher == nil {
		return
	}
	msg := Notification{
		RunID:       res.RunID,
		Keyword:     res.Keyword,
		SearchID:    res.SearchID,
		StartDate:   res.StartDate,
		EndDate:     res.EndDate,
		Total:       res.Total,
		CaptureTime: res.CaptureTime,
		Artifacts:   res.Artifacts,
		Failures:    res.Failures,
	}
	if msg.Artifacts == nil {
		msg.Artifacts = []Artifact{}
	}
	id, err := p.publisher.Publish(ctx, p.cfg.Topic, msg)
	if err != nil {
		log.Warn("completion notification failed", zap.Error(err))
		return
	}
	log.Debug("completion notification published", zap.String("message_id", id))
}
