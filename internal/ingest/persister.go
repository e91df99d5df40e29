package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-ingestor/internal/columnar"
	"github.com/JakeFAU/award-ingestor/internal/grants"
	"github.com/JakeFAU/award-ingestor/internal/metrics"
	"github.com/JakeFAU/award-ingestor/internal/storage"
)

// Artifact kinds.
const (
	KindJSON    = "json"
	KindParquet = "parquet"
)

// Artifact describes one uploaded monthly file.
type Artifact struct {
	Month   string `json:"month"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	URI     string `json:"uri"`
	SHA256  string `json:"sha256,omitempty"`
	Records int    `json:"records"`
}

// Persisted summarizes one Persist call.
type Persisted struct {
	// Total counts records whose JSON upload succeeded.
	Total     int
	Artifacts []Artifact
	Failures  int
}

// Persister writes monthly JSON snapshots and their Parquet mirrors.
type Persister struct {
	store   storage.BlobStore
	encoder Encoder
	hasher  Hasher
	layout  Layout
	logger  *zap.Logger
}

// NewPersister constructs a Persister. A nil hasher leaves digests blank.
func NewPersister(store storage.BlobStore, encoder Encoder, hasher Hasher, layout Layout, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		store:   store,
		encoder: encoder,
		hasher:  hasher,
		layout:  layout.withDefaults(),
		logger:  logger,
	}
}

// Persist uploads every non-empty bucket. A month's failure is logged and does
// not stop later months; a Parquet failure does not reduce Total.
func (p *Persister) Persist(ctx context.Context, keyword string, buckets []MonthBucket) Persisted {
	var out Persisted
	for _, b := range buckets {
		if len(b.Records) == 0 {
			continue
		}
		log := p.logger.With(zap.String("keyword", keyword), zap.String("month", b.Month))

		jsonArt, err := p.putJSON(ctx, keyword, b)
		metrics.ObserveArtifact(KindJSON, err)
		if err != nil {
			out.Failures++
			log.Error("json upload failed", zap.Error(err))
			continue
		}
		out.Total += len(b.Records)
		out.Artifacts = append(out.Artifacts, jsonArt)

		parquetArt, err := p.putParquet(ctx, keyword, b)
		metrics.ObserveArtifact(KindParquet, err)
		if err != nil {
			out.Failures++
			log.Error("parquet conversion failed", zap.Error(err))
			continue
		}
		out.Artifacts = append(out.Artifacts, parquetArt)
		log.Info("month persisted",
			zap.Int("records", len(b.Records)),
			zap.String("json_uri", jsonArt.URI),
			zap.String("parquet_uri", parquetArt.URI),
		)
	}
	return out
}

func (p *Persister) putJSON(ctx context.Context, keyword string, b MonthBucket) (Artifact, error) {
	data, err := encodeJSON(b.Records)
	if err != nil {
		return Artifact{}, err
	}
	return p.put(ctx, KindJSON, p.layout.JSONPath(keyword, b.Month), "application/json", b, data)
}

func (p *Persister) putParquet(ctx context.Context, keyword string, b MonthBucket) (Artifact, error) {
	data, err := p.encoder.Encode(b.Records)
	if err != nil {
		return Artifact{}, fmt.Errorf("encode parquet: %w", err)
	}
	return p.put(ctx, KindParquet, p.layout.ParquetPath(keyword, b.Month), columnar.ContentType, b, data)
}

func (p *Persister) put(ctx context.Context, kind, path, contentType string, b MonthBucket, data []byte) (Artifact, error) {
	uri, err := p.store.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		return Artifact{}, fmt.Errorf("upload %s: %w", path, err)
	}
	art := Artifact{Month: b.Month, Kind: kind, Path: path, URI: uri, Records: len(b.Records)}
	if p.hasher != nil {
		if sum, err := p.hasher.Hash(data); err == nil {
			art.SHA256 = sum
		} else {
			p.logger.Warn("hash failed", zap.String("path", path), zap.Error(err))
		}
	}
	return art, nil
}

// encodeJSON writes the records as one JSON array without HTML escaping,
// so descriptions keep literal '&', '<' and '>'.
func encodeJSON(records []grants.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
