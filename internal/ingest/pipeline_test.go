package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-ingestor/internal/columnar"
	"github.com/JakeFAU/award-ingestor/internal/grants"
	memorypublisher "github.com/JakeFAU/award-ingestor/internal/publisher/memory"
	"github.com/JakeFAU/award-ingestor/internal/runlog"
	"github.com/JakeFAU/award-ingestor/internal/storage/memory"
)

type harness struct {
	pipeline  *Pipeline
	store     *memory.BlobStore
	publisher *memorypublisher.Publisher
}

func newHarness(t *testing.T, fetcher DayFetcher) *harness {
	t.Helper()
	h := &harness{store: memory.NewBlobStore(), publisher: memorypublisher.New()}
	p, err := NewPipeline(
		NewAggregator(fetcher, AggregatorConfig{Workers: 2}, nil),
		NewPersister(h.store, columnar.NewParquetEncoder(), fakeHasher{}, Layout{}, nil),
		runlog.NewBlobLog(h.store, "", nil),
		h.publisher,
		fixedClock{t: time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)},
		&seqIDs{},
		Config{Topic: "ingest-runs"},
		zap.NewNop(),
	)
	require.NoError(t, err)
	h.pipeline = p
	return h
}

// grantsAPI returns two awards for 2024-03-01 and nothing for any other day.
func grantsAPI(t *testing.T, seen *[]string) *grants.Client {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		day := r.URL.Query().Get("last_modified_date")
		mu.Lock()
		*seen = append(*seen, day+"#"+r.URL.Query().Get("page"))
		mu.Unlock()
		results := []map[string]any{}
		if day == "2024-03-01" {
			results = []map[string]any{
				{"award_id": "A-1", "total_obligated_amount": 1000.5, "awarding_agency": map[string]any{"agency_name": "NSF"}},
				{"award_id": "A-2", "latest_action_date_fiscal_year": 2024},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results, "next_page": nil})
	}))
	t.Cleanup(srv.Close)

	c, err := grants.NewClient(grants.Config{BaseURL: srv.URL, APIKey: "k", PageSize: 100}, srv.Client(), nil, nil)
	require.NoError(t, err)
	return c
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	var seen []string
	h := newHarness(t, grantsAPI(t, &seen))
	ctx := context.Background()

	res, err := h.pipeline.Run(ctx, Request{
		Keyword:   "climate",
		SearchID:  "abc",
		StartDate: "2024-03-01",
		EndDate:   "2024-03-02",
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	require.Equal(t, 2, res.Days)
	require.Equal(t, "2024-03-05 09:30:00", res.CaptureTime)
	require.Equal(t, "run-1", res.RunID)
	require.ElementsMatch(t, []string{"2024-03-01#1", "2024-03-02#1"}, seen)

	require.Equal(t, []string{
		"Bronze/climate/climate2024_03.parquet",
		"Staging/climate/climate2024_03.json",
		"Staging/log.csv",
	}, h.store.Paths())

	raw, err := h.store.GetObject(ctx, "Staging/climate/climate2024_03.json")
	require.NoError(t, err)
	var records []grants.Record
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 2)
	require.Equal(t, "A-1", records[0].AwardID)
	require.Equal(t, "NSF", records[0].AwardingAgency)
	require.Equal(t, "2024", records[1].FiscalYear)
	require.Equal(t, "2024-03-05 09:30:00", records[1].CaptureTime)

	pq, err := h.store.GetObject(ctx, "Bronze/climate/climate2024_03.parquet")
	require.NoError(t, err)
	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(pq), new(columnar.Row), 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, pr.GetNumRows())
	rows := make([]columnar.Row, 2)
	require.NoError(t, pr.Read(&rows))
	pr.ReadStop()
	require.Equal(t, columnar.FromRecord(records[0]), rows[0])
	require.Equal(t, columnar.FromRecord(records[1]), rows[1])

	logData, err := h.store.GetObject(ctx, runlog.DefaultPath)
	require.NoError(t, err)
	table, err := runlog.ParseCSV(logData)
	require.NoError(t, err)
	row, ok := table.Lookup(runlog.Entry{Keyword: "climate", SearchID: "abc", StartDate: "2024-03-01", EndDate: "2024-03-02"})
	require.True(t, ok)
	require.Equal(t, "2", row[runlog.ColTotalRecords])
	require.Equal(t, "2024-03-05 09:30:00", row[runlog.ColCaptureTime])

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "ingest-runs", msgs[0].Topic)
	note, ok := msgs[0].Payload.(Notification)
	require.True(t, ok)
	require.Equal(t, 2, note.Total)
	require.Len(t, note.Artifacts, 2)
}

func TestRunRepeatUpdatesLogRow(t *testing.T) {
	t.Parallel()

	f := &dayFetcher{records: map[string][]grants.Record{"2024-03-01": recs("a")}}
	h := newHarness(t, f)
	req := Request{Keyword: "climate", SearchID: "abc", StartDate: "2024-03-01", EndDate: "2024-03-01"}

	_, err := h.pipeline.Run(context.Background(), req)
	require.NoError(t, err)
	f.records["2024-03-01"] = recs("a", "b", "c")
	res, err := h.pipeline.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)

	logData, err := h.store.GetObject(context.Background(), runlog.DefaultPath)
	require.NoError(t, err)
	table, err := runlog.ParseCSV(logData)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	require.Equal(t, "3", table.Rows[0][4])
}

func TestRunValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &dayFetcher{})
	ctx := context.Background()

	for _, req := range []Request{
		{SearchID: "abc"},
		{Keyword: "climate"},
		{StartDate: "2024-01-01", EndDate: "2024-01-02"},
	} {
		_, err := h.pipeline.Run(ctx, req)
		require.ErrorIs(t, err, ErrMissingParameters)
	}

	_, err := h.pipeline.Run(ctx, Request{Keyword: "climate", SearchID: "abc", StartDate: "03/01/2024"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.pipeline.Run(ctx, Request{Keyword: "../etc", SearchID: "abc"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Empty(t, h.store.Paths())
}

func TestRunReversedRangeSavesNothingButLogs(t *testing.T) {
	t.Parallel()

	f := &dayFetcher{}
	h := newHarness(t, f)

	res, err := h.pipeline.Run(context.Background(), Request{
		Keyword: "climate", SearchID: "abc", StartDate: "2024-03-02", EndDate: "2024-03-01",
	})
	require.NoError(t, err)
	require.Zero(t, res.Total)
	require.Zero(t, res.Days)
	require.Empty(t, f.searches)
	require.Equal(t, []string{runlog.DefaultPath}, h.store.Paths())
}

func TestRunAppliesDefaultDates(t *testing.T) {
	t.Parallel()

	f := &dayFetcher{}
	h := newHarness(t, f)

	res, err := h.pipeline.Run(context.Background(), Request{Keyword: "climate", SearchID: "abc"})
	require.NoError(t, err)
	require.Equal(t, "2024-01-01", res.StartDate)
	require.Equal(t, "2024-12-31", res.EndDate)
	require.Equal(t, 366, res.Days)
}

func TestNewPipelineRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(nil, nil, nil, nil, nil, nil, Config{}, nil)
	require.Error(t, err)
}
