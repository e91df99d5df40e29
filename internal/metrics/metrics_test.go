package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if apiPagesTotal == nil || artifactsTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveAPIPage(t *testing.T) {
	Init()
	beforePages := testutil.ToFloat64(apiPagesTotal.WithLabelValues("ok"))
	beforeRecords := testutil.ToFloat64(apiRecordsTotal)

	ObserveAPIPage("ok", 100)
	ObserveAPIPage("ok", 0)

	if got := testutil.ToFloat64(apiPagesTotal.WithLabelValues("ok")) - beforePages; got != 2 {
		t.Errorf("expected 2 ok pages, got %f", got)
	}
	if got := testutil.ToFloat64(apiRecordsTotal) - beforeRecords; got != 100 {
		t.Errorf("expected 100 records, got %f", got)
	}
}

func TestObserveArtifactAndDayFetch(t *testing.T) {
	Init()
	beforeErr := testutil.ToFloat64(artifactsTotal.WithLabelValues("parquet", "error"))
	beforeTrunc := testutil.ToFloat64(dayFetchesTotal.WithLabelValues("truncated"))

	ObserveArtifact("parquet", errors.New("boom"))
	ObserveArtifact("json", nil)
	ObserveDayFetch(true)

	if got := testutil.ToFloat64(artifactsTotal.WithLabelValues("parquet", "error")) - beforeErr; got != 1 {
		t.Errorf("expected one parquet error, got %f", got)
	}
	if got := testutil.ToFloat64(dayFetchesTotal.WithLabelValues("truncated")) - beforeTrunc; got != 1 {
		t.Errorf("expected one truncated day, got %f", got)
	}
}

func TestObserveRun(t *testing.T) {
	Init()
	before := testutil.ToFloat64(runsTotal.WithLabelValues("succeeded"))
	ObserveRun("succeeded", 2, 3*time.Second)
	if got := testutil.ToFloat64(runsTotal.WithLabelValues("succeeded")) - before; got != 1 {
		t.Errorf("expected one succeeded run, got %f", got)
	}
	if testutil.CollectAndCount(runDurationSeconds) != 1 {
		t.Error("expected run duration histogram to be collected")
	}
}
