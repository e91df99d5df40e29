package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-ingestor/internal/columnar"
	"github.com/JakeFAU/award-ingestor/internal/grants"
	"github.com/JakeFAU/award-ingestor/internal/storage/memory"
)

func TestPersistWritesJSONAndParquet(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	p := NewPersister(store, columnar.NewParquetEncoder(), fakeHasher{}, Layout{}, zap.NewNop())

	out := p.Persist(context.Background(), "climate", []MonthBucket{
		{Month: "2024_02", Records: nil},
		{Month: "2024_03", Records: recs("a", "b")},
	})
	require.Equal(t, 2, out.Total)
	require.Zero(t, out.Failures)
	require.Equal(t, []string{
		"Bronze/climate/climate2024_03.parquet",
		"Staging/climate/climate2024_03.json",
	}, store.Paths())

	data, err := store.GetObject(context.Background(), "Staging/climate/climate2024_03.json")
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "a", decoded[0]["Award ID"])
	require.Equal(t, "application/json", store.ContentType("Staging/climate/climate2024_03.json"))
	require.Equal(t, columnar.ContentType, store.ContentType("Bronze/climate/climate2024_03.parquet"))

	require.Len(t, out.Artifacts, 2)
	require.Equal(t, KindJSON, out.Artifacts[0].Kind)
	require.Equal(t, "memory://Staging/climate/climate2024_03.json", out.Artifacts[0].URI)
	require.NotEmpty(t, out.Artifacts[0].SHA256)
	require.Equal(t, KindParquet, out.Artifacts[1].Kind)
	require.Equal(t, 2, out.Artifacts[1].Records)
}

func TestPersistJSONKeepsLiteralAmpersand(t *testing.T) {
	t.Parallel()

	data, err := encodeJSON([]grants.Record{{Description: "R&D <phase 2>"}})
	require.NoError(t, err)
	require.Contains(t, string(data), `"R&D <phase 2>"`)
}

func TestPersistParquetFailureKeepsTotal(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	p := NewPersister(store, failingEncoder{}, nil, Layout{}, nil)

	out := p.Persist(context.Background(), "climate", []MonthBucket{
		{Month: "2024_03", Records: recs("a", "b")},
		{Month: "2024_04", Records: recs("c")},
	})
	require.Equal(t, 3, out.Total)
	require.Equal(t, 2, out.Failures)
	require.Equal(t, []string{
		"Staging/climate/climate2024_03.json",
		"Staging/climate/climate2024_04.json",
	}, store.Paths())
}

func TestPersistJSONFailureSkipsMonthAndContinues(t *testing.T) {
	t.Parallel()

	store := &flakyStore{BlobStore: memory.NewBlobStore(), failOn: "climate2024_03.json"}
	p := NewPersister(store, columnar.NewParquetEncoder(), nil, Layout{}, nil)

	out := p.Persist(context.Background(), "climate", []MonthBucket{
		{Month: "2024_03", Records: recs("a", "b")},
		{Month: "2024_04", Records: recs("c")},
	})
	require.Equal(t, 1, out.Total)
	require.Equal(t, 1, out.Failures)
	require.Equal(t, []string{
		"Bronze/climate/climate2024_04.parquet",
		"Staging/climate/climate2024_04.json",
	}, store.Paths())
}
