package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

func TestInitTracingWithoutExporter(t *testing.T) {
	tp, err := InitTracing(context.Background(), Config{ServiceName: "award-ingestor", Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	require.True(t, span.SpanContext().IsValid())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	require.NotEmpty(t, carrier.Get("traceparent"))
}

func TestResourceCarriesServiceVersion(t *testing.T) {
	t.Parallel()

	res, err := newResource(context.Background(), Config{ServiceName: "award-ingestor", Version: "1.4.0"})
	require.NoError(t, err)

	v, ok := res.Set().Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	require.Equal(t, "1.4.0", v.AsString())
	name, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	require.Equal(t, "award-ingestor", name.AsString())
}

func TestSamplerRatioBounds(t *testing.T) {
	t.Parallel()

	require.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestTransportAndHandlerPassThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), "test"))
	t.Cleanup(srv.Close)

	client := &http.Client{Transport: Transport(nil)}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
