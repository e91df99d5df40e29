package gcs

import (
	"context"
	"testing"

	gcstorage "cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "landing"})
	require.ErrorContains(t, err, "storage client is required")

	client, err := gcstorage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.ErrorContains(t, err, "bucket name is required")

	store, err := New(client, Config{Bucket: "landing"})
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestPutObjectRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	client, err := gcstorage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "landing"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "  ", "application/json", nil)
	require.ErrorContains(t, err, "path is required")
}
