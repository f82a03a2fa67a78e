package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appconfig "github.com/timmy/prodimport/internal/config"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	body := "sku,name\nA,Widget\n"
	require.NoError(t, store.Save(ctx, "jobs/1/catalog.csv", strings.NewReader(body), int64(len(body))))

	ok, err := store.Exists(ctx, "jobs/1/catalog.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	size, err := store.Size(ctx, "jobs/1/catalog.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), size)

	rc, err := store.Open(ctx, "jobs/1/catalog.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	require.NoError(t, store.Delete(ctx, "jobs/1/catalog.csv"))
	ok, err = store.Exists(ctx, "jobs/1/catalog.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorage_Missing(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(ctx, "nope.csv")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.Size(ctx, "nope.csv")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.NoError(t, store.Delete(ctx, "nope.csv"))
}

func TestLocalStorage_KeyCannotEscapeRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStorage(root)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "../../escape.csv", strings.NewReader("x"), 1))
	ok, err := store.Exists(ctx, "escape.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDetectStorageType(t *testing.T) {
	testCases := []struct {
		endpoint string
		want     StorageType
	}{
		{endpoint: "https://abc.r2.cloudflarestorage.com", want: StorageTypeR2},
		{endpoint: "s3.us-east-1.amazonaws.com", want: StorageTypeS3},
		{endpoint: "localhost:9000", want: StorageTypeS3Compatible},
	}
	for _, tc := range testCases {
		t.Run(tc.endpoint, func(t *testing.T) {
			assert.Equal(t, tc.want, detectStorageType(tc.endpoint))
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/"))
	assert.Equal(t, "abc.r2.cloudflarestorage.com", normalizeEndpoint("https://abc.r2.cloudflarestorage.com/bucket"))
}

func TestNewFileStore_Local(t *testing.T) {
	store, err := NewFileStore(context.Background(), &appconfig.StorageConfig{Type: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	_, ok := store.(*LocalStorage)
	assert.True(t, ok)

	_, err = NewFileStore(context.Background(), &appconfig.StorageConfig{Type: "s3"})
	assert.Error(t, err)
}
