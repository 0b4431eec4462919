package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_PutGetListDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "snapshots/b.yaml", strings.NewReader("b")))
	require.NoError(t, store.Put(ctx, "snapshots/a.yaml", strings.NewReader("a")))
	require.NoError(t, store.Put(ctx, "other/c.yaml", strings.NewReader("c")))

	keys, err := store.List(ctx, "snapshots")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/a.yaml", "snapshots/b.yaml"}, keys)

	rc, err := store.Get(ctx, "snapshots/a.yaml")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	require.NoError(t, store.Delete(ctx, "snapshots/a.yaml"))
	_, err = store.Get(ctx, "snapshots/a.yaml")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorage_ListMissingPrefix(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	keys, err := store.List(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "snapshots/course_export.yaml", SnapshotKey("snapshots/", "course export.YAML"))
	assert.Equal(t, "snapshots/pages.json", SnapshotKey("snapshots", "../pages.json"))
}
