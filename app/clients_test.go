package app

import (
	"bytes"
	"context"
	"testing"

	"imagine-rag-backend/config"
	"imagine-rag-backend/embedding"
	"imagine-rag-backend/logger"
	"imagine-rag-backend/models"
	"imagine-rag-backend/repository"
	"imagine-rag-backend/service"
	"imagine-rag-backend/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const overviewSnapshot = `
courses:
  - id: c-canon
    uid: canon
    title: Canon
    description: Every closure remembers where it was born.
`

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Embedder:         "hash",
		EmbedDimension:   64,
		StorageType:      "local",
		StoragePath:      t.TempDir(),
		ContentPrefix:    "snapshots",
		CanonCourseUID:   "canon",
		CanonCourseTitle: "Canon",
		UserHashSalt:     "pepper",
		ReindexWorkers:   2,
	}
}

func TestWireClients_HashEmbedderAndLocalStorage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	clients, err := WireClients(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	defer clients.Close()

	_, ok := clients.Embedder.(*embedding.HashEmbedder)
	assert.True(t, ok)
	assert.Equal(t, 64, clients.Embedder.Dimension())

	_, ok = clients.Storage.(*storage.LocalStorage)
	assert.True(t, ok)
}

func TestStorageConfig(t *testing.T) {
	cfg := &config.Config{
		StorageType:  "s3",
		S3Bucket:     "content",
		S3Region:     "eu-west-1",
		AWSAccessKey: "id",
		AWSSecretKey: "secret",
	}
	sc := StorageConfig(cfg)
	assert.Equal(t, storage.StorageTypeS3, sc.Type)
	assert.Equal(t, "content", sc.S3Bucket)
	assert.Equal(t, "eu-west-1", sc.S3Region)
	assert.Equal(t, "id", sc.AWSAccessKey)
	assert.Equal(t, "secret", sc.AWSSecretKey)
}

func TestIndexOptions_ReindexFromStoredSnapshot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	clients, err := WireClients(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	defer clients.Close()

	key := storage.SnapshotKey(cfg.ContentPrefix, "canon.yaml")
	require.NoError(t, clients.Storage.Put(ctx, key, bytes.NewReader([]byte(overviewSnapshot))))

	chunks := repository.NewMemoryChunkStore()
	index := service.NewIndexService(append(
		IndexOptions(cfg, clients, logger.Nop()),
		service.IndexWithChunkStore(chunks),
		service.IndexWithJobStore(repository.NewMemoryReindexJobStore()),
	)...)

	report, err := index.Reindex(ctx, []models.Collection{models.CollectionOverviews}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)

	chunk, ok := chunks.Get("overviews:course:c-canon:u_0:0")
	require.True(t, ok)
	assert.Equal(t, "canon", chunk.Meta.Domain)
}
