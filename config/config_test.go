package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, 768, cfg.EmbedDimension)
	assert.Equal(t, "canon", cfg.CanonCourseUID)
	assert.Equal(t, "Canon", cfg.CanonCourseTitle)
	assert.Equal(t, 20*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 4, cfg.ReindexWorkers)
	assert.Equal(t, "local", cfg.StorageType)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RAG_CANON_COURSE_UID", "js-canon")
	t.Setenv("RAG_REINDEX_WORKERS", "9")
	t.Setenv("RAG_EMBEDDER", "hash")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "js-canon", cfg.CanonCourseUID)
	assert.Equal(t, 9, cfg.ReindexWorkers)
	assert.Equal(t, "hash", cfg.Embedder)
}

func TestValidate(t *testing.T) {
	cfg := &Config{EmbedDimension: 768, ReindexWorkers: 1, Embedder: "gemini"}
	require.NoError(t, cfg.Validate())

	cfg.Embedder = "openai"
	assert.Error(t, cfg.Validate())

	cfg.Embedder = "hash"
	cfg.StorageType = "s3"
	assert.Error(t, cfg.Validate())
}
