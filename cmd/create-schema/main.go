package main

import (
	"context"
	"fmt"
	"os"

	"imagine-rag-backend/config"
	"imagine-rag-backend/logger"
	"imagine-rag-backend/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var tables = []string{"rag_judgments", "rag_interactions", "rag_chunks", "reindex_jobs"}

func main() {
	var drop bool

	cmd := &cobra.Command{
		Use:   "create-schema",
		Short: "Create the retrieval, feedback and reindex job tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			pool, err := repository.NewPool(cmd.Context(), cfg.DatabaseURL, false)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			return createSchema(cmd.Context(), pool, log, cfg.EmbedDimension, drop)
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "drop existing tables first (destroys indexed chunks and feedback)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createSchema(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger, dimension int, drop bool) error {
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Warn("Failed to create pgvector extension", "error", err)
	} else {
		log.Info("pgvector extension enabled")
	}
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS pgcrypto"); err != nil {
		log.Warn("Failed to create pgcrypto extension", "error", err)
	}

	if drop {
		for _, table := range tables {
			if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
				return fmt.Errorf("failed to drop %s: %w", table, err)
			}
			log.Info("Dropped table", "table", table)
		}
	}

	statements := []struct {
		name string
		sql  string
	}{
		{
			name: "rag_chunks table",
			sql: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS rag_chunks (
    chunk_uid TEXT PRIMARY KEY,

    -- Source identity
    collection VARCHAR(50) NOT NULL,
    source_type VARCHAR(50) NOT NULL,
    source_id TEXT NOT NULL,

    -- Hierarchy
    course_id TEXT,
    course_title TEXT,
    chapter_id TEXT,
    chapter_title TEXT,
    subchapter_id TEXT,
    subchapter_title TEXT,
    page_id TEXT,
    page_title TEXT,
    domain TEXT NOT NULL DEFAULT '',

    -- Unit position
    unit_kind VARCHAR(50) NOT NULL,
    unit_type VARCHAR(50) NOT NULL,
    unit_idx INTEGER NOT NULL,
    chunk_idx INTEGER NOT NULL,

    -- Filterable metadata
    has_image BOOLEAN NOT NULL DEFAULT false,
    has_code BOOLEAN NOT NULL DEFAULT false,
    code_languages TEXT[] NOT NULL DEFAULT '{}',
    concepts TEXT[] NOT NULL DEFAULT '{}',
    mnemonic_tags TEXT[] NOT NULL DEFAULT '{}',

    -- Authored content
    pii_level INTEGER NOT NULL DEFAULT 0,
    author_label TEXT,
    user_hash TEXT,

    text TEXT NOT NULL,
    tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', text)) STORED,
    embedding vector(%d),

    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`, dimension),
		},
		{
			name: "Vector similarity search (HNSW)",
			sql: `CREATE INDEX IF NOT EXISTS idx_rag_chunks_embedding ON rag_chunks
USING hnsw (embedding vector_cosine_ops)
WITH (m = 16, ef_construction = 64);`,
		},
		{
			name: "Full-text search",
			sql:  "CREATE INDEX IF NOT EXISTS idx_rag_chunks_tsv ON rag_chunks USING gin (tsv);",
		},
		{
			name: "Source entity lookup",
			sql:  "CREATE INDEX IF NOT EXISTS idx_rag_chunks_source ON rag_chunks(collection, source_id, source_type);",
		},
		{
			name: "Domain filtering",
			sql:  "CREATE INDEX IF NOT EXISTS idx_rag_chunks_domain ON rag_chunks(domain);",
		},
		{
			name: "Concept filtering",
			sql:  "CREATE INDEX IF NOT EXISTS idx_rag_chunks_concepts ON rag_chunks USING gin (concepts);",
		},
		{
			name: "Mnemonic tag filtering",
			sql:  "CREATE INDEX IF NOT EXISTS idx_rag_chunks_mnemonic_tags ON rag_chunks USING gin (mnemonic_tags);",
		},
		{
			name: "rag_interactions table",
			sql: `
CREATE TABLE IF NOT EXISTS rag_interactions (
    id UUID PRIMARY KEY,
    user_id TEXT,
    query TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    retrieved_chunk_ids TEXT[] NOT NULL DEFAULT '{}',
    selected_chunk_ids TEXT[] NOT NULL DEFAULT '{}',
    domain TEXT,
    outcome SMALLINT NOT NULL CHECK (outcome IN (-1, 0, 1)),
    notes TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		},
		{
			name: "rag_judgments table",
			sql: `
CREATE TABLE IF NOT EXISTS rag_judgments (
    id UUID PRIMARY KEY,
    interaction_id UUID NOT NULL REFERENCES rag_interactions(id) ON DELETE CASCADE,
    positive_chunk_id TEXT,
    negative_chunk_id TEXT,
    label SMALLINT NOT NULL CHECK (label IN (-1, 1)),
    reason TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		},
		{
			name: "Judgments by interaction",
			sql:  "CREATE INDEX IF NOT EXISTS idx_rag_judgments_interaction ON rag_judgments(interaction_id);",
		},
		{
			name: "reindex_jobs table",
			sql: `
CREATE TABLE IF NOT EXISTS reindex_jobs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'in_progress', 'completed', 'failed')),
    collections TEXT[] NOT NULL DEFAULT '{}',
    steps JSONB NOT NULL DEFAULT '[]'::jsonb,
    entities INTEGER NOT NULL DEFAULT 0,
    chunks INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);`,
		},
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
		log.Info("Created", "object", stmt.name)
	}

	log.Info("Schema ready", "embedding_dimension", dimension)
	return nil
}
