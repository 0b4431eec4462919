package repository

import (
	"context"
	"fmt"
	"strings"

	"imagine-rag-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository handles database operations for retrievable chunks
type ChunkRepository struct {
	db *pgxpool.Pool
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: db}
}

const upsertChunkSQL = `
	INSERT INTO rag_chunks (
		chunk_uid, collection, source_type, source_id,
		course_id, course_title, chapter_id, chapter_title,
		subchapter_id, subchapter_title, page_id, page_title, domain,
		unit_kind, unit_type, unit_idx, chunk_idx,
		has_image, has_code, code_languages, concepts, mnemonic_tags,
		pii_level, author_label, user_hash, text, embedding, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27::vector, NOW()
	)
	ON CONFLICT (chunk_uid) DO UPDATE SET
		course_id = EXCLUDED.course_id,
		course_title = EXCLUDED.course_title,
		chapter_id = EXCLUDED.chapter_id,
		chapter_title = EXCLUDED.chapter_title,
		subchapter_id = EXCLUDED.subchapter_id,
		subchapter_title = EXCLUDED.subchapter_title,
		page_id = EXCLUDED.page_id,
		page_title = EXCLUDED.page_title,
		domain = EXCLUDED.domain,
		unit_kind = EXCLUDED.unit_kind,
		unit_type = EXCLUDED.unit_type,
		has_image = EXCLUDED.has_image,
		has_code = EXCLUDED.has_code,
		code_languages = EXCLUDED.code_languages,
		concepts = EXCLUDED.concepts,
		mnemonic_tags = EXCLUDED.mnemonic_tags,
		pii_level = EXCLUDED.pii_level,
		author_label = EXCLUDED.author_label,
		user_hash = EXCLUDED.user_hash,
		text = EXCLUDED.text,
		embedding = EXCLUDED.embedding,
		updated_at = NOW()`

const pruneChunksSQL = `
	DELETE FROM rag_chunks
	WHERE collection = $1
		AND source_id = $2
		AND source_type = ANY($3)
		AND NOT (chunk_uid = ANY($4))`

// ReplaceSource upserts the current chunks of one source entity and deletes
// its rows that are no longer part of the current set, in one transaction.
// It returns the number of stale rows removed.
func (r *ChunkRepository) ReplaceSource(
	ctx context.Context,
	collection models.Collection,
	sourceID string,
	sourceTypes []models.SourceType,
	chunks []models.Chunk,
) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(chunks) > 0 {
		batch := &pgx.Batch{}
		for _, c := range chunks {
			m := c.Meta
			batch.Queue(upsertChunkSQL,
				c.ChunkUID, string(m.Collection), string(m.SourceType), m.SourceID,
				nullIfEmpty(m.CourseID), nullIfEmpty(m.CourseTitle), nullIfEmpty(m.ChapterID), nullIfEmpty(m.ChapterTitle),
				nullIfEmpty(m.SubchapterID), nullIfEmpty(m.SubchapterTitle), nullIfEmpty(m.PageID), nullIfEmpty(m.PageTitle), m.Domain,
				string(m.UnitKind), m.UnitType, m.UnitIdx, m.ChunkIdx,
				m.HasImage, m.HasCode, m.CodeLanguages, m.Concepts, m.MnemonicTags,
				m.PIILevel, nullIfEmpty(m.AuthorLabel), nullIfEmpty(m.UserHash), c.Text, pgvector.NewVector(c.Embedding),
			)
		}

		br := tx.SendBatch(ctx, batch)
		for _, c := range chunks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return 0, fmt.Errorf("failed to upsert chunk %s: %w", c.ChunkUID, err)
			}
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("failed to upsert chunks: %w", err)
		}
	}

	keep := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keep = append(keep, c.ChunkUID)
	}
	tag, err := tx.Exec(ctx, pruneChunksSQL, string(collection), sourceID, collectionStrings(sourceTypes), keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stale chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Search ranks chunks by the hybrid score of vector similarity and lexical
// rank. Filters are conjunctive and applied before ranking.
func (r *ChunkRepository) Search(ctx context.Context, params models.SearchParams) ([]models.ScoredChunk, error) {
	args := []interface{}{
		pgvector.NewVector(params.Embedding),
		params.Query,
		collectionStrings(params.Collections),
	}
	where := []string{"collection = ANY($3)"}

	f := params.Filters
	if len(f.Concepts) > 0 {
		args = append(args, f.Concepts)
		where = append(where, fmt.Sprintf("concepts && $%d", len(args)))
	}
	if len(f.MnemonicTags) > 0 {
		args = append(args, f.MnemonicTags)
		where = append(where, fmt.Sprintf("mnemonic_tags && $%d", len(args)))
	}
	if f.HasImage != nil {
		args = append(args, *f.HasImage)
		where = append(where, fmt.Sprintf("has_image = $%d", len(args)))
	}
	if f.HasCode != nil {
		args = append(args, *f.HasCode)
		where = append(where, fmt.Sprintf("has_code = $%d", len(args)))
	}
	if f.Domain != nil {
		args = append(args, *f.Domain)
		where = append(where, fmt.Sprintf("(domain = $%d OR $%d = ANY(concepts))", len(args), len(args)))
	}
	args = append(args, params.TopK)

	query := fmt.Sprintf(`
		WITH scored AS (
			SELECT
				chunk_uid, collection, source_type, source_id,
				COALESCE(course_id, '') AS course_id,
				COALESCE(course_title, '') AS course_title,
				COALESCE(chapter_id, '') AS chapter_id,
				COALESCE(chapter_title, '') AS chapter_title,
				COALESCE(subchapter_id, '') AS subchapter_id,
				COALESCE(subchapter_title, '') AS subchapter_title,
				COALESCE(page_id, '') AS page_id,
				COALESCE(page_title, '') AS page_title,
				domain, unit_kind, unit_type, unit_idx, chunk_idx,
				has_image, has_code, code_languages, concepts, mnemonic_tags,
				pii_level,
				COALESCE(author_label, '') AS author_label,
				COALESCE(user_hash, '') AS user_hash,
				text,
				(1 - (embedding <=> $1::vector))::float8 AS vector_similarity,
				ts_rank(tsv, plainto_tsquery('simple', $2))::float8 AS lexical_rank
			FROM rag_chunks
			WHERE %s
		)
		SELECT *, (%v * vector_similarity + %v * lexical_rank) AS score
		FROM scored
		ORDER BY score DESC, chunk_uid
		LIMIT $%d`, strings.Join(where, "\n\t\t\t\tAND "), models.VectorWeight, models.LexicalWeight, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	results := make([]models.ScoredChunk, 0, params.TopK)
	for rows.Next() {
		var sc models.ScoredChunk
		m := &sc.Meta
		var collection, sourceType, unitKind string
		err := rows.Scan(
			&sc.ChunkUID, &collection, &sourceType, &m.SourceID,
			&m.CourseID, &m.CourseTitle,
			&m.ChapterID, &m.ChapterTitle,
			&m.SubchapterID, &m.SubchapterTitle,
			&m.PageID, &m.PageTitle, &m.Domain,
			&unitKind, &m.UnitType, &m.UnitIdx, &m.ChunkIdx,
			&m.HasImage, &m.HasCode, &m.CodeLanguages, &m.Concepts, &m.MnemonicTags,
			&m.PIILevel, &m.AuthorLabel, &m.UserHash, &sc.Text,
			&sc.VectorSimilarity, &sc.LexicalRank, &sc.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		m.Collection = models.Collection(collection)
		m.SourceType = models.SourceType(sourceType)
		m.UnitKind = models.UnitKind(unitKind)
		results = append(results, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	return results, nil
}

// Count returns the number of stored chunks per collection
func (r *ChunkRepository) Count(ctx context.Context) (map[models.Collection]int, error) {
	rows, err := r.db.Query(ctx, `SELECT collection, COUNT(*) FROM rag_chunks GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Collection]int)
	for rows.Next() {
		var collection string
		var n int
		if err := rows.Scan(&collection, &n); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count: %w", err)
		}
		counts[models.Collection(collection)] = n
	}
	return counts, rows.Err()
}
