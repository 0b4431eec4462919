package models

import (
	"fmt"
)

// Collection groups chunks by the kind of corpus they were exported from
type Collection string

const (
	CollectionCourseContent Collection = "course_content"
	CollectionOverviews     Collection = "overviews"
	CollectionMnemonics     Collection = "mnemonics"
	CollectionReflections   Collection = "reflections"
	CollectionSurveys       Collection = "surveys"
	CollectionReviews       Collection = "reviews"
	CollectionBlog          Collection = "blog"
	CollectionNotion        Collection = "notion"
)

// AllCollections lists every collection a chunk may belong to
var AllCollections = []Collection{
	CollectionCourseContent,
	CollectionOverviews,
	CollectionMnemonics,
	CollectionReflections,
	CollectionSurveys,
	CollectionReviews,
	CollectionBlog,
	CollectionNotion,
}

// DefaultQueryCollections are searched when a query names no collections
var DefaultQueryCollections = []Collection{
	CollectionCourseContent,
	CollectionOverviews,
	CollectionMnemonics,
}

// Valid reports whether c is a known collection
func (c Collection) Valid() bool {
	for _, known := range AllCollections {
		if c == known {
			return true
		}
	}
	return false
}

// SourceType identifies the kind of entity a chunk was derived from
type SourceType string

const (
	SourcePageUnit        SourceType = "page_unit"
	SourceChapter         SourceType = "chapter"
	SourceSubchapter      SourceType = "subchapter"
	SourceCourse          SourceType = "course"
	SourceImagimodelLayer SourceType = "imagimodel_layer"
	SourceImagimodelZone  SourceType = "imagimodel_zone"
	SourceReflection      SourceType = "reflection"
	SourceSurveyResponse  SourceType = "survey_response"
	SourceReview          SourceType = "review"
	SourceBlogPost        SourceType = "blog_post"
	SourceNotionNote      SourceType = "notion_note"
)

// UnitKind describes the shape of the content unit a chunk came from
type UnitKind string

const (
	UnitSlide       UnitKind = "slide"
	UnitBlock       UnitKind = "block"
	UnitTextSection UnitKind = "text_section"
)

// ChunkMeta is the structured metadata stored alongside every chunk
type ChunkMeta struct {
	Collection Collection `json:"collection"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`

	// Hierarchy (empty when the ancestor could not be resolved)
	CourseID        string `json:"course_id,omitempty"`
	CourseTitle     string `json:"course_title,omitempty"`
	ChapterID       string `json:"chapter_id,omitempty"`
	ChapterTitle    string `json:"chapter_title,omitempty"`
	SubchapterID    string `json:"subchapter_id,omitempty"`
	SubchapterTitle string `json:"subchapter_title,omitempty"`
	PageID          string `json:"page_id,omitempty"`
	PageTitle       string `json:"page_title,omitempty"`
	Domain          string `json:"domain"`

	UnitKind UnitKind `json:"unit_kind"`
	UnitType string   `json:"unit_type"`
	UnitIdx  int      `json:"unit_idx"`
	ChunkIdx int      `json:"chunk_idx"`

	HasImage      bool     `json:"has_image"`
	HasCode       bool     `json:"has_code"`
	CodeLanguages []string `json:"code_languages"`
	Concepts      []string `json:"concepts"`
	MnemonicTags  []string `json:"mnemonic_tags"`

	// Privacy fields, only set for user-generated content
	PIILevel    int    `json:"pii_level"`
	AuthorLabel string `json:"author_label,omitempty"`
	UserHash    string `json:"user_hash,omitempty"`
}

// Chunk is the atomic retrievable item
type Chunk struct {
	ChunkUID  string    `json:"chunk_uid"`
	Text      string    `json:"text"`
	Meta      ChunkMeta `json:"meta"`
	Embedding []float32 `json:"-"`
}

// ChunkUID builds the stable primary key of a chunk. The format is a public
// contract: feedback judgments and external systems store this exact string.
func ChunkUID(collection Collection, sourceType SourceType, sourceID string, unitIdx, chunkIdx int) string {
	return fmt.Sprintf("%s:%s:%s:u_%d:%d", collection, sourceType, sourceID, unitIdx, chunkIdx)
}

// ScoredChunk is a chunk returned by a hybrid search
type ScoredChunk struct {
	Chunk
	VectorSimilarity float64 `json:"vector_similarity"`
	LexicalRank      float64 `json:"lexical_rank"`
	Score            float64 `json:"score"`
}

// Hybrid ranking weights. Semantic similarity dominates lexical rank.
const (
	VectorWeight  = 0.7
	LexicalWeight = 0.3
)

// HybridScore combines vector similarity and lexical rank into one score
func HybridScore(vectorSimilarity, lexicalRank float64) float64 {
	return VectorWeight*vectorSimilarity + LexicalWeight*lexicalRank
}

// SearchFilters are conjunctive predicates applied before ranking.
// A nil or empty filter matches everything.
type SearchFilters struct {
	Concepts     []string `json:"concepts,omitempty"`
	MnemonicTags []string `json:"mnemonic_tags,omitempty"`
	HasImage     *bool    `json:"has_image,omitempty"`
	HasCode      *bool    `json:"has_code,omitempty"`
	Domain       *string  `json:"domain,omitempty"`
}

// SearchParams describes one hybrid search against the chunk store
type SearchParams struct {
	Embedding   []float32
	Query       string
	TopK        int
	Collections []Collection
	Filters     SearchFilters
}

// Matches reports whether meta satisfies every filter. The domain filter also
// matches when the domain appears among the chunk's concepts.
func (f SearchFilters) Matches(meta ChunkMeta) bool {
	if len(f.Concepts) > 0 && !overlaps(meta.Concepts, f.Concepts) {
		return false
	}
	if len(f.MnemonicTags) > 0 && !overlaps(meta.MnemonicTags, f.MnemonicTags) {
		return false
	}
	if f.HasImage != nil && meta.HasImage != *f.HasImage {
		return false
	}
	if f.HasCode != nil && meta.HasCode != *f.HasCode {
		return false
	}
	if f.Domain != nil && meta.Domain != *f.Domain && !contains(meta.Concepts, *f.Domain) {
		return false
	}
	return true
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
