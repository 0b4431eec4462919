package pipeline

import (
	"context"
	"fmt"

	"imagine-rag-backend/content"
	"imagine-rag-backend/models"
)

const blogDomain = "blog"

// EntityBatch holds every chunk currently derived from one source entity
type EntityBatch struct {
	Collection  models.Collection
	SourceID    string
	SourceTypes []models.SourceType
	Chunks      []models.Chunk
}

// ChunkUIDs returns the complete current uid set of the entity
func (b EntityBatch) ChunkUIDs() []string {
	uids := make([]string, 0, len(b.Chunks))
	for _, c := range b.Chunks {
		uids = append(uids, c.ChunkUID)
	}
	return uids
}

// Job exports a single source entity
type Job struct {
	Collection models.Collection
	SourceID   string
	run        func(ctx context.Context) (EntityBatch, error)
}

// Run shapes, splits and identifies the entity's chunks
func (j Job) Run(ctx context.Context) (EntityBatch, error) {
	if err := ctx.Err(); err != nil {
		return EntityBatch{}, err
	}
	return j.run(ctx)
}

// Exporter drives resolver, shapers and splitter over a content source
type Exporter struct {
	src      content.Source
	resolver *Resolver
	splitter Splitter
	hasher   *UserHasher
}

// ExporterOption configures an Exporter
type ExporterOption func(*Exporter)

// ExporterWithSplitter overrides the default splitter bounds
func ExporterWithSplitter(s Splitter) ExporterOption {
	return func(e *Exporter) {
		e.splitter = s
	}
}

// ExporterWithUserHasher sets the hasher used for learner-authored content
func ExporterWithUserHasher(h *UserHasher) ExporterOption {
	return func(e *Exporter) {
		e.hasher = h
	}
}

// NewExporter creates an exporter over src
func NewExporter(src content.Source, canon CanonCourse, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		src:      src,
		resolver: NewResolver(src, canon),
		splitter: NewSplitter(),
		hasher:   NewUserHasher(""),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan lists one job per source entity of the requested collections, in
// content store order. Collections without a shaper produce no jobs.
func (e *Exporter) Plan(ctx context.Context, collections []models.Collection) ([]Job, error) {
	var jobs []Job
	for _, collection := range collections {
		planned, err := e.plan(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("failed to plan %s: %w", collection, err)
		}
		jobs = append(jobs, planned...)
	}
	return jobs, nil
}

// Export runs every planned job sequentially and hands each batch to fn
func (e *Exporter) Export(ctx context.Context, collections []models.Collection, fn func(EntityBatch) error) error {
	jobs, err := e.Plan(ctx, collections)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		batch, err := job.Run(ctx)
		if err != nil {
			return fmt.Errorf("failed to export %s/%s: %w", job.Collection, job.SourceID, err)
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) plan(ctx context.Context, collection models.Collection) ([]Job, error) {
	switch collection {
	case models.CollectionCourseContent:
		return e.planPages(ctx)
	case models.CollectionOverviews:
		return e.planOverviews(ctx)
	case models.CollectionMnemonics:
		return e.planImagimodels(ctx)
	case models.CollectionReflections:
		return e.planReflections(ctx)
	case models.CollectionReviews:
		return e.planReviews(ctx)
	case models.CollectionBlog:
		return e.planBlogPosts(ctx)
	case models.CollectionSurveys, models.CollectionNotion:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown collection %q", collection)
}

func (e *Exporter) planPages(ctx context.Context) ([]Job, error) {
	pages, err := e.src.Pages(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(pages))
	for _, page := range pages {
		jobs = append(jobs, Job{
			Collection: models.CollectionCourseContent,
			SourceID:   page.ID,
			run: func(ctx context.Context) (EntityBatch, error) {
				h := e.resolver.Resolve(ctx, Ref{CourseID: page.CourseID, ChapterID: page.ChapterID, SubchapterID: page.SubchapterID})
				meta := baseMeta(models.CollectionCourseContent, page.ID, h)
				meta.PageID = page.ID
				meta.PageTitle = page.Title
				return e.batch(meta, []models.SourceType{models.SourcePageUnit}, ShapePage(h, page)), nil
			},
		})
	}
	return jobs, nil
}

func (e *Exporter) planOverviews(ctx context.Context) ([]Job, error) {
	courses, err := e.src.Courses(ctx)
	if err != nil {
		return nil, err
	}
	chapters, err := e.src.Chapters(ctx)
	if err != nil {
		return nil, err
	}
	subchapters, err := e.src.Subchapters(ctx)
	if err != nil {
		return nil, err
	}

	var jobs []Job
	for _, course := range courses {
		jobs = append(jobs, e.overviewJob(models.SourceCourse, course.ID, Ref{CourseID: course.ID}, course.Description))
	}
	for _, chapter := range chapters {
		jobs = append(jobs, e.overviewJob(models.SourceChapter, chapter.ID, Ref{CourseID: chapter.CourseID, ChapterID: chapter.ID}, chapter.Description))
	}
	for _, sub := range subchapters {
		jobs = append(jobs, e.overviewJob(models.SourceSubchapter, sub.ID, Ref{ChapterID: sub.ChapterID, SubchapterID: sub.ID}, sub.Description))
	}
	return jobs, nil
}

func (e *Exporter) overviewJob(sourceType models.SourceType, id string, ref Ref, description string) Job {
	return Job{
		Collection: models.CollectionOverviews,
		SourceID:   id,
		run: func(ctx context.Context) (EntityBatch, error) {
			h := e.resolver.Resolve(ctx, ref)
			var units []ContentUnit
			if unit, ok := ShapeOverview(sourceType, OverviewBreadcrumb(h, sourceType), description); ok {
				units = append(units, unit)
			}
			return e.batch(baseMeta(models.CollectionOverviews, id, h), []models.SourceType{sourceType}, units), nil
		},
	}
}

func (e *Exporter) planImagimodels(ctx context.Context) ([]Job, error) {
	imagimodels, err := e.src.Imagimodels(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(imagimodels))
	for _, model := range imagimodels {
		jobs = append(jobs, Job{
			Collection: models.CollectionMnemonics,
			SourceID:   model.ID,
			run: func(ctx context.Context) (EntityBatch, error) {
				h := e.resolver.Resolve(ctx, Ref{CourseID: model.CourseID, ChapterID: model.ChapterID, SubchapterID: model.SubchapterID})
				return e.batch(
					baseMeta(models.CollectionMnemonics, model.ID, h),
					[]models.SourceType{models.SourceImagimodelLayer, models.SourceImagimodelZone},
					ShapeImagimodel(h, model),
				), nil
			},
		})
	}
	return jobs, nil
}

func (e *Exporter) planReflections(ctx context.Context) ([]Job, error) {
	reflections, err := e.src.Reflections(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(reflections))
	for _, r := range reflections {
		jobs = append(jobs, Job{
			Collection: models.CollectionReflections,
			SourceID:   r.ID,
			run: func(ctx context.Context) (EntityBatch, error) {
				var ref Ref
				var pageTitle string
				if page, err := e.src.Page(ctx, r.PageID); err == nil {
					ref = Ref{CourseID: page.CourseID, ChapterID: page.ChapterID, SubchapterID: page.SubchapterID}
					pageTitle = page.Title
				}
				h := e.resolver.Resolve(ctx, ref)
				userHash := e.hasher.Hash(r.UserID)

				meta := baseMeta(models.CollectionReflections, r.ID, h)
				meta.PageID = r.PageID
				meta.PageTitle = pageTitle
				meta.PIILevel = PIIUserContent
				meta.AuthorLabel = r.AuthorLabel
				meta.UserHash = userHash

				units := []ContentUnit{ShapeReflection(h, pageTitle, r, userHash)}
				return e.batch(meta, []models.SourceType{models.SourceReflection}, units), nil
			},
		})
	}
	return jobs, nil
}

func (e *Exporter) planReviews(ctx context.Context) ([]Job, error) {
	reviews, err := e.src.Reviews(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(reviews))
	for _, r := range reviews {
		jobs = append(jobs, Job{
			Collection: models.CollectionReviews,
			SourceID:   r.ID,
			run: func(ctx context.Context) (EntityBatch, error) {
				h := e.resolver.Resolve(ctx, Ref{CourseID: r.CourseID})
				userHash := e.hasher.Hash(r.UserID)

				meta := baseMeta(models.CollectionReviews, r.ID, h)
				meta.PIILevel = PIIUserContent
				meta.AuthorLabel = r.AuthorLabel
				meta.UserHash = userHash

				var units []ContentUnit
				if unit, ok := ShapeReview(h, r, userHash); ok {
					units = append(units, unit)
				}
				return e.batch(meta, []models.SourceType{models.SourceReview}, units), nil
			},
		})
	}
	return jobs, nil
}

func (e *Exporter) planBlogPosts(ctx context.Context) ([]Job, error) {
	posts, err := e.src.BlogPosts(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(posts))
	for _, post := range posts {
		jobs = append(jobs, Job{
			Collection: models.CollectionBlog,
			SourceID:   post.ID,
			run: func(ctx context.Context) (EntityBatch, error) {
				meta := baseMeta(models.CollectionBlog, post.ID, Hierarchy{Domain: blogDomain})
				return e.batch(meta, []models.SourceType{models.SourceBlogPost}, ShapeBlogPost(post)), nil
			},
		})
	}
	return jobs, nil
}

func baseMeta(collection models.Collection, sourceID string, h Hierarchy) models.ChunkMeta {
	return models.ChunkMeta{
		Collection:      collection,
		SourceID:        sourceID,
		CourseID:        h.CourseID,
		CourseTitle:     h.CourseTitle,
		ChapterID:       h.ChapterID,
		ChapterTitle:    h.ChapterTitle,
		SubchapterID:    h.SubchapterID,
		SubchapterTitle: h.SubchapterTitle,
		Domain:          h.Domain,
	}
}

// batch splits every unit and stamps each fragment with its identity
func (e *Exporter) batch(base models.ChunkMeta, sourceTypes []models.SourceType, units []ContentUnit) EntityBatch {
	b := EntityBatch{
		Collection:  base.Collection,
		SourceID:    base.SourceID,
		SourceTypes: sourceTypes,
		Chunks:      []models.Chunk{},
	}
	for _, unit := range units {
		for i, fragment := range e.splitter.Split(unit.Text) {
			meta := base
			meta.SourceType = unit.SourceType
			meta.UnitKind = unit.Kind
			meta.UnitType = unit.Type
			meta.UnitIdx = unit.Index
			meta.ChunkIdx = i
			meta.HasImage = unit.HasImage
			meta.HasCode = unit.HasCode()
			meta.CodeLanguages = nonNil(unit.CodeLanguages)
			meta.Concepts = nonNil(unit.Concepts)
			meta.MnemonicTags = nonNil(unit.MnemonicTags)

			b.Chunks = append(b.Chunks, models.Chunk{
				ChunkUID: models.ChunkUID(meta.Collection, meta.SourceType, meta.SourceID, meta.UnitIdx, meta.ChunkIdx),
				Text:     fragment,
				Meta:     meta,
			})
		}
	}
	return b
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
