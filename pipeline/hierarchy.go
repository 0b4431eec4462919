package pipeline

import (
	"context"
	"strings"
	"sync"

	"imagine-rag-backend/content"
)

// Breadcrumb placeholders used when an ancestor cannot be resolved
const (
	placeholderCourse     = "Course"
	placeholderChapter    = "Chapter"
	placeholderSubchapter = "Subchapter"
)

// CanonCourse designates the one course whose subchapters act as topic domains
type CanonCourse struct {
	UID   string
	Title string
}

// Matches reports whether course is the canon course, by reserved identifier or by title
func (c CanonCourse) Matches(course *content.Course) bool {
	if course == nil {
		return false
	}
	if c.UID != "" && course.UID != "" && strings.EqualFold(strings.TrimSpace(course.UID), strings.TrimSpace(c.UID)) {
		return true
	}
	return c.Title != "" && strings.EqualFold(strings.TrimSpace(course.Title), strings.TrimSpace(c.Title))
}

// ResolveDomain derives the coarse filtering label of a unit. The canon course is
// organized by subchapter; every other course is its own domain.
func ResolveDomain(canon CanonCourse, course *content.Course, subchapterTitle string) string {
	if course == nil {
		return ""
	}
	if canon.Matches(course) && strings.TrimSpace(subchapterTitle) != "" {
		return Slug(subchapterTitle)
	}
	if uid := Slug(course.UID); uid != "" {
		return uid
	}
	return Slug(course.Title)
}

// Ref names the ancestors an entity declares. Any field may be empty.
type Ref struct {
	CourseID     string
	ChapterID    string
	SubchapterID string
}

// Hierarchy is the resolved ancestor chain of an entity
type Hierarchy struct {
	CourseID        string
	CourseUID       string
	CourseTitle     string
	ChapterID       string
	ChapterTitle    string
	SubchapterID    string
	SubchapterTitle string
	Domain          string
}

// Breadcrumb returns course > chapter > subchapter titles with placeholders for
// missing ancestors, followed by any non-empty leaf titles
func (h Hierarchy) Breadcrumb(leaves ...string) []string {
	crumbs := []string{
		orPlaceholder(h.CourseTitle, placeholderCourse),
		orPlaceholder(h.ChapterTitle, placeholderChapter),
		orPlaceholder(h.SubchapterTitle, placeholderSubchapter),
	}
	for _, leaf := range leaves {
		if leaf = strings.TrimSpace(leaf); leaf != "" {
			crumbs = append(crumbs, leaf)
		}
	}
	return crumbs
}

func orPlaceholder(v, placeholder string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return placeholder
}

// HierarchyCache memoizes resolved hierarchies. It is owned by one Resolver.
type HierarchyCache struct {
	mu      sync.RWMutex
	entries map[Ref]Hierarchy
}

// NewHierarchyCache creates an empty cache
func NewHierarchyCache() *HierarchyCache {
	return &HierarchyCache{entries: make(map[Ref]Hierarchy)}
}

func (c *HierarchyCache) Get(ref Ref) (Hierarchy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.entries[ref]
	return h, ok
}

func (c *HierarchyCache) Put(ref Ref, h Hierarchy) {
	c.mu.Lock()
	c.entries[ref] = h
	c.mu.Unlock()
}

// Clear drops every cached entry
func (c *HierarchyCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[Ref]Hierarchy)
	c.mu.Unlock()
}

func (c *HierarchyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Resolver looks up ancestors in the content store and derives the domain.
// Missing ancestors never fail resolution; they come back empty.
type Resolver struct {
	src   content.Source
	canon CanonCourse
	cache *HierarchyCache
}

// NewResolver creates a resolver with its own cache
func NewResolver(src content.Source, canon CanonCourse) *Resolver {
	return &Resolver{src: src, canon: canon, cache: NewHierarchyCache()}
}

// Cache exposes the resolver's cache so callers can clear it between runs
func (r *Resolver) Cache() *HierarchyCache {
	return r.cache
}

// Resolve walks subchapter → chapter → course, filling ids the entity did not declare
func (r *Resolver) Resolve(ctx context.Context, ref Ref) Hierarchy {
	if h, ok := r.cache.Get(ref); ok {
		return h
	}

	h := Hierarchy{
		CourseID:     ref.CourseID,
		ChapterID:    ref.ChapterID,
		SubchapterID: ref.SubchapterID,
	}

	if sub, err := r.src.Subchapter(ctx, ref.SubchapterID); err == nil {
		h.SubchapterTitle = sub.Title
		if h.ChapterID == "" {
			h.ChapterID = sub.ChapterID
		}
	}

	if chapter, err := r.src.Chapter(ctx, h.ChapterID); err == nil {
		h.ChapterTitle = chapter.Title
		if h.CourseID == "" {
			h.CourseID = chapter.CourseID
		}
	}

	course, err := r.src.Course(ctx, h.CourseID)
	if err != nil {
		course = nil
	} else {
		h.CourseUID = course.UID
		h.CourseTitle = course.Title
	}

	h.Domain = ResolveDomain(r.canon, course, h.SubchapterTitle)
	r.cache.Put(ref, h)
	return h
}
