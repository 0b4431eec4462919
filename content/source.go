package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"imagine-rag-backend/storage"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when an entity lookup misses
var ErrNotFound = errors.New("content entity not found")

// Source answers "give me entity X and its declared ancestors"
type Source interface {
	Course(ctx context.Context, id string) (*Course, error)
	Chapter(ctx context.Context, id string) (*Chapter, error)
	Subchapter(ctx context.Context, id string) (*Subchapter, error)
	Page(ctx context.Context, id string) (*Page, error)

	Courses(ctx context.Context) ([]Course, error)
	Chapters(ctx context.Context) ([]Chapter, error)
	Subchapters(ctx context.Context) ([]Subchapter, error)
	Pages(ctx context.Context) ([]Page, error)
	Imagimodels(ctx context.Context) ([]Imagimodel, error)
	Reflections(ctx context.Context) ([]Reflection, error)
	Reviews(ctx context.Context) ([]Review, error)
	BlogPosts(ctx context.Context) ([]BlogPost, error)
}

// Snapshot is one CMS export document (YAML or JSON)
type Snapshot struct {
	Courses     []Course     `yaml:"courses"`
	Chapters    []Chapter    `yaml:"chapters"`
	Subchapters []Subchapter `yaml:"subchapters"`
	Pages       []Page       `yaml:"pages"`
	Imagimodels []Imagimodel `yaml:"imagimodels"`
	Reflections []Reflection `yaml:"reflections"`
	Reviews     []Review     `yaml:"reviews"`
	BlogPosts   []BlogPost   `yaml:"blog_posts"`
}

// ParseSnapshot decodes a snapshot document. JSON documents are accepted as YAML.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	snap := &Snapshot{}
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, nil
	}
	if err := yaml.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotSource serves lookups from one or more merged snapshots held in memory
type SnapshotSource struct {
	snap        Snapshot
	courses     map[string]*Course
	chapters    map[string]*Chapter
	subchapters map[string]*Subchapter
	pages       map[string]*Page
}

var _ Source = (*SnapshotSource)(nil)

// NewSnapshotSource merges snapshots in order. Later entities with a repeated id replace earlier ones.
func NewSnapshotSource(snaps ...*Snapshot) *SnapshotSource {
	s := &SnapshotSource{
		courses:     make(map[string]*Course),
		chapters:    make(map[string]*Chapter),
		subchapters: make(map[string]*Subchapter),
		pages:       make(map[string]*Page),
	}
	for _, snap := range snaps {
		if snap == nil {
			continue
		}
		s.snap.Courses = mergeByID(s.snap.Courses, snap.Courses, func(c Course) string { return c.ID })
		s.snap.Chapters = mergeByID(s.snap.Chapters, snap.Chapters, func(c Chapter) string { return c.ID })
		s.snap.Subchapters = mergeByID(s.snap.Subchapters, snap.Subchapters, func(c Subchapter) string { return c.ID })
		s.snap.Pages = mergeByID(s.snap.Pages, snap.Pages, func(p Page) string { return p.ID })
		s.snap.Imagimodels = mergeByID(s.snap.Imagimodels, snap.Imagimodels, func(m Imagimodel) string { return m.ID })
		s.snap.Reflections = mergeByID(s.snap.Reflections, snap.Reflections, func(r Reflection) string { return r.ID })
		s.snap.Reviews = mergeByID(s.snap.Reviews, snap.Reviews, func(r Review) string { return r.ID })
		s.snap.BlogPosts = mergeByID(s.snap.BlogPosts, snap.BlogPosts, func(b BlogPost) string { return b.ID })
	}
	for i := range s.snap.Courses {
		s.courses[s.snap.Courses[i].ID] = &s.snap.Courses[i]
	}
	for i := range s.snap.Chapters {
		s.chapters[s.snap.Chapters[i].ID] = &s.snap.Chapters[i]
	}
	for i := range s.snap.Subchapters {
		s.subchapters[s.snap.Subchapters[i].ID] = &s.snap.Subchapters[i]
	}
	for i := range s.snap.Pages {
		s.pages[s.snap.Pages[i].ID] = &s.snap.Pages[i]
	}
	return s
}

func mergeByID[T any](dst, src []T, id func(T) string) []T {
	pos := make(map[string]int, len(dst))
	for i, item := range dst {
		pos[id(item)] = i
	}
	for _, item := range src {
		if i, ok := pos[id(item)]; ok {
			dst[i] = item
			continue
		}
		pos[id(item)] = len(dst)
		dst = append(dst, item)
	}
	return dst
}

func lookup[T any](m map[string]*T, id string) (*T, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	v, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *v
	return &out, nil
}

func (s *SnapshotSource) Course(_ context.Context, id string) (*Course, error) {
	return lookup(s.courses, id)
}

func (s *SnapshotSource) Chapter(_ context.Context, id string) (*Chapter, error) {
	return lookup(s.chapters, id)
}

func (s *SnapshotSource) Subchapter(_ context.Context, id string) (*Subchapter, error) {
	return lookup(s.subchapters, id)
}

func (s *SnapshotSource) Page(_ context.Context, id string) (*Page, error) {
	return lookup(s.pages, id)
}

func (s *SnapshotSource) Courses(context.Context) ([]Course, error) { return s.snap.Courses, nil }
func (s *SnapshotSource) Chapters(context.Context) ([]Chapter, error) {
	return s.snap.Chapters, nil
}
func (s *SnapshotSource) Subchapters(context.Context) ([]Subchapter, error) {
	return s.snap.Subchapters, nil
}
func (s *SnapshotSource) Pages(context.Context) ([]Page, error) { return s.snap.Pages, nil }
func (s *SnapshotSource) Imagimodels(context.Context) ([]Imagimodel, error) {
	return s.snap.Imagimodels, nil
}
func (s *SnapshotSource) Reflections(context.Context) ([]Reflection, error) {
	return s.snap.Reflections, nil
}
func (s *SnapshotSource) Reviews(context.Context) ([]Review, error) { return s.snap.Reviews, nil }
func (s *SnapshotSource) BlogPosts(context.Context) ([]BlogPost, error) {
	return s.snap.BlogPosts, nil
}

// Loader builds a SnapshotSource from every snapshot document under a storage prefix.
// The loaded source is cached until Invalidate is called.
type Loader struct {
	store  storage.Storage
	prefix string

	mu     sync.Mutex
	cached *SnapshotSource
}

// NewLoader creates a loader over store
func NewLoader(store storage.Storage, prefix string) *Loader {
	return &Loader{store: store, prefix: prefix}
}

// Load returns the cached source, reading and parsing the snapshots on first use
func (l *Loader) Load(ctx context.Context) (Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != nil {
		return l.cached, nil
	}

	keys, err := l.store.List(ctx, l.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var snaps []*Snapshot
	for _, key := range keys {
		switch path.Ext(key) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		snap, err := l.read(ctx, key)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}

	l.cached = NewSnapshotSource(snaps...)
	return l.cached, nil
}

func (l *Loader) read(ctx context.Context, key string) (*Snapshot, error) {
	rc, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	snap, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return snap, nil
}

// Invalidate drops the cached source so the next Load re-reads storage
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
}
