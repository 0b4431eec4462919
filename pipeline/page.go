package pipeline

import (
	"imagine-rag-backend/content"
	"imagine-rag-backend/models"
)

// sectionState is the state of the blocks sectioning machine
type sectionState int

const (
	noOpenSection sectionState = iota
	openSection
)

// sectioner groups adjacent blocks entries. A boundary entry (one carrying an
// image, or a code editor) joins the open section and then closes it.
type sectioner struct {
	state    sectionState
	current  payload
	sections []payload
}

func (s *sectioner) feed(e content.Entry) {
	p := entryPayload(e)
	if p.empty() {
		return
	}
	if s.state == noOpenSection {
		s.current = payload{}
		s.state = openSection
	}
	s.current.merge(p)
	if isBoundary(e) {
		s.flush()
	}
}

func (s *sectioner) flush() {
	if s.state == openSection && !s.current.empty() {
		s.sections = append(s.sections, s.current)
	}
	s.current = payload{}
	s.state = noOpenSection
}

// ShapePage decomposes a lesson page into ordered units. Blocks pages are
// sectioned; every other page type yields one slide per non-empty entry.
func ShapePage(h Hierarchy, page content.Page) []ContentUnit {
	breadcrumb := h.Breadcrumb(page.Title)

	if page.Type == content.PageBlocks {
		var s sectioner
		for _, e := range page.Entries {
			s.feed(e)
		}
		s.flush()

		units := make([]ContentUnit, 0, len(s.sections))
		for i, p := range s.sections {
			units = append(units, pageUnit(breadcrumb, models.UnitBlock, string(content.PageBlocks), i, page.Concepts, p))
		}
		return units
	}

	unitType := string(page.Type)
	if unitType == "" {
		unitType = string(content.PageText)
	}

	units := make([]ContentUnit, 0, len(page.Entries))
	for _, e := range page.Entries {
		p := entryPayload(e)
		if p.empty() {
			continue
		}
		units = append(units, pageUnit(breadcrumb, models.UnitSlide, unitType, len(units), page.Concepts, p))
	}
	return units
}

func pageUnit(breadcrumb []string, kind models.UnitKind, unitType string, index int, pageConcepts []string, p payload) ContentUnit {
	return ContentUnit{
		Breadcrumb:    breadcrumb,
		SourceType:    models.SourcePageUnit,
		Kind:          kind,
		Type:          unitType,
		Index:         index,
		Text:          renderUnit(breadcrumb, kind, index, unitType, p),
		HasImage:      p.hasImage,
		CodeLanguages: dedupe(p.languages),
		Concepts:      SlugSet(pageConcepts, p.concepts),
		MnemonicTags:  SlugSet(p.actors),
	}
}
