package pipeline

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"imagine-rag-backend/content"
	"imagine-rag-backend/models"
)

const (
	unitTypeOverview    = "overview"
	unitTypeBlogSection = "blog_section"
)

// ShapeOverview renders the description of a course, chapter or subchapter as
// one text section. Entities without a description yield nothing.
func ShapeOverview(sourceType models.SourceType, breadcrumb []string, description string) (ContentUnit, bool) {
	body := NormalizeRichText(description)
	if body == "" {
		return ContentUnit{}, false
	}

	var p payload
	p.texts = []string{body}
	return ContentUnit{
		Breadcrumb:    breadcrumb,
		SourceType:    sourceType,
		Kind:          models.UnitTextSection,
		Type:          unitTypeOverview,
		Index:         0,
		Text:          renderUnit(breadcrumb, models.UnitTextSection, 0, unitTypeOverview, p),
		CodeLanguages: []string{},
		Concepts:      []string{},
		MnemonicTags:  []string{},
	}, true
}

// OverviewBreadcrumb lists the titles down to the overview's own level only
func OverviewBreadcrumb(h Hierarchy, sourceType models.SourceType) []string {
	crumbs := []string{orPlaceholder(h.CourseTitle, placeholderCourse)}
	switch sourceType {
	case models.SourceChapter:
		crumbs = append(crumbs, orPlaceholder(h.ChapterTitle, placeholderChapter))
	case models.SourceSubchapter:
		crumbs = append(crumbs,
			orPlaceholder(h.ChapterTitle, placeholderChapter),
			orPlaceholder(h.SubchapterTitle, placeholderSubchapter))
	}
	return crumbs
}

// blogSection is a level-2 heading and the markdown that follows it
type blogSection struct {
	title string
	body  string
}

// splitBlogSections cuts a markdown document at its level-2 headings.
// Text before the first heading becomes an untitled leading section.
func splitBlogSections(markdownBody string) []blogSection {
	src := []byte(strings.ReplaceAll(markdownBody, "\r\n", "\n"))
	doc := markdown.Parser().Parse(text.NewReader(src))

	type cut struct {
		start int
		title string
	}
	var cuts []cut
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 2 || heading.Lines().Len() == 0 {
			continue
		}
		cuts = append(cuts, cut{
			start: lineStart(src, heading.Lines().At(0).Start),
			title: inlineText(heading, src),
		})
	}

	var sections []blogSection
	prev := 0
	prevTitle := ""
	for _, c := range cuts {
		if c.start > prev || prevTitle != "" {
			sections = append(sections, blogSection{title: prevTitle, body: string(src[prev:c.start])})
		}
		prev = c.start
		prevTitle = c.title
	}
	sections = append(sections, blogSection{title: prevTitle, body: string(src[prev:])})
	return sections
}

func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// ShapeBlogPost yields one text section per level-2 heading of the post body
func ShapeBlogPost(post content.BlogPost) []ContentUnit {
	title := strings.TrimSpace(post.Title)
	if title == "" {
		title = post.Slug
	}
	concepts := SlugSet(post.Tags)

	var units []ContentUnit
	for _, section := range splitBlogSections(post.Body) {
		body := NormalizeRichText(section.body)
		if body == "" {
			continue
		}
		breadcrumb := []string{"Blog", title}
		if section.title != "" {
			breadcrumb = append(breadcrumb, section.title)
		}

		idx := len(units)
		var b strings.Builder
		b.WriteString(strings.Join(breadcrumb, " > "))
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%s %d | %s]\n\nText:\n%s", models.UnitTextSection, idx, unitTypeBlogSection, body)

		units = append(units, ContentUnit{
			Breadcrumb:    breadcrumb,
			SourceType:    models.SourceBlogPost,
			Kind:          models.UnitTextSection,
			Type:          unitTypeBlogSection,
			Index:         idx,
			Text:          b.String(),
			HasImage:      false,
			CodeLanguages: fenceLanguages(body),
			Concepts:      concepts,
			MnemonicTags:  []string{},
		})
	}
	return units
}

// fenceLanguages lists the languages of the code fences in normalized text
func fenceLanguages(s string) []string {
	var langs []string
	inFence := false
	for _, line := range strings.Split(s, "\n") {
		if !strings.HasPrefix(line, "```") {
			continue
		}
		if !inFence {
			langs = append(langs, codeLanguage(strings.TrimPrefix(line, "```")))
		}
		inFence = !inFence
	}
	return dedupe(langs)
}
