package pipeline

import (
	"fmt"
	"strings"

	"imagine-rag-backend/content"
	"imagine-rag-backend/models"
)

// DefaultCodeLanguage is assumed for code entries that declare no language
const DefaultCodeLanguage = "js"

var languageAliases = map[string]string{
	"javascript": "js",
	"typescript": "ts",
	"python":     "py",
	"shell":      "sh",
	"bash":       "sh",
}

// ContentUnit is one semantically coherent slice of a source entity, ready to be split
type ContentUnit struct {
	Breadcrumb    []string
	SourceType    models.SourceType
	Kind          models.UnitKind
	Type          string
	Index         int
	Text          string
	HasImage      bool
	CodeLanguages []string
	Concepts      []string
	MnemonicTags  []string
}

// HasCode reports whether any code was rendered into the unit
func (u ContentUnit) HasCode() bool {
	return len(u.CodeLanguages) > 0
}

// payload accumulates the normalized parts of one or more entries
type payload struct {
	hasImage  bool
	images    []string
	texts     []string
	codes     []string
	languages []string
	concepts  []string
	actors    []string
}

func (p *payload) empty() bool {
	return !p.hasImage && len(p.texts) == 0 && len(p.codes) == 0
}

func (p *payload) addText(raw string) {
	if t := NormalizeRichText(raw); t != "" {
		p.texts = append(p.texts, t)
	}
}

func (p *payload) addImage(img content.Image) {
	desc := describeImage(img)
	if desc == "" && strings.TrimSpace(img.URL) == "" {
		return
	}
	p.hasImage = true
	if desc != "" {
		p.images = append(p.images, desc)
	}
	if img.Classification != nil {
		p.concepts = append(p.concepts, img.Classification.Concepts...)
		p.actors = append(p.actors, img.Classification.Actors...)
	}
}

func (p *payload) addCode(code content.Code) {
	src := strings.Trim(code.Source, "\n")
	if strings.TrimSpace(src) == "" {
		return
	}
	lang := codeLanguage(code.Language)
	p.codes = append(p.codes, FenceCode(lang, src))
	p.languages = append(p.languages, lang)
}

// merge appends the parts of other in order
func (p *payload) merge(other payload) {
	p.hasImage = p.hasImage || other.hasImage
	p.images = append(p.images, other.images...)
	p.texts = append(p.texts, other.texts...)
	p.codes = append(p.codes, other.codes...)
	p.languages = append(p.languages, other.languages...)
	p.concepts = append(p.concepts, other.concepts...)
	p.actors = append(p.actors, other.actors...)
}

// entryPayload extracts the renderable parts of an entry. Unknown entries yield nothing.
func entryPayload(e content.Entry) payload {
	var p payload
	switch entry := e.(type) {
	case content.TextEntry:
		p.addText(entry.Text)
	case content.TextImageEntry:
		p.addImage(entry.Image)
		p.addText(entry.Text)
	case content.TextImageCodeEntry:
		p.addImage(entry.Image)
		p.addText(entry.Text)
		p.addCode(entry.Code)
	case content.TextCodeEntry:
		p.addText(entry.Text)
		p.addCode(entry.Code)
	case content.CodeEditorEntry:
		p.addCode(entry.Code)
	case content.ImageEntry:
		p.addImage(entry.Image)
	case content.UnknownEntry:
	}
	return p
}

// isBoundary reports whether an entry closes a blocks section
func isBoundary(e content.Entry) bool {
	switch e.(type) {
	case content.TextImageEntry, content.TextImageCodeEntry, content.ImageEntry, content.CodeEditorEntry:
		return true
	}
	return false
}

func codeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return DefaultCodeLanguage
	}
	if alias, ok := languageAliases[lang]; ok {
		return alias
	}
	return lang
}

// describeImage renders an image as text: alt, caption, then the classification
func describeImage(img content.Image) string {
	var parts []string
	if alt := NormalizeRichText(img.Alt); alt != "" {
		parts = append(parts, alt)
	}
	if caption := NormalizeRichText(img.Caption); caption != "" {
		parts = append(parts, caption)
	}
	if c := img.Classification; c != nil {
		if len(c.Actors) > 0 {
			parts = append(parts, "Actors: "+strings.Join(c.Actors, ", "))
		}
		if len(c.Actions) > 0 {
			parts = append(parts, "Actions: "+strings.Join(c.Actions, ", "))
		}
		if len(c.Concepts) > 0 {
			parts = append(parts, "Concepts: "+strings.Join(c.Concepts, ", "))
		}
	}
	return strings.Join(parts, " | ")
}

// renderUnit lays out a unit's text: breadcrumb, marker, then the optional sections
func renderUnit(breadcrumb []string, kind models.UnitKind, index int, unitType string, p payload) string {
	var b strings.Builder
	b.WriteString(strings.Join(breadcrumb, " > "))
	b.WriteString("\n")
	fmt.Fprintf(&b, "[%s %d | %s]", kind, index, unitType)

	if len(p.images) > 0 {
		b.WriteString("\n\nImages:")
		for _, img := range p.images {
			b.WriteString("\n- ")
			b.WriteString(img)
		}
	}
	if len(p.texts) > 0 {
		b.WriteString("\n\nText:\n")
		b.WriteString(strings.Join(p.texts, "\n\n"))
	}
	if len(p.codes) > 0 {
		b.WriteString("\n\nCode:\n")
		b.WriteString(strings.Join(p.codes, "\n\n"))
	}
	return b.String()
}

// dedupe keeps the first appearance of every non-empty value
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
