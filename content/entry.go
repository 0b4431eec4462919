package content

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// EntryKind is the component type of a page content entry
type EntryKind string

const (
	EntryText          EntryKind = "text"
	EntryTextImage     EntryKind = "text_image"
	EntryTextImageCode EntryKind = "text_image_code"
	EntryTextCode      EntryKind = "text_code"
	EntryCodeEditor    EntryKind = "code_editor"
	EntryImage         EntryKind = "image"
	EntryUnknown       EntryKind = "unknown"
)

// Entry is one typed content entry of a page. The set of implementations is closed.
type Entry interface {
	Kind() EntryKind
	isEntry()
}

// Image is an illustration attached to an entry
type Image struct {
	URL            string               `yaml:"url" json:"url"`
	Alt            string               `yaml:"alt" json:"alt"`
	Caption        string               `yaml:"caption" json:"caption"`
	Classification *ImageClassification `yaml:"classification" json:"classification,omitempty"`
}

// ImageClassification annotates an illustration with its mnemonic cast
type ImageClassification struct {
	Actors   []string `yaml:"actors" json:"actors"`
	Actions  []string `yaml:"actions" json:"actions"`
	Concepts []string `yaml:"concepts" json:"concepts"`
}

// Code is a source snippet attached to an entry
type Code struct {
	Language string `yaml:"language" json:"language"`
	Source   string `yaml:"source" json:"source"`
}

type TextEntry struct{ Text string }

type TextImageEntry struct {
	Text  string
	Image Image
}

type TextImageCodeEntry struct {
	Text  string
	Image Image
	Code  Code
}

type TextCodeEntry struct {
	Text string
	Code Code
}

type CodeEditorEntry struct{ Code Code }

type ImageEntry struct{ Image Image }

// UnknownEntry keeps the component name of an entry that could not be decoded
type UnknownEntry struct{ Component string }

func (TextEntry) Kind() EntryKind          { return EntryText }
func (TextImageEntry) Kind() EntryKind     { return EntryTextImage }
func (TextImageCodeEntry) Kind() EntryKind { return EntryTextImageCode }
func (TextCodeEntry) Kind() EntryKind      { return EntryTextCode }
func (CodeEditorEntry) Kind() EntryKind    { return EntryCodeEditor }
func (ImageEntry) Kind() EntryKind         { return EntryImage }
func (UnknownEntry) Kind() EntryKind       { return EntryUnknown }

func (TextEntry) isEntry()          {}
func (TextImageEntry) isEntry()     {}
func (TextImageCodeEntry) isEntry() {}
func (TextCodeEntry) isEntry()      {}
func (CodeEditorEntry) isEntry()    {}
func (ImageEntry) isEntry()         {}
func (UnknownEntry) isEntry()       {}

// RawEntry is the wire shape of an entry in a CMS export
type RawEntry struct {
	Component string `yaml:"component" json:"component"`
	Text      string `yaml:"text" json:"text"`
	Image     *Image `yaml:"image" json:"image,omitempty"`
	Code      *Code  `yaml:"code" json:"code,omitempty"`
}

// DecodeEntry converts a raw entry into its typed variant.
// Component names the CMS prefixes with a namespace ("lesson.text_image") are accepted.
func DecodeEntry(raw RawEntry) Entry {
	image := Image{}
	if raw.Image != nil {
		image = *raw.Image
	}
	code := Code{}
	if raw.Code != nil {
		code = *raw.Code
	}

	switch EntryKind(componentName(raw.Component)) {
	case EntryText:
		return TextEntry{Text: raw.Text}
	case EntryTextImage:
		return TextImageEntry{Text: raw.Text, Image: image}
	case EntryTextImageCode:
		return TextImageCodeEntry{Text: raw.Text, Image: image, Code: code}
	case EntryTextCode:
		return TextCodeEntry{Text: raw.Text, Code: code}
	case EntryCodeEditor:
		return CodeEditorEntry{Code: code}
	case EntryImage:
		return ImageEntry{Image: image}
	default:
		return UnknownEntry{Component: raw.Component}
	}
}

func componentName(c string) string {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i] == '.' {
			return c[i+1:]
		}
	}
	return c
}

// Entries is an ordered list of typed entries
type Entries []Entry

// UnmarshalYAML decodes raw entries into their typed variants
func (e *Entries) UnmarshalYAML(value *yaml.Node) error {
	var raws []RawEntry
	if err := value.Decode(&raws); err != nil {
		return fmt.Errorf("failed to decode entries: %w", err)
	}
	out := make(Entries, 0, len(raws))
	for _, raw := range raws {
		out = append(out, DecodeEntry(raw))
	}
	*e = out
	return nil
}
