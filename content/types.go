package content

// Course is the root of the content hierarchy
type Course struct {
	ID          string `yaml:"id" json:"id"`
	UID         string `yaml:"uid" json:"uid"` // reserved unique identifier, e.g. "imagine-js"
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// Chapter belongs to a course
type Chapter struct {
	ID          string `yaml:"id" json:"id"`
	CourseID    string `yaml:"course_id" json:"course_id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// Subchapter belongs to a chapter
type Subchapter struct {
	ID          string `yaml:"id" json:"id"`
	ChapterID   string `yaml:"chapter_id" json:"chapter_id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// PageType is the declared rendering type of a lesson page
type PageType string

const (
	PageBlocks        PageType = "blocks"
	PageTextImageCode PageType = "text_image_code"
	PageTextImage     PageType = "text_image"
	PageTextCode      PageType = "text_code"
	PageText          PageType = "text"
)

// Valid reports whether t is a known page type
func (t PageType) Valid() bool {
	switch t {
	case PageBlocks, PageTextImageCode, PageTextImage, PageTextCode, PageText:
		return true
	}
	return false
}

// Page is one lesson page with its ordered content entries
type Page struct {
	ID           string   `yaml:"id" json:"id"`
	Title        string   `yaml:"title" json:"title"`
	CourseID     string   `yaml:"course_id" json:"course_id"`
	ChapterID    string   `yaml:"chapter_id" json:"chapter_id"`
	SubchapterID string   `yaml:"subchapter_id" json:"subchapter_id"`
	Type         PageType `yaml:"type" json:"type"`
	Concepts     []string `yaml:"concepts" json:"concepts"`
	Entries      Entries  `yaml:"entries" json:"entries"`
}

// Imagimodel is an illustrated mnemonic model made of layers and zones
type Imagimodel struct {
	ID           string   `yaml:"id" json:"id"`
	Title        string   `yaml:"title" json:"title"`
	CourseID     string   `yaml:"course_id" json:"course_id"`
	ChapterID    string   `yaml:"chapter_id" json:"chapter_id"`
	SubchapterID string   `yaml:"subchapter_id" json:"subchapter_id"`
	Concepts     []string `yaml:"concepts" json:"concepts"`
	Layers       []Layer  `yaml:"layers" json:"layers"`
	Zones        []Zone   `yaml:"zones" json:"zones"`
}

// Layer is a named image of an imagimodel
type Layer struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	ImageURL    string `yaml:"image_url" json:"image_url"`
}

// Zone is a named interactive focus region of an imagimodel
type Zone struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	X           float64 `yaml:"x" json:"x"`
	Y           float64 `yaml:"y" json:"y"`
	Zoom        float64 `yaml:"zoom" json:"zoom"`
}

// Reflection is a learner's free-text reflection on a page
type Reflection struct {
	ID          string `yaml:"id" json:"id"`
	UserID      string `yaml:"user_id" json:"user_id"`
	PageID      string `yaml:"page_id" json:"page_id"`
	AuthorLabel string `yaml:"author_label" json:"author_label"`
	Body        string `yaml:"body" json:"body"`
	Comment     string `yaml:"comment" json:"comment"`
}

// Review is a learner's review of a course
type Review struct {
	ID          string `yaml:"id" json:"id"`
	UserID      string `yaml:"user_id" json:"user_id"`
	CourseID    string `yaml:"course_id" json:"course_id"`
	AuthorLabel string `yaml:"author_label" json:"author_label"`
	Rating      int    `yaml:"rating" json:"rating"`
	Body        string `yaml:"body" json:"body"`
}

// BlogPost is a markdown article
type BlogPost struct {
	ID    string   `yaml:"id" json:"id"`
	Slug  string   `yaml:"slug" json:"slug"`
	Title string   `yaml:"title" json:"title"`
	Tags  []string `yaml:"tags" json:"tags"`
	Body  string   `yaml:"body" json:"body"` // markdown
}
