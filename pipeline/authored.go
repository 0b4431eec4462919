package pipeline

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"imagine-rag-backend/content"
	"imagine-rag-backend/models"
)

// PIIUserContent marks chunks derived from learner-authored text
const PIIUserContent = 1

// UserHasher derives a stable one-way reference for a user id
type UserHasher struct {
	key []byte
}

// NewUserHasher keys the hash with salt. Salts longer than a blake2b key are
// compressed first.
func NewUserHasher(salt string) *UserHasher {
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &UserHasher{key: key}
}

// Hash returns "u_" followed by 16 hex characters, or "" for an empty id
func (h *UserHasher) Hash(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ""
	}
	// key length is bounded by NewUserHasher
	mac, _ := blake2b.New256(h.key)
	mac.Write([]byte(userID))
	return "u_" + hex.EncodeToString(mac.Sum(nil))[:16]
}

func authorLine(label, userHash string) string {
	label = strings.TrimSpace(label)
	switch {
	case label != "" && userHash != "":
		return fmt.Sprintf("Author: %s (%s)", label, userHash)
	case label != "":
		return "Author: " + label
	case userHash != "":
		return "Author: " + userHash
	}
	return ""
}

// ShapeReflection renders a learner reflection as exactly one text section,
// even when body and comment are blank.
// The raw user id never reaches the text; only its hash does.
func ShapeReflection(h Hierarchy, pageTitle string, r content.Reflection, userHash string) ContentUnit {
	body := NormalizeRichText(r.Body)
	comment := NormalizeRichText(r.Comment)

	breadcrumb := h.Breadcrumb(pageTitle, "Reflection")
	var b strings.Builder
	b.WriteString(strings.Join(breadcrumb, " > "))
	b.WriteString("\n")
	fmt.Fprintf(&b, "[%s %d | %s]", models.UnitTextSection, 0, models.SourceReflection)
	if body != "" {
		b.WriteString("\n\nText:\n")
		b.WriteString(body)
	}
	if comment != "" {
		b.WriteString("\n\nComment:\n")
		b.WriteString(comment)
	}
	if author := authorLine(r.AuthorLabel, userHash); author != "" {
		b.WriteString("\n\n")
		b.WriteString(author)
	}

	return ContentUnit{
		Breadcrumb:    breadcrumb,
		SourceType:    models.SourceReflection,
		Kind:          models.UnitTextSection,
		Type:          string(models.SourceReflection),
		Index:         0,
		Text:          b.String(),
		CodeLanguages: []string{},
		Concepts:      []string{},
		MnemonicTags:  []string{},
	}
}

// ShapeReview renders a course review as one text section
func ShapeReview(h Hierarchy, r content.Review, userHash string) (ContentUnit, bool) {
	body := NormalizeRichText(r.Body)
	if body == "" {
		return ContentUnit{}, false
	}

	breadcrumb := []string{orPlaceholder(h.CourseTitle, placeholderCourse), "Review"}
	var b strings.Builder
	b.WriteString(strings.Join(breadcrumb, " > "))
	b.WriteString("\n")
	fmt.Fprintf(&b, "[%s %d | %s]", models.UnitTextSection, 0, models.SourceReview)
	if r.Rating > 0 {
		fmt.Fprintf(&b, "\n\nRating: %d/5", r.Rating)
	}
	b.WriteString("\n\nText:\n")
	b.WriteString(body)
	if author := authorLine(r.AuthorLabel, userHash); author != "" {
		b.WriteString("\n\n")
		b.WriteString(author)
	}

	return ContentUnit{
		Breadcrumb:    breadcrumb,
		SourceType:    models.SourceReview,
		Kind:          models.UnitTextSection,
		Type:          string(models.SourceReview),
		Index:         0,
		Text:          b.String(),
		CodeLanguages: []string{},
		Concepts:      []string{},
		MnemonicTags:  []string{},
	}, true
}
