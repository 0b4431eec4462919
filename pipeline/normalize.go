package pipeline

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Pre-compiled expressions for stripping HTML rich text. Only lowercase tags
// of the formatting allowlist count as markup; anything else, such as
// `Promise<string>` or `<App />`, is literal text.
var (
	scriptTag     = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	preCode       = regexp.MustCompile(`(?is)<pre[^>]*>\s*<code(?:\s+class="(?:language-)?([\w+-]*)")?[^>]*>(.*?)</code>\s*</pre>`)
	formattingTag = regexp.MustCompile(`</?(?:a|abbr|article|b|blockquote|br|caption|cite|code|dd|del|div|dl|dt|em|figcaption|figure|font|h[1-6]|hr|i|img|ins|kbd|li|mark|ol|p|pre|q|s|section|small|span|strike|strong|sub|sup|table|tbody|td|tfoot|th|thead|tr|u|ul)(?:\s[^<>]*)?/?>`)
	blockElements = regexp.MustCompile(`</?(?:p|div|h[1-6]|li|ul|ol|tr|blockquote|table|section|article|figure|hr)(?:\s[^<>]*)?/?>`)
	brTags        = regexp.MustCompile(`<br\s*/?>`)
	anyTag        = regexp.MustCompile(`<[^>]+>`)
	fencedCode    = regexp.MustCompile("(?s)```.*?```")
	inlineCode    = regexp.MustCompile("`[^`\n]+`")
	placeholder   = regexp.MustCompile(`\x00(\d+)\x00`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

var markdown = goldmark.New()

// NormalizeRichText turns an HTML or Markdown rich-text field into plain text.
// Code blocks survive as language-tagged fences; paragraphs are separated by a blank line.
func NormalizeRichText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if isHTML(s) {
		return collapseWhitespace(stripHTML(s))
	}
	return collapseWhitespace(markdownToText([]byte(s)))
}

// isHTML reports whether s carries allowlisted markup outside of code
func isHTML(s string) bool {
	s = fencedCode.ReplaceAllString(s, "")
	s = inlineCode.ReplaceAllString(s, "")
	return formattingTag.MatchString(s) || scriptTag.MatchString(s) || htmlComments.MatchString(s)
}

// shelf holds code fragments that must pass through tag stripping untouched
type shelf []string

func (sh *shelf) put(v string) string {
	*sh = append(*sh, v)
	return "\x00" + strconv.Itoa(len(*sh)-1) + "\x00"
}

func (sh shelf) restore(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		i, err := strconv.Atoi(strings.Trim(m, "\x00"))
		if err != nil || i >= len(sh) {
			return ""
		}
		return sh[i]
	})
}

func stripHTML(s string) string {
	var saved shelf
	s = scriptTag.ReplaceAllString(s, "")
	s = htmlComments.ReplaceAllString(s, "")
	s = preCode.ReplaceAllStringFunc(s, func(m string) string {
		parts := preCode.FindStringSubmatch(m)
		code := html.UnescapeString(anyTag.ReplaceAllString(parts[2], ""))
		return "\n\n" + saved.put(FenceCode(parts[1], code)) + "\n\n"
	})
	s = fencedCode.ReplaceAllStringFunc(s, saved.put)
	s = inlineCode.ReplaceAllStringFunc(s, saved.put)
	s = brTags.ReplaceAllString(s, "\n")
	s = blockElements.ReplaceAllString(s, "\n\n")
	s = formattingTag.ReplaceAllString(s, "")
	return saved.restore(html.UnescapeString(s))
}

// markdownToText walks the goldmark AST and keeps only the readable text.
// Raw HTML is kept as written; entity references in text are decoded.
func markdownToText(src []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(src))
	var b strings.Builder

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			if entering {
				b.WriteString(FenceCode(string(node.Language(src)), linesOf(node, src)))
				b.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if entering {
				b.WriteString(FenceCode("", linesOf(node, src)))
				b.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			if entering {
				b.WriteString("`")
				for c := node.FirstChild(); c != nil; c = c.NextSibling() {
					if t, ok := c.(*ast.Text); ok {
						b.Write(t.Segment.Value(src))
					}
				}
				b.WriteString("`")
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			if entering {
				b.WriteString(linesOf(node, src))
				if node.HasClosure() {
					b.Write(node.ClosureLine.Value(src))
				}
				b.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			if entering {
				for i := 0; i < node.Segments.Len(); i++ {
					seg := node.Segments.At(i)
					b.Write(seg.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			if entering {
				b.Write(node.Label(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.WriteString(html.UnescapeString(string(node.Segment.Value(src))))
				if node.HardLineBreak() {
					b.WriteString("\n")
				} else if node.SoftLineBreak() {
					b.WriteString(" ")
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				b.WriteString("\n\n")
			}
		case *ast.ThematicBreak:
			if entering {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return b.String()
}

func linesOf(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(src))
	}
	return b.String()
}

// collapseWhitespace trims every line and keeps at most one blank line between blocks.
// Fenced code keeps its indentation.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			lines[i] = strings.TrimSpace(line)
			continue
		}
		if inFence {
			lines[i] = strings.TrimRight(line, " \t")
			continue
		}
		lines[i] = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
	}
	out := strings.Join(lines, "\n")
	out = multiNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// FenceCode wraps source in a language-tagged Markdown fence
func FenceCode(language, source string) string {
	return "```" + strings.TrimSpace(language) + "\n" + strings.Trim(source, "\n") + "\n```"
}

// Slug lowercases s, collapses internal whitespace and joins words with hyphens
func Slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// SlugSet slug-normalizes every value of every list, dropping empties and
// duplicates while keeping the order of first appearance
func SlugSet(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, v := range list {
			slug := Slug(v)
			if slug == "" {
				continue
			}
			if _, ok := seen[slug]; ok {
				continue
			}
			seen[slug] = struct{}{}
			out = append(out, slug)
		}
	}
	return out
}
