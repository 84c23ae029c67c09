// Package content derives the cached title, description and tags of a post
// from its raw Markdown.
package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	MaxTitleRunes       = 100
	MaxDescriptionRunes = 160
)

var (
	tagPattern = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_-]+)`)
	spaces     = regexp.MustCompile(`\s+`)

	markdown = goldmark.New()
)

// Derived holds the fields cached on a post at write time.
type Derived struct {
	Title       string
	Description string
	// Tags is nil when the content carries none.
	Tags []string
}

// Derive computes the title, description and tags of content. Tags come from
// the last non-empty line only; they stay in the content but are left out of
// the title and description.
func Derive(content string) Derived {
	body, tags := splitTags(content)
	title, description := summarize(body)
	return Derived{Title: title, Description: description, Tags: tags}
}

// NormalizeTag maps user input such as "#Go" onto the stored form "go".
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}

// splitTags extracts the hashtags of the trailing line and returns the
// content with those tokens removed.
func splitTags(content string) (string, []string) {
	lines := strings.Split(content, "\n")
	last := len(lines) - 1
	for last >= 0 && strings.TrimSpace(lines[last]) == "" {
		last--
	}
	if last < 0 {
		return content, nil
	}

	matches := tagPattern.FindAllStringSubmatch(lines[last], -1)
	if len(matches) == 0 {
		return content, nil
	}

	seen := make(map[string]bool, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	lines[last] = strings.TrimSpace(tagPattern.ReplaceAllString(lines[last], " "))
	return strings.Join(lines[:last+1], "\n"), tags
}

type block struct {
	heading bool
	text    string
}

// summarize picks the first heading as the title, falling back to the first
// line of text. The description is the remaining text flattened to one line.
func summarize(body string) (string, string) {
	blocks := textBlocks([]byte(body))
	if len(blocks) == 0 {
		return "", ""
	}

	titleIdx := 0
	for i, b := range blocks {
		if b.heading {
			titleIdx = i
			break
		}
	}

	title := blocks[titleIdx].text
	var rest []string
	if !blocks[titleIdx].heading {
		first, remainder, _ := strings.Cut(title, "\n")
		title = first
		rest = append(rest, remainder)
	}
	for i, b := range blocks {
		if i != titleIdx {
			rest = append(rest, b.text)
		}
	}

	title = truncate(collapse(title), MaxTitleRunes)
	description := truncate(collapse(strings.Join(rest, " ")), MaxDescriptionRunes)
	return title, description
}

// textBlocks returns the plain text of every paragraph and heading in
// document order. Code blocks and raw HTML are skipped.
func textBlocks(src []byte) []block {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var blocks []block
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading, ast.KindParagraph, ast.KindTextBlock:
			var sb strings.Builder
			inlineText(&sb, n, src)
			if t := strings.TrimSpace(sb.String()); t != "" {
				blocks = append(blocks, block{heading: n.Kind() == ast.KindHeading, text: t})
			}
			return ast.WalkSkipChildren, nil
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

func inlineText(sb *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(v.Value)
		case *ast.AutoLink:
			sb.Write(v.URL(src))
		case *ast.RawHTML:
			// dropped
		default:
			inlineText(sb, c, src)
		}
	}
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
