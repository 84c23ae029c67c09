package content

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		title       string
		description string
		tags        []string
	}{
		{
			name:    "single line with tag",
			content: "Hello #greeting",
			title:   "Hello",
			tags:    []string{"greeting"},
		},
		{
			name:        "heading becomes title",
			content:     "Intro line\n\n# Release notes\n\nShipped the **new** feed.",
			title:       "Release notes",
			description: "Intro line Shipped the new feed.",
		},
		{
			name:        "first line when there is no heading",
			content:     "First line\nsecond line\n\nAnother paragraph",
			title:       "First line",
			description: "second line Another paragraph",
		},
		{
			name:        "trailing tag line is stripped and deduplicated",
			content:     "## Weekend\nWent hiking.\n\n#Outdoors #hiking #outdoors",
			title:       "Weekend",
			description: "Went hiking.",
			tags:        []string{"outdoors", "hiking"},
		},
		{
			name:        "tags only on the last line count",
			content:     "Thinking about #rust today\nand more",
			title:       "Thinking about #rust today",
			description: "and more",
		},
		{
			name:    "atx heading marker is not a tag",
			content: "# Only a heading",
			title:   "Only a heading",
		},
		{
			name:        "code blocks are skipped",
			content:     "Snippet\n\n```go\nfmt.Println(\"#nope\")\n```\n\nDone",
			title:       "Snippet",
			description: "Done",
		},
		{
			name:    "links keep their text",
			content: "See [the docs](https://example.com) or <https://go.dev>",
			title:   "See the docs or https://go.dev",
		},
		{
			name:    "unicode tags",
			content: "Café time #café #日本",
			title:   "Café time",
			tags:    []string{"café", "日本"},
		},
		{
			name:    "empty",
			content: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Derive(tt.content)
			assert.Equal(t, tt.title, got.Title)
			assert.Equal(t, tt.description, got.Description)
			assert.Equal(t, tt.tags, got.Tags)
		})
	}
}

func TestDerive_Truncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 100)
	got := Derive("# " + long + "\n\n" + long)

	assert.Equal(t, MaxTitleRunes, utf8.RuneCountInString(got.Title))
	assert.True(t, strings.HasSuffix(got.Title, "…"))
	assert.LessOrEqual(t, utf8.RuneCountInString(got.Description), MaxDescriptionRunes)
	assert.True(t, strings.HasSuffix(got.Description, "…"))
}

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "go", NormalizeTag("#Go"))
	assert.Equal(t, "go", NormalizeTag("  go "))
	assert.Equal(t, "", NormalizeTag(""))
}
