package persist

import (
	"regexp"
	"strings"

	"jobposters/poster-go/internal/media"
)

var (
	slugStrip    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
)

// Slug is built from the first three words of text: joined with '_',
// lower-cased, anything outside letters/digits/space/hyphen dropped (combining
// marks included), and runs of whitespace or hyphens collapsed to a single '_'.
func Slug(text string) string {
	words := strings.Fields(text)
	if len(words) > 3 {
		words = words[:3]
	}
	s := strings.ToLower(strings.Join(words, "_"))
	s = slugStrip.ReplaceAllString(s, "")
	return slugCollapse.ReplaceAllString(s, "_")
}

// Filename is {id}_{slug}.{ext}; {id}.{ext} when the slug comes out empty.
func Filename(id, text string, kind media.Kind) string {
	slug := Slug(text)
	if slug == "" {
		return id + "." + kind.Ext()
	}
	return id + "_" + slug + "." + kind.Ext()
}
