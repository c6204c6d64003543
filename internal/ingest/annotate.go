package ingest

import (
	"strings"

	"docchat/internal/util"
)

// Annotate joins pages, putting a "--- Page N ---" line in front of each.
// Empty pages are dropped unless keepEmpty is set; numbering always follows
// the page's position in the source.
func Annotate(pages []string, keepEmpty bool) string {
	var b strings.Builder
	for i, p := range pages {
		if p == "" && !keepEmpty {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(util.PageMarker(i + 1))
		b.WriteString("\n")
		b.WriteString(p)
	}
	return b.String()
}

// NamedText is one document of a comparison.
type NamedText struct {
	Name string
	Text string
}

// Combine concatenates annotated documents, each under a "<Document: name>" header.
func Combine(docs ...NamedText) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, "<Document: "+d.Name+">\n"+d.Text)
	}
	return strings.Join(parts, "\n\n")
}
