package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/util"
)

func TestChunkDocumentAssignsPages(t *testing.T) {
	var b strings.Builder
	for p := 1; p <= 3; p++ {
		b.WriteString(util.PageMarker(p))
		b.WriteString("\n")
		b.WriteString(strings.Repeat("lorem ipsum dolor sit amet. ", 30))
		b.WriteString("\n\n")
	}
	text := b.String()

	chunks := ChunkDocument("doc.pdf", text, 400, 120)
	require.Greater(t, len(chunks), 3)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 3, chunks[len(chunks)-1].Page)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "doc.pdf", c.DocumentID)
		if i > 0 {
			assert.GreaterOrEqual(t, c.Page, chunks[i-1].Page)
		}
	}
}

func TestChunkDocumentEmpty(t *testing.T) {
	assert.Nil(t, ChunkDocument("x", "", 100, 10))
}
