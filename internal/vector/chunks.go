package vector

import (
	"docchat/internal/models"
	"docchat/internal/util"
)

// ChunkDocument splits an annotated document into reading-order chunks. Each
// chunk is tagged with the page its first rune falls on.
func ChunkDocument(documentID, text string, chunkSize, overlap int) []models.DocumentChunk {
	spans := util.ChunkText(text, chunkSize, overlap)
	if len(spans) == 0 {
		return nil
	}
	offsets := util.PageOffsets(text)
	out := make([]models.DocumentChunk, 0, len(spans))
	for i, s := range spans {
		out = append(out, models.DocumentChunk{
			DocumentID: documentID,
			Page:       util.PageAt(offsets, s.Start, s.End),
			Text:       s.Text,
			Index:      i,
			Overlap:    s.Overlap,
		})
	}
	return out
}
