package util

// separatorLevels are tried coarsest first: paragraph, line, sentence, word.
var separatorLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "? ", "! "},
	{" "},
}

// TextSpan is one chunk of a source text, addressed in runes.
type TextSpan struct {
	Start int
	End   int
	Text  string
	// Overlap is the number of trailing runes repeated at the head of the next span.
	Overlap int
}

// ChunkText splits text into spans of at most chunkSize runes. Every span but the
// last ends right after the coarsest separator that fits the window and shares
// exactly overlap runes with its successor; when no separator fits, the span is cut
// hard at chunkSize. Dropping each span's trailing Overlap runes and concatenating
// yields the input again.
func ChunkText(text string, chunkSize, overlap int) []TextSpan {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	out := make([]TextSpan, 0, len(runes)/(chunkSize-overlap)+1)
	start := 0
	for {
		if len(runes)-start <= chunkSize {
			out = append(out, TextSpan{Start: start, End: len(runes), Text: string(runes[start:])})
			return out
		}
		// Non-final spans must be longer than the overlap so the next one advances.
		lo, hi := start+overlap, start+chunkSize
		end := cutPoint(runes, lo, hi)
		out = append(out, TextSpan{Start: start, End: end, Text: string(runes[start:end]), Overlap: overlap})
		start = end - overlap
	}
}

// cutPoint returns the largest p in (lo, hi] that directly follows a separator of
// the coarsest level present, or hi when none does.
func cutPoint(runes []rune, lo, hi int) int {
	for _, level := range separatorLevels {
		for p := hi; p > lo; p-- {
			for _, sep := range level {
				if endsWith(runes[:p], sep) {
					return p
				}
			}
		}
	}
	return hi
}

func endsWith(runes []rune, sep string) bool {
	sr := []rune(sep)
	if len(sr) > len(runes) {
		return false
	}
	off := len(runes) - len(sr)
	for i, r := range sr {
		if runes[off+i] != r {
			return false
		}
	}
	return true
}

// JoinSpans reverses ChunkText.
func JoinSpans(spans []TextSpan) string {
	var out []rune
	for i, s := range spans {
		r := []rune(s.Text)
		if i < len(spans)-1 {
			r = r[:len(r)-s.Overlap]
		}
		out = append(out, r...)
	}
	return string(out)
}
