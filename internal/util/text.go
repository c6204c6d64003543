package util

import (
	"sort"
	"strings"
	"unicode"
)

// SanitizeText normalizes extracted page text: CRLF becomes LF, NUL and other
// control characters except newline and tab are dropped, and trailing blanks
// are trimmed from every line.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 || ch == 0x7f || ch == unicode.ReplacementChar {
			continue
		}
		r = append(r, ch)
	}
	lines := strings.Split(string(r), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SplitSentences splits on '.', '!' and '?'. A trailing fragment without a
// terminator is kept as its own sentence.
func SplitSentences(s string) []string {
	out := make([]string, 0, 8)
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		b.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// keep "3.5" and "e.g." together
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if x := strings.TrimSpace(b.String()); x != "" {
			out = append(out, x)
		}
		b.Reset()
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// CapSentences keeps at most n sentences of s.
func CapSentences(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return s
	}
	sentences := SplitSentences(s)
	if len(sentences) <= n {
		return s
	}
	return strings.Join(sentences[:n], " ")
}

// EvidenceSnippet picks the sentence(s) of a retrieved chunk that share the
// most terms with the question, for display next to an answer.
func EvidenceSnippet(chunkText, query string, maxRunes int) string {
	chunkText = stripPageMarkers(chunkText)
	clean := Snippet(chunkText, 4000)
	if clean == "" {
		return ""
	}
	terms := queryTerms(query)
	sentences := SplitSentences(clean)
	if len(terms) == 0 || len(sentences) == 0 {
		return Snippet(clean, maxRunes)
	}

	type scored struct {
		sentence string
		score    int
	}
	list := make([]scored, 0, len(sentences))
	for _, s := range sentences {
		low := strings.ToLower(s)
		score := 0
		for _, term := range terms {
			if strings.Contains(low, term) {
				score++
			}
		}
		list = append(list, scored{sentence: s, score: score})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score == list[j].score {
			return len(list[i].sentence) < len(list[j].sentence)
		}
		return list[i].score > list[j].score
	})
	if list[0].score == 0 {
		return Snippet(clean, maxRunes)
	}
	if len(list) > 1 && list[1].score > 0 {
		return Snippet(list[0].sentence+" "+list[1].sentence, maxRunes)
	}
	return Snippet(list[0].sentence, maxRunes)
}

// Snippet collapses whitespace and truncates to maxRunes, marking the cut with "...".
func Snippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 420
	}
	s = strings.Join(strings.Fields(SanitizeText(s)), " ")
	runes := []rune(s)
	if len(runes) > maxRunes {
		return strings.TrimSpace(string(runes[:maxRunes])) + "..."
	}
	return s
}

func stripPageMarkers(s string) string {
	return pageMarkerRe.ReplaceAllString(s, " ")
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "of": {}, "in": {}, "on": {},
	"for": {}, "is": {}, "are": {}, "was": {}, "were": {}, "what": {}, "how": {}, "why": {},
	"which": {}, "that": {}, "this": {}, "these": {}, "those": {}, "with": {}, "from": {},
	"does": {}, "did": {}, "can": {}, "who": {}, "when": {}, "where": {}, "about": {},
}

func queryTerms(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	uniq := map[string]struct{}{}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ",.;:!?()[]{}\"'`")
		if len([]rune(f)) < 3 {
			continue
		}
		if _, ok := stopWords[f]; ok {
			continue
		}
		if _, ok := uniq[f]; ok {
			continue
		}
		uniq[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
