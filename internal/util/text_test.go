package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02  \r\n\txy\f"
	assert.Equal(t, "abcd\n\txy", SanitizeText(in))
}

func TestSplitSentencesKeepsDecimals(t *testing.T) {
	got := SplitSentences("Revenue grew 3.5 percent. Costs fell! Why? trailing")
	assert.Equal(t, []string{"Revenue grew 3.5 percent.", "Costs fell!", "Why?", "trailing"}, got)
}

func TestCapSentences(t *testing.T) {
	assert.Equal(t, "One. Two. Three.", CapSentences("One. Two. Three. Four. Five.", 3))
	assert.Equal(t, "Only one.", CapSentences("  Only one. ", 3))
}

func TestEvidenceSnippet(t *testing.T) {
	chunk := "--- Page 2 ---\nThis report covers cloud schedulers. It measures latency reduction for edge workloads. Unrelated appendix text."
	out := EvidenceSnippet(chunk, "What are edge workload latency results?", 200)
	assert.Contains(t, strings.ToLower(out), "latency")
	assert.NotContains(t, out, "--- Page")
}

func TestSnippetTruncates(t *testing.T) {
	out := Snippet(strings.Repeat("word ", 100), 20)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.LessOrEqual(t, len([]rune(out)), 23)
}
