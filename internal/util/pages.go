package util

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"unicode/utf8"
)

var pageMarkerRe = regexp.MustCompile(`--- Page (\d+) ---`)

// PageMarker is the line the extractor puts in front of every page.
func PageMarker(n int) string {
	return fmt.Sprintf("--- Page %d ---", n)
}

// PageOffset locates a page marker in a text, in runes.
type PageOffset struct {
	Page  int
	Start int
}

// PageOffsets lists page markers in the order they appear.
func PageOffsets(text string) []PageOffset {
	locs := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]PageOffset, 0, len(locs))
	for _, loc := range locs {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		out = append(out, PageOffset{Page: n, Start: utf8.RuneCountInString(text[:loc[0]])})
	}
	return out
}

// PageAt returns the page a rune offset belongs to. Offsets before the first
// marker resolve to the first marker that starts before end, or 0.
func PageAt(offsets []PageOffset, start, end int) int {
	page := 0
	for _, o := range offsets {
		if o.Start > start {
			if page == 0 && o.Start < end {
				return o.Page
			}
			break
		}
		page = o.Page
	}
	return page
}

// DistinctPages returns the page numbers of all markers, ascending, without repeats.
func DistinctPages(text string) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, o := range PageOffsets(text) {
		if _, ok := seen[o.Page]; ok {
			continue
		}
		seen[o.Page] = struct{}{}
		out = append(out, o.Page)
	}
	slices.Sort(out)
	return out
}
