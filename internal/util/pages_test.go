package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageOffsetsAndPageAt(t *testing.T) {
	text := "intro\n" + PageMarker(1) + "\nfirst\n" + PageMarker(2) + "\nsecönd\n" + PageMarker(3) + "\nthird"
	offs := PageOffsets(text)
	require.Len(t, offs, 3)
	require.Equal(t, 1, offs[0].Page)
	require.Equal(t, 6, offs[0].Start)

	require.Equal(t, 1, PageAt(offs, 0, 20), "head before first marker resolves to first page in span")
	require.Equal(t, 0, PageAt(offs, 0, 3))
	require.Equal(t, 2, PageAt(offs, offs[1].Start+3, offs[1].Start+5))
	require.Equal(t, 3, PageAt(offs, offs[2].Start, offs[2].Start+1))
}

func TestDistinctPagesSortedUnique(t *testing.T) {
	text := PageMarker(2) + "a" + PageMarker(1) + "b" + PageMarker(2) + "c" + PageMarker(10)
	require.Equal(t, []int{1, 2, 10}, DistinctPages(text))
	require.Empty(t, DistinctPages("no markers"))
}
