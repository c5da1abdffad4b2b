package slice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion("chr1")
	require.NoError(t, err)
	assert.Equal(t, Region{Chrom: "chr1", Whole: true}, r)
	assert.Equal(t, "chr1", r.String())

	r, err = ParseRegion("chr1:100-200")
	require.NoError(t, err)
	assert.Equal(t, Region{Chrom: "chr1", Lo: 100, Hi: 200}, r)
	assert.Equal(t, "chr1:100-200", r.String())

	// Colons inside contig names are not supported.
	_, err = ParseRegion("HLA-DRB1*15:01:01:100-200")
	require.Error(t, err)

	for _, bad := range []string{"", ":100-200", "chr1:100", "chr1:100-", "chr1:-200", "chr1:a-b", "chr1:200-100", "chr1:0-5"} {
		_, err := ParseRegion(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseRegions(t *testing.T) {
	rs, err := ParseRegions([]string{"chr1", "chr2:5-10"})
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.True(t, rs[0].Whole)
	assert.Equal(t, uint64(5), rs[1].Lo)

	_, err = ParseRegions([]string{"chr1", "bogus:region"})
	assert.Error(t, err)
}
