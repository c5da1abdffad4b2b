package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, d *Decoder, lines ...string) []string {
	t.Helper()
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		got, err := d.ProcessLine([]byte(l))
		require.NoError(t, err, "line %q", l)
		out = append(out, string(got))
	}
	return out
}

func TestDecoder_FileformatRestored(t *testing.T) {
	d := NewDecoder(false)
	out, err := d.ProcessLine([]byte("##fileformat=spVCF" + FormatVersion + ";VCFv4.2"))
	require.NoError(t, err)
	assert.Equal(t, "##fileformat=VCFv4.2", string(out))
}

func TestDecoder_RoundTrip(t *testing.T) {
	in := []string{
		"##fileformat=VCFv4.2",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\ts1\ts2\ts3",
		dataRow("chr1", "100", "AF=0.1", "GT:DP", "0/0:10", "0/0:11", "0/1:9"),
		dataRow("chr1", "200", ".", "GT:DP", "0/0:10", "0/0:11", "0/1:9"),
		dataRow("chr1", "300", "AF=0.2", "GT:DP", "0/0:10", "0/0:12", "0/1:9"),
		dataRow("chr2", "50", ".", "GT:DP", "1/1:30", "0/0:11", "0/0:12"),
		dataRow("chr2", "60", ".", "GT:DP", "1/1:30", "0/0:11", "0/0:12"),
	}

	e := NewEncoder(1000, true, false, 2.0)
	d := NewDecoder(false)
	for i, l := range in {
		enc, err := e.ProcessLine([]byte(l))
		require.NoError(t, err, "encode line %d", i)
		dec, err := d.ProcessLine(enc)
		require.NoError(t, err, "decode line %d", i)
		assert.Equal(t, in[i], string(dec), "line %d", i)
	}

	assert.Equal(t, e.Stats().Lines, d.Stats().Lines)
	assert.Equal(t, e.Stats().N, d.Stats().N)
}

func TestDecoder_ExpandsRuns(t *testing.T) {
	d := NewDecoder(false)
	out := decodeLines(t, d,
		dataRow("chr1", "100", ".", "GT:DP", "0/0:10", "0/0:10", "0/0:10", "0/1:9"),
		dataRow("chr1", "200", "spVCF_checkpointPOS=100", "GT:DP")+"\t\"3\t0/1:8",
		dataRow("chr1", "300", "spVCF_checkpointPOS=100", "GT:DP")+"\t\"\t0/0:12\t\"\t\"",
	)
	assert.Equal(t, dataRow("chr1", "200", ".", "GT:DP", "0/0:10", "0/0:10", "0/0:10", "0/1:8"), out[1])
	assert.Equal(t, dataRow("chr1", "300", ".", "GT:DP", "0/0:10", "0/0:12", "0/0:10", "0/1:8"), out[2])
}

func TestDecoder_InfoSuffixKept(t *testing.T) {
	d := NewDecoder(false)
	out := decodeLines(t, d,
		dataRow("chr1", "100", "AF=0.5", "GT", "0/0"),
		dataRow("chr1", "200", "spVCF_checkpointPOS=100;AF=0.5", "GT")+"\t\"",
	)
	assert.Equal(t, dataRow("chr1", "200", "AF=0.5", "GT", "0/0"), out[1])
}

func TestDecoder_RunBeforeDenseValue(t *testing.T) {
	d := NewDecoder(false)
	_, err := d.ProcessLine([]byte(dataRow("chr1", "100", ".", "GT", "\"")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quote precedes any dense value")
}

func TestDecoder_RunOverrunsRow(t *testing.T) {
	d := NewDecoder(false)
	_, err := d.ProcessLine([]byte(dataRow("chr1", "100", ".", "GT", "0/0", "0/0")))
	require.NoError(t, err)
	_, err = d.ProcessLine([]byte(dataRow("chr1", "200", ".", "GT") + "\t\"3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overruns")
}

func TestDecoder_WrongColumnCount(t *testing.T) {
	d := NewDecoder(false)
	_, err := d.ProcessLine([]byte(dataRow("chr1", "100", ".", "GT", "0/0", "0/0", "0/0")))
	require.NoError(t, err)
	_, err = d.ProcessLine([]byte(dataRow("chr1", "200", ".", "GT") + "\t\"2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong number of columns")
}

func TestDecoder_EmptyCell(t *testing.T) {
	d := NewDecoder(false)
	_, err := d.ProcessLine([]byte(dataRow("chr1", "100", ".", "GT", "0/0", "")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty cell")
}

func TestDecoder_BadRunLength(t *testing.T) {
	d := NewDecoder(false)
	_, err := d.ProcessLine([]byte(dataRow("chr1", "100", ".", "GT", "0/0", "\"x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quote run length")

	var rerr *RowError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, uint64(1), rerr.Line)
}

func TestDecoder_WithMissingFields(t *testing.T) {
	d := NewDecoder(true)
	out := decodeLines(t, d,
		"chr1\t100\t.\tA\tT\t.\tPASS\t.\tGT:DP:AD:GQ:PL\t0/1:15:10,5:99:120,0,80\t0/0:16",
	)
	assert.Equal(t,
		"chr1\t100\t.\tA\tT\t.\tPASS\t.\tGT:DP:AD:GQ:PL\t0/1:15:10,5:99:120,0,80\t0/0:16:.,.:.:.,.,.",
		out[0])
}

func TestDecoder_WithMissingFieldsMultiAllelic(t *testing.T) {
	d := NewDecoder(true)
	out := decodeLines(t, d,
		"chr1\t100\t.\tA\tT,C\t.\tPASS\t.\tGT:DP:AD:PL\t0/0:16",
	)
	// Two ALT alleles: AD holds 3 values, PL holds 6.
	assert.Equal(t,
		"chr1\t100\t.\tA\tT,C\t.\tPASS\t.\tGT:DP:AD:PL\t0/0:16:.,.,.:.,.,.,.,.,.",
		out[0])
}

func TestDecoder_WithMissingFieldsFormatDrift(t *testing.T) {
	d := NewDecoder(true)
	_, err := d.ProcessLine([]byte(dataRow("chr1", "100", ".", "GT:DP", "0/0:10")))
	require.NoError(t, err)
	_, err = d.ProcessLine([]byte(dataRow("chr1", "200", ".", "GT:AD", "0/0:10,0")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consistent FORMAT")
}

func TestDecoder_RejectsShortRows(t *testing.T) {
	d := NewDecoder(false)
	_, err := d.ProcessLine([]byte("chr1\t100\t.\tA\tT\t.\tPASS\t.\tGT"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fewer than 10 columns")
}
