package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource yields lines from a slice, mimicking a streaming reader
// that reuses its buffer between calls.
type sliceSource struct {
	lines []string
	i     int
	buf   []byte
}

func (s *sliceSource) Next() ([]byte, error) {
	if s.i >= len(s.lines) {
		return nil, nil
	}
	s.buf = append(s.buf[:0], s.lines[s.i]...)
	s.i++
	return s.buf, nil
}

func projectVCF(dataRows int) []string {
	lines := []string{
		"##fileformat=VCFv4.2",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\ts1\ts2\ts3\ts4",
	}
	for i := 0; i < dataRows; i++ {
		gt := "0/0:10"
		if i%7 == 3 {
			gt = "0/1:12"
		}
		lines = append(lines, dataRow("chr1", fmt.Sprint(100+i*10), ".", "GT:DP",
			gt, "0/0:10", "0/0:11", "0/0:10"))
	}
	return lines
}

func TestParallelEncode_MatchesSingleThreadedOnAlignedBatches(t *testing.T) {
	lines := projectVCF(100)
	opts := EncodeOptions{CheckpointPeriod: 20, Sparse: true, Resolution: 2.0}

	var single bytes.Buffer
	st1, err := Transcode(opts.newEncoder(), &sliceSource{lines: lines}, &single)
	require.NoError(t, err)

	var parallel bytes.Buffer
	opts.Workers = 4
	st2, err := ParallelEncode(opts, &sliceSource{lines: lines}, &parallel)
	require.NoError(t, err)

	// All data rows live on one chromosome and batches hold exactly one
	// checkpoint period, so the partitioned run reproduces the
	// single-threaded output byte for byte.
	assert.Equal(t, single.String(), parallel.String())
	assert.Equal(t, st1, st2)
}

func TestParallelEncode_DecodesBackToInput(t *testing.T) {
	lines := projectVCF(137)
	opts := EncodeOptions{CheckpointPeriod: 10, Sparse: true, Resolution: 2.0, Workers: 8}

	var enc bytes.Buffer
	_, err := ParallelEncode(opts, &sliceSource{lines: lines}, &enc)
	require.NoError(t, err)

	d := NewDecoder(false)
	got := strings.Split(strings.TrimRight(enc.String(), "\n"), "\n")
	require.Len(t, got, len(lines))
	for i, l := range got {
		dec, err := d.ProcessLine([]byte(l))
		require.NoError(t, err, "line %d", i)
		assert.Equal(t, lines[i], string(dec), "line %d", i)
	}
}

func TestParallelEncode_SingleWorkerFallback(t *testing.T) {
	lines := projectVCF(25)
	opts := EncodeOptions{CheckpointPeriod: 10, Sparse: true, Resolution: 2.0, Workers: 1}

	var out bytes.Buffer
	st, err := ParallelEncode(opts, &sliceSource{lines: lines}, &out)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), st.Lines)
}

func TestParallelEncode_ReportsAbsoluteLineNumbers(t *testing.T) {
	lines := projectVCF(40)
	// Damage a row deep in the input: decreasing POS within the batch.
	lines[30] = dataRow("chr1", "1", ".", "GT:DP", "0/0:10", "0/0:10", "0/0:11", "0/0:10")

	opts := EncodeOptions{CheckpointPeriod: 5, Sparse: true, Resolution: 2.0, Workers: 4}
	var out bytes.Buffer
	_, err := ParallelEncode(opts, &sliceSource{lines: lines}, &out)
	require.Error(t, err)

	var rerr *RowError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, uint64(31), rerr.Line)
}

func TestParallelEncode_EmptyInput(t *testing.T) {
	opts := EncodeOptions{CheckpointPeriod: 10, Sparse: true, Resolution: 2.0, Workers: 4}
	var out bytes.Buffer
	st, err := ParallelEncode(opts, &sliceSource{}, &out)
	require.NoError(t, err)
	assert.Zero(t, st.Lines)
	assert.Zero(t, out.Len())
}

func TestParallelEncode_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("disk on fire")
	src := &errAfterSource{lines: projectVCF(50), failAt: 20, err: boom}

	opts := EncodeOptions{CheckpointPeriod: 5, Sparse: true, Resolution: 2.0, Workers: 4}
	var out bytes.Buffer
	_, err := ParallelEncode(opts, src, &out)
	require.ErrorIs(t, err, boom)
}

type errAfterSource struct {
	lines  []string
	failAt int
	i      int
	err    error
}

func (s *errAfterSource) Next() ([]byte, error) {
	if s.i >= s.failAt {
		return nil, s.err
	}
	line := []byte(s.lines[s.i])
	s.i++
	return line, nil
}

func TestParallelEncode_SqueezeStats(t *testing.T) {
	lines := []string{
		"##fileformat=VCFv4.2",
	}
	for i := 0; i < 30; i++ {
		lines = append(lines, dataRow("chr1", fmt.Sprint(100+i), ".", "GT:AD:DP",
			"0/0:25,0:25", "0/1:12,13:25"))
	}
	opts := EncodeOptions{Sparse: false, Squeeze: true, Resolution: 2.0, Workers: 4}
	var out bytes.Buffer
	st, err := ParallelEncode(opts, &sliceSource{lines: lines}, &out)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), st.SqueezedCells)
	assert.Equal(t, uint64(2), st.N)
	assert.Equal(t, uint64(30), st.Lines)
}
