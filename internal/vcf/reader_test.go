package vcf

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func readAll(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for {
		line, err := r.Next()
		require.NoError(t, err)
		if line == nil {
			return out
		}
		out = append(out, string(line))
	}
}

func TestReader_Lines(t *testing.T) {
	in := "##fileformat=VCFv4.2\n#CHROM\tPOS\nchr1\t100\n"
	r := NewReader(strings.NewReader(in), nil)
	got := readAll(t, r)
	assert.Equal(t, []string{"##fileformat=VCFv4.2", "#CHROM\tPOS", "chr1\t100"}, got)
	assert.Equal(t, uint64(3), r.LineNumber())
}

func TestReader_NoTrailingNewline(t *testing.T) {
	r := NewReader(strings.NewReader("##fileformat=VCFv4.2\nchr1\t100"), nil)
	got := readAll(t, r)
	assert.Equal(t, []string{"##fileformat=VCFv4.2", "chr1\t100"}, got)
}

func TestReader_CRLF(t *testing.T) {
	r := NewReader(strings.NewReader("##fileformat=VCFv4.2\r\nchr1\t100\r\n"), nil)
	got := readAll(t, r)
	assert.Equal(t, []string{"##fileformat=VCFv4.2", "chr1\t100"}, got)
}

func TestReader_EmptyInput(t *testing.T) {
	r := NewReader(strings.NewReader(""), nil)
	line, err := r.Next()
	require.NoError(t, err)
	assert.Nil(t, line)
}

func TestReader_LongLine(t *testing.T) {
	// Longer than the internal buffer, forcing fragment reassembly.
	long := "##fileformat=VCFv4.2\t" + strings.Repeat("0/0:10\t", 400000)
	r := NewReader(strings.NewReader(long+"\nnext\n"), nil)
	got := readAll(t, r)
	require.Len(t, got, 2)
	assert.Equal(t, long, got[0])
	assert.Equal(t, "next", got[1])
}

func TestReader_RejectsGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("##fileformat=VCFv4.2\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r := NewReader(&buf, nil)
	_, err = r.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip-compressed")
}

func TestReader_WarnsOnMissingFileformat(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewReader(strings.NewReader("#CHROM\tPOS\nchr1\t100\n"), zap.New(core))
	readAll(t, r)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "##fileformat")
}

func TestReader_NoWarningWithFileformat(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewReader(strings.NewReader("##fileformat=VCFv4.2\nchr1\t100\n"), zap.New(core))
	readAll(t, r)
	assert.Zero(t, logs.Len())
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.vcf")
	require.NoError(t, os.WriteFile(path, []byte("##fileformat=VCFv4.2\nchr1\t100\n"), 0o644))

	r, err := Open(path, nil)
	require.NoError(t, err)
	defer r.Close()
	got := readAll(t, r)
	assert.Equal(t, []string{"##fileformat=VCFv4.2", "chr1\t100"}, got)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.vcf"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open input")
}
