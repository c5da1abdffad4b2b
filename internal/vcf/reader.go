// Package vcf provides streaming line input for VCF and spVCF files.
package vcf

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// readerBufferSize accommodates project VCF rows with many thousands of
// sample columns without refilling.
const readerBufferSize = 1 << 20

// Reader yields input lines one at a time without their trailing
// newline. It rejects gzip-compressed input up front and warns when the
// file does not open with a ##fileformat declaration.
type Reader struct {
	br     *bufio.Reader
	closer io.Closer
	logger *zap.Logger

	buf        []byte
	lineNumber uint64
	sniffed    bool
}

// Open opens path for line reading. An empty path or "-" reads stdin.
func Open(path string, logger *zap.Logger) (*Reader, error) {
	if path == "" || path == "-" {
		return NewReader(os.Stdin, logger), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	r := NewReader(f, logger)
	r.closer = f
	return r, nil
}

// NewReader wraps r for line reading. A nil logger disables warnings.
func NewReader(r io.Reader, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		br:     bufio.NewReaderSize(r, readerBufferSize),
		logger: logger,
	}
}

// Next returns the next input line, or nil at end of input. The
// returned slice is reused by the following call.
func (r *Reader) Next() ([]byte, error) {
	if !r.sniffed {
		r.sniffed = true
		if err := r.sniff(); err != nil {
			return nil, err
		}
	}

	r.buf = r.buf[:0]
	for {
		frag, err := r.br.ReadSlice('\n')
		r.buf = append(r.buf, frag...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(r.buf) == 0 {
				return nil, nil
			}
			break
		}
		return nil, fmt.Errorf("read input: %w", err)
	}
	r.lineNumber++

	line := r.buf
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	if r.lineNumber == 1 && !bytes.HasPrefix(line, []byte("##fileformat=")) {
		r.logger.Warn("input does not begin with a ##fileformat declaration")
	}
	return line, nil
}

// sniff rejects gzip-compressed input, which must be decompressed
// upstream (e.g. bgzip -dc) before transcoding.
func (r *Reader) sniff() error {
	magic, err := r.br.Peek(2)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read input: %w", err)
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		return errors.New("input appears gzip-compressed; decompress it first (e.g. bgzip -dc)")
	}
	return nil
}

// LineNumber returns the number of lines read so far.
func (r *Reader) LineNumber() uint64 { return r.lineNumber }

// Close closes the underlying file, if the Reader opened one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
