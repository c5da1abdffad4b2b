package slice

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/tabix"
	"github.com/klauspost/compress/gzip"

	"github.com/inodb/spvcf/internal/linebuf"
)

// TabixSource reads a bgzip-compressed spVCF file through its .tbi
// index.
type TabixSource struct {
	f   *os.File
	bg  *bgzf.Reader
	idx *tabix.Index
}

// OpenTabix opens path (bgzip-compressed spVCF) and its path+".tbi"
// index.
func OpenTabix(path string) (*TabixSource, error) {
	idx, err := readTabixIndex(path + ".tbi")
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	bg, err := bgzf.NewReader(f, 1)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open bgzip input: %w", err)
	}
	return &TabixSource{f: f, bg: bg, idx: idx}, nil
}

func readTabixIndex(path string) (*tabix.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tabix index: %w", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read tabix index: %w", err)
	}
	defer zr.Close()
	idx, err := tabix.ReadFrom(zr)
	if err != nil {
		return nil, fmt.Errorf("read tabix index: %w", err)
	}
	return idx, nil
}

// Close releases the underlying file.
func (t *TabixSource) Close() error {
	t.bg.Close()
	return t.f.Close()
}

// Header returns the meta lines at the start of the file.
func (t *TabixSource) Header() (Iterator, error) {
	if err := t.bg.Seek(bgzf.Offset{}); err != nil {
		return nil, fmt.Errorf("seek bgzip input: %w", err)
	}
	meta := byte(t.idx.MetaChar)
	return &headerIterator{br: bufio.NewReader(t.bg), meta: meta}, nil
}

type headerIterator struct {
	br   *bufio.Reader
	meta byte
	buf  []byte
	done bool
}

func (h *headerIterator) Next() ([]byte, error) {
	if h.done {
		return nil, nil
	}
	first, err := h.br.Peek(1)
	if err != nil || first[0] != h.meta {
		h.done = true
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, nil
	}
	line, err := readLine(h.br, h.buf[:0])
	if err != nil {
		return nil, err
	}
	h.buf = line
	return append([]byte(nil), line...), nil
}

// tabixRegion adapts a Region to the index's record interface,
// converting to 0-based half-open coordinates.
type tabixRegion struct {
	chrom  string
	lo, hi uint64
	whole  bool
}

func (r tabixRegion) RefName() string { return r.chrom }

func (r tabixRegion) Start() int {
	if r.whole || r.lo == 0 {
		return 0
	}
	return int(r.lo - 1)
}

func (r tabixRegion) End() int {
	if r.whole || r.hi == 0 {
		return int(int32(^uint32(0) >> 1)) // past any chromosome end
	}
	return int(r.hi)
}

// Query returns the rows of region in file order. Rows are re-checked
// against the region bounds, since index chunks are block-granular.
func (t *TabixSource) Query(region Region) (Iterator, error) {
	known := false
	for _, name := range t.idx.Names() {
		if name == region.Chrom {
			known = true
			break
		}
	}
	if !known {
		return emptyIterator{}, nil
	}
	tr := tabixRegion{
		chrom: region.Chrom,
		lo:    region.Lo,
		hi:    region.Hi,
		whole: region.Whole,
	}
	chunks, err := t.idx.Chunks(tr.RefName(), tr.Start(), tr.End())
	if err != nil {
		return nil, fmt.Errorf("query tabix index: %w", err)
	}
	if len(chunks) == 0 {
		return emptyIterator{}, nil
	}
	cr, err := index.NewChunkReader(t.bg, chunks)
	if err != nil {
		return nil, fmt.Errorf("read bgzip chunks: %w", err)
	}
	return &queryIterator{
		br:     bufio.NewReader(cr),
		region: region,
	}, nil
}

type queryIterator struct {
	br     *bufio.Reader
	region Region
	buf    []byte
	tokens [][]byte
	done   bool
}

func (q *queryIterator) Next() ([]byte, error) {
	for !q.done {
		line, err := readLine(q.br, q.buf[:0])
		if err != nil {
			return nil, err
		}
		q.buf = line
		if line == nil {
			q.done = true
			break
		}
		q.tokens = linebuf.Split(line, '\t', 2, q.tokens[:0])
		if len(q.tokens) < 3 {
			return nil, fmt.Errorf("invalid spVCF: fewer than 10 columns")
		}
		if !bytes.Equal(q.tokens[0], []byte(q.region.Chrom)) {
			continue
		}
		pos, err := strconv.ParseUint(string(q.tokens[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("couldn't parse POS")
		}
		if !q.region.Whole {
			if pos < q.region.Lo {
				continue
			}
			if pos > q.region.Hi {
				q.done = true
				break
			}
		}
		return append([]byte(nil), line...), nil
	}
	return nil, nil
}

// emptyIterator is returned for regions the index knows nothing about.
type emptyIterator struct{}

func (emptyIterator) Next() ([]byte, error) { return nil, nil }

// readLine appends the next line of br (without its newline) to buf,
// returning nil at end of input.
func readLine(br *bufio.Reader, buf []byte) ([]byte, error) {
	for {
		frag, err := br.ReadSlice('\n')
		buf = append(buf, frag...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(buf) == 0 {
				return nil, nil
			}
			break
		}
		return nil, fmt.Errorf("read input: %w", err)
	}
	if n := len(buf); n > 0 && buf[n-1] == '\n' {
		buf = buf[:n-1]
	}
	if n := len(buf); n > 0 && buf[n-1] == '\r' {
		buf = buf[:n-1]
	}
	return buf, nil
}
