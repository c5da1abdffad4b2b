// Package slice extracts genomic ranges from bgzip-compressed,
// tabix-indexed spVCF files, repairing checkpoint references so each
// emitted range is a self-consistent spVCF stream.
package slice

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/inodb/spvcf/internal/codec"
	"github.com/inodb/spvcf/internal/linebuf"
)

// Iterator yields lines one at a time, without trailing newlines. Next
// returns a nil line at end of input. Returned lines are owned by the
// caller.
type Iterator interface {
	Next() ([]byte, error)
}

// Source provides the header lines of an indexed spVCF file and range
// queries over its data rows. Query bounds follow Region conventions;
// returned rows are those whose POS falls inside the region.
type Source interface {
	Header() (Iterator, error)
	Query(region Region) (Iterator, error)
}

const checkpointInfoKey = "spVCF_checkpointPOS="

// Slicer writes self-consistent spVCF slices for requested regions.
type Slicer struct {
	src    Source
	tokens [][]byte
}

// NewSlicer returns a Slicer reading from src.
func NewSlicer(src Source) *Slicer {
	return &Slicer{src: src}
}

// Slice writes the source's header lines followed by each region's rows
// to w.
//
// A region whose first row is a checkpoint copies through verbatim.
// Otherwise the preceding checkpoint is located via the row's
// spVCF_checkpointPOS reference, the rows from that checkpoint up to the
// region start are decoded, and the first in-range row is emitted dense
// so that later rows have a checkpoint inside the slice to refer to.
func (s *Slicer) Slice(w io.Writer, regions []Region) error {
	hdr, err := s.src.Header()
	if err != nil {
		return err
	}
	if err := copyLines(w, hdr); err != nil {
		return err
	}
	for _, rg := range regions {
		if err := s.sliceRegion(w, rg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Slicer) sliceRegion(w io.Writer, rg Region) error {
	it, err := s.src.Query(rg)
	if err != nil {
		return err
	}
	first, err := it.Next()
	if err != nil {
		return err
	}
	if first == nil {
		return nil
	}

	_, info, err := s.rowMeta(first)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(info, []byte(checkpointInfoKey)) {
		// Fortuitous checkpoint at the region start: everything in range
		// already decodes on its own.
		if err := writeLine(w, first); err != nil {
			return err
		}
		return copyLines(w, it)
	}
	if rg.Whole {
		return fmt.Errorf("slice %s: first row of a whole-chromosome query should be a checkpoint", rg)
	}

	ck, err := parseCheckpointPOS(info)
	if err != nil {
		return fmt.Errorf("slice %s: %w", rg, err)
	}
	if ck >= rg.Lo {
		return fmt.Errorf("slice %s: invalid spVCF_checkpointPOS field", rg)
	}

	// Pull in the preceding checkpoint and everything after it.
	it, err = s.src.Query(Region{Chrom: rg.Chrom, Lo: ck, Hi: rg.Hi})
	if err != nil {
		return err
	}
	checkpoint, err := s.findCheckpoint(it, rg)
	if err != nil {
		return err
	}

	// Decode forward from the checkpoint until the region start, then
	// emit the first in-range row densely: it becomes the checkpoint the
	// rest of the slice refers to.
	dec := codec.NewDecoder(false)
	line := checkpoint
	var newCk uint64
	for {
		pos, _, err := s.rowMeta(line)
		if err != nil {
			return err
		}
		dense, err := dec.ProcessLine(line)
		if err != nil {
			return fmt.Errorf("slice %s: %w", rg, err)
		}
		if pos >= rg.Lo {
			if err := writeLine(w, dense); err != nil {
				return err
			}
			newCk = pos
			break
		}
		if line, err = it.Next(); err != nil {
			return err
		} else if line == nil {
			return fmt.Errorf("slice %s: ran out of rows before the region start", rg)
		}
	}

	// Rewrite checkpoint references until the next true checkpoint, then
	// copy the tail verbatim.
	newCkText := []byte(strconv.FormatUint(newCk, 10))
	for {
		line, err := it.Next()
		if err != nil {
			return err
		}
		if line == nil {
			return nil
		}
		s.tokens = linebuf.Split(line, '\t', 8, s.tokens[:0])
		if len(s.tokens) < 9 {
			return fmt.Errorf("slice %s: invalid spVCF: fewer than 10 columns", rg)
		}
		info := s.tokens[7]
		if !bytes.HasPrefix(info, []byte(checkpointInfoKey)) {
			if err := writeLine(w, line); err != nil {
				return err
			}
			return copyLines(w, it)
		}
		suffix := []byte(nil)
		if i := bytes.IndexByte(info, ';'); i >= 0 {
			suffix = info[i:]
		}
		for i, t := range s.tokens {
			if i > 0 {
				if _, err := w.Write([]byte{'\t'}); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
			var err error
			if i == 7 {
				_, err = fmt.Fprintf(w, "%s%s%s", checkpointInfoKey, newCkText, suffix)
			} else {
				_, err = w.Write(t)
			}
			if err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
}

// findCheckpoint scans the widened query for the dense row preceding the
// region, failing if the region start is reached first.
func (s *Slicer) findCheckpoint(it Iterator, rg Region) ([]byte, error) {
	for {
		line, err := it.Next()
		if err != nil {
			return nil, err
		}
		if line == nil {
			return nil, fmt.Errorf("slice %s: couldn't find the checkpoint preceding the region", rg)
		}
		pos, info, err := s.rowMeta(line)
		if err != nil {
			return nil, err
		}
		if pos >= rg.Lo {
			return nil, fmt.Errorf("slice %s: couldn't find the checkpoint preceding the region", rg)
		}
		if !bytes.HasPrefix(info, []byte(checkpointInfoKey)) {
			return line, nil
		}
	}
}

// rowMeta extracts POS and INFO from a data row.
func (s *Slicer) rowMeta(line []byte) (uint64, []byte, error) {
	s.tokens = linebuf.Split(line, '\t', 8, s.tokens[:0])
	if len(s.tokens) < 9 {
		return 0, nil, fmt.Errorf("invalid spVCF: fewer than 10 columns")
	}
	pos, err := strconv.ParseUint(string(s.tokens[1]), 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("couldn't parse POS")
	}
	return pos, s.tokens[7], nil
}

func parseCheckpointPOS(info []byte) (uint64, error) {
	v := info[len(checkpointInfoKey):]
	if i := bytes.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	ck, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid spVCF_checkpointPOS field")
	}
	return ck, nil
}

func copyLines(w io.Writer, it Iterator) error {
	for {
		line, err := it.Next()
		if err != nil {
			return err
		}
		if line == nil {
			return nil
		}
		if err := writeLine(w, line); err != nil {
			return err
		}
	}
}

func writeLine(w io.Writer, line []byte) error {
	if _, err := w.Write(line); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
