package codec

import (
	"bytes"
	"strconv"

	"github.com/inodb/spvcf/internal/linebuf"
)

// Encoder converts dense project VCF rows to sparse spVCF rows. It keeps
// the last densely-written cell per sample column and emits quote-run
// tokens for cells that repeat it, with a dense checkpoint row at every
// chromosome change and at the configured period.
//
// An Encoder is owned by a single goroutine.
type Encoder struct {
	period     uint64
	sparse     bool
	squeeze    bool
	resolution float64

	lineNumber uint64
	stats      Stats

	dense           []string // remembered row R, one entry per sample column
	chrom           string
	sinceCheckpoint uint64
	checkpointPos   uint64
	lastPos         uint64

	buf    bytes.Buffer
	tokens [][]byte

	// squeeze scratch, reused across rows
	roundDP      []string
	formatFields [][]byte
	cellFields   [][]byte
	permutation  []int
	arena        []byte
}

// NewEncoder returns an Encoder emitting a checkpoint at least every
// checkpointPeriod data rows (0 disables periodic checkpoints). With
// sparse false the encoder emits dense VCF rows (used by the squeeze-only
// mode). With squeeze true, cells are squeezed before encoding, rounding
// DP down to a power of resolution (which must be > 1).
func NewEncoder(checkpointPeriod uint64, sparse, squeeze bool, resolution float64) *Encoder {
	return &Encoder{
		period:     checkpointPeriod,
		sparse:     sparse,
		squeeze:    squeeze,
		resolution: resolution,
	}
}

// Stats returns the counters accumulated so far.
func (e *Encoder) Stats() Stats { return e.stats }

// setLineOffset positions the encoder's line counter; the parallel driver
// uses it so batch errors report absolute input line numbers.
func (e *Encoder) setLineOffset(n uint64) { e.lineNumber = n }

func (e *Encoder) fail(msg string) error {
	return &RowError{Line: e.lineNumber, Message: msg}
}

// ProcessLine encodes one input row. The input is damaged in place; the
// returned slice is valid until the next call.
func (e *Encoder) ProcessLine(line []byte) ([]byte, error) {
	e.lineNumber++

	// Pass through header lines, stamping the fileformat declaration.
	if len(line) == 0 || line[0] == '#' {
		if e.sparse && bytes.HasPrefix(line, []byte("##fileformat=")) {
			e.buf.Reset()
			e.buf.WriteString("##fileformat=spVCF")
			e.buf.WriteString(FormatVersion)
			e.buf.WriteByte(';')
			e.buf.Write(line[len("##fileformat="):])
			return e.buf.Bytes(), nil
		}
		return line, nil
	}
	e.stats.Lines++

	e.tokens = linebuf.Split(line, '\t', 0, e.tokens[:0])
	tokens := e.tokens
	if len(tokens) < 10 {
		return nil, e.fail("invalid project VCF: fewer than 10 columns")
	}
	if !bytes.HasPrefix(tokens[8], []byte("GT:")) && !bytes.Equal(tokens[8], []byte("GT")) {
		return nil, e.fail("cells don't start with genotype (GT)")
	}

	n := uint64(len(tokens) - 9)
	if e.dense == nil {
		e.dense = make([]string, n)
		e.stats.N = n
	} else if uint64(len(e.dense)) != n {
		for _, t := range tokens[9:] {
			if len(t) > 0 && t[0] == '"' {
				return nil, e.fail("input seems to be sparse-encoded already")
			}
		}
		return nil, e.fail("inconsistent number of samples")
	}

	pos, err := strconv.ParseUint(string(tokens[1]), 10, 64)
	if err != nil {
		return nil, e.fail("couldn't parse POS")
	}
	newChrom := e.chrom != string(tokens[0])
	if !newChrom && pos < e.lastPos {
		return nil, e.fail("input VCF not sorted (detected decreasing POS)")
	}
	e.lastPos = pos

	if e.squeeze {
		if err := e.squeezeRow(tokens); err != nil {
			return nil, err
		}
	}

	e.buf.Reset()

	// First nine columns, with checkpoint metadata prepended to INFO in
	// sparse mode.
	e.buf.Write(tokens[0])
	for i := 1; i < 9; i++ {
		e.buf.WriteByte('\t')
		if i != 7 || !e.sparse {
			e.buf.Write(tokens[i])
			continue
		}
		e.buf.WriteString(checkpointInfoKey)
		e.buf.WriteString(strconv.FormatUint(e.checkpointPos, 10))
		if info := tokens[7]; len(info) > 0 && !bytes.Equal(info, []byte(".")) {
			e.buf.WriteByte(';')
			e.buf.Write(info)
		}
	}

	if !e.sparse {
		for _, t := range tokens[9:] {
			e.buf.WriteByte('\t')
			e.buf.Write(t)
		}
		e.chrom = string(tokens[0])
		return e.buf.Bytes(), nil
	}

	// Compare each cell with the last entry recorded densely for its
	// column, collapsing matches into quote runs.
	var quoteRun, sparseCells uint64
	for s := uint64(0); s < n; s++ {
		t := tokens[s+9]
		if len(t) > 0 && t[0] == '"' {
			return nil, e.fail("input seems to be sparse-encoded already")
		}
		m := e.dense[s]
		matched := m != "" && m == string(t)
		if matched {
			unquotable, err := unquotableGT(t)
			if err != nil {
				return nil, e.fail(err.Error())
			}
			matched = !unquotable
		}
		if !matched {
			if quoteRun > 0 {
				e.writeQuoteRun(quoteRun)
				quoteRun = 0
				sparseCells++
			}
			e.buf.WriteByte('\t')
			e.buf.Write(t)
			sparseCells++
			e.dense[s] = string(t)
		} else {
			quoteRun++
		}
	}
	if quoteRun > 0 {
		e.writeQuoteRun(quoteRun)
		sparseCells++
	}

	// Emit a dense checkpoint row on a new chromosome or when the period
	// has elapsed.
	e.sinceCheckpoint++
	if newChrom || (e.period > 0 && e.sinceCheckpoint >= e.period) {
		e.buf.Reset()
		for i, t := range tokens {
			if i > 0 {
				e.buf.WriteByte('\t')
			}
			e.buf.Write(t)
			if i >= 9 {
				e.dense[i-9] = string(t)
			}
		}
		e.sinceCheckpoint = 0
		e.checkpointPos = pos
		e.chrom = string(tokens[0])
		e.stats.Checkpoints++
		return e.buf.Bytes(), nil
	}

	e.stats.countSparseLine(sparseCells)
	return e.buf.Bytes(), nil
}

func (e *Encoder) writeQuoteRun(run uint64) {
	e.buf.WriteString("\t\"")
	if run > 1 {
		e.buf.WriteString(strconv.FormatUint(run, 10))
	}
}

// unquotableGT reports whether the cell's GT sub-field disqualifies it
// from run encoding. Called alleles consisting of all 0 or all . may be
// quoted; a half-call like ./0 must stay dense so that expanding a run
// cannot conflate it with a homozygous reference call.
//
// Assumes GT is the first FORMAT field, as required by VCF.
func unquotableGT(cell []byte) (bool, error) {
	if len(cell) == 0 || cell[0] == ':' {
		return false, errMissingGT
	}
	var zero, dot bool
	for _, c := range cell {
		switch c {
		case ':':
			return zero == dot, nil
		case '0':
			zero = true
		case '.':
			dot = true
		case '/', '|':
		default:
			return true, nil
		}
	}
	return zero == dot, nil
}

var errMissingGT = &missingGTError{}

type missingGTError struct{}

func (*missingGTError) Error() string { return "missing GT entry" }
