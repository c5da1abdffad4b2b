package codec

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/inodb/spvcf/internal/linebuf"
)

// Decoder converts sparse spVCF rows back to dense project VCF rows. It
// replays the last densely-seen cell per sample column when expanding
// quote runs.
//
// A Decoder is owned by a single goroutine.
type Decoder struct {
	withMissing bool

	lineNumber uint64
	stats      Stats

	dense  []string // remembered row R, one entry per sample column
	format string   // FORMAT column of the first data row

	fieldNames  []string
	fieldCounts []int // missing-value vector length per FORMAT field; -1 for AD (per allele), -2 for PL (per genotype)

	buf     bytes.Buffer
	tokens  [][]byte
	periods []string
}

// NewDecoder returns a Decoder. With withMissing true, cells shorter
// than the FORMAT declaration are padded with missing values, which
// requires FORMAT to be identical on every data row.
func NewDecoder(withMissing bool) *Decoder {
	return &Decoder{withMissing: withMissing}
}

// Stats returns the counters accumulated so far.
func (d *Decoder) Stats() Stats { return d.stats }

func (d *Decoder) setLineOffset(n uint64) { d.lineNumber = n }

func (d *Decoder) fail(msg string) error {
	return &RowError{Line: d.lineNumber, Message: msg}
}

// ProcessLine decodes one input row. The returned slice is valid until
// the next call.
func (d *Decoder) ProcessLine(line []byte) ([]byte, error) {
	d.lineNumber++

	// Pass through header lines, restoring the original fileformat
	// declaration.
	if len(line) == 0 || line[0] == '#' {
		if bytes.HasPrefix(line, []byte("##fileformat=spVCF")) {
			if i := bytes.IndexByte(line, ';'); i >= 0 {
				d.buf.Reset()
				d.buf.WriteString("##fileformat=")
				d.buf.Write(line[i+1:])
				return d.buf.Bytes(), nil
			}
		}
		return line, nil
	}
	d.stats.Lines++

	d.tokens = linebuf.Split(line, '\t', 0, d.tokens[:0])
	tokens := d.tokens
	if len(tokens) < 10 {
		return nil, d.fail("invalid spVCF: fewer than 10 columns")
	}

	if d.dense == nil {
		n := uint64(len(tokens) - 9)
		d.dense = make([]string, n)
		d.stats.N = n
	}
	n := uint64(len(d.dense))

	nAlt := 1 + bytes.Count(tokens[4], []byte(","))
	if d.withMissing {
		if err := d.checkFormat(tokens[8]); err != nil {
			return nil, err
		}
	}

	d.buf.Reset()

	// First nine columns, stripping the checkpoint metadata off INFO.
	d.buf.Write(tokens[0])
	for i := 1; i < 9; i++ {
		d.buf.WriteByte('\t')
		if i != 7 || !bytes.HasPrefix(tokens[7], []byte(checkpointInfoKey)) {
			d.buf.Write(tokens[i])
			continue
		}
		if j := bytes.IndexByte(tokens[7], ';'); j >= 0 {
			d.buf.Write(tokens[7][j+1:])
		} else {
			d.buf.WriteByte('.')
		}
	}

	// Expand the cells, replaying remembered dense values for quote runs.
	var col uint64
	for _, t := range tokens[9:] {
		if len(t) == 0 {
			return nil, d.fail("empty cell")
		}
		if t[0] != '"' {
			if col >= n {
				return nil, d.fail("row has too many columns")
			}
			d.dense[col] = string(t)
			d.buf.WriteByte('\t')
			d.buf.Write(t)
			if d.withMissing {
				d.pad(1+bytes.Count(t, []byte(":")), nAlt)
			}
			col++
			continue
		}
		run := uint64(1)
		if len(t) > 1 {
			r, err := strconv.ParseUint(string(t[1:]), 10, 64)
			if err != nil || r == 0 {
				return nil, d.fail("couldn't parse quote run length")
			}
			run = r
		}
		if col+run > n {
			return nil, d.fail("quote run overruns the row")
		}
		for j := uint64(0); j < run; j++ {
			m := d.dense[col]
			if m == "" {
				return nil, d.fail("quote precedes any dense value for the column")
			}
			d.buf.WriteByte('\t')
			d.buf.WriteString(m)
			if d.withMissing {
				d.pad(1+strings.Count(m, ":"), nAlt)
			}
			col++
		}
	}
	if col != n {
		return nil, d.fail("wrong number of columns")
	}

	d.stats.countSparseLine(uint64(len(tokens) - 9))
	return d.buf.Bytes(), nil
}

// pad appends missing values for the FORMAT fields a cell of have
// fields leaves unstated.
func (d *Decoder) pad(have, nAlt int) {
	for i := have; i < len(d.fieldNames); i++ {
		c := d.fieldCounts[i]
		switch c {
		case -1: // AD: one value per allele
			c = nAlt + 1
		case -2: // PL: one value per genotype
			c = (nAlt + 1) * (nAlt + 2) / 2
		}
		d.buf.WriteByte(':')
		d.buf.WriteString(d.missing(c))
	}
}

// missing returns a comma-joined vector of c missing values.
func (d *Decoder) missing(c int) string {
	for len(d.periods) <= c {
		if len(d.periods) == 0 {
			d.periods = append(d.periods, "")
			continue
		}
		prev := d.periods[len(d.periods)-1]
		if prev == "" {
			d.periods = append(d.periods, ".")
		} else {
			d.periods = append(d.periods, prev+",.")
		}
	}
	return d.periods[c]
}

// checkFormat records the FORMAT column on the first data row and
// verifies later rows match it, as filling missing fields relies on one
// field layout for the whole file.
func (d *Decoder) checkFormat(format []byte) error {
	if d.fieldNames == nil {
		d.format = string(format)
		d.fieldNames = strings.Split(d.format, ":")
		d.fieldCounts = make([]int, len(d.fieldNames))
		for i, name := range d.fieldNames {
			switch name {
			case "AD":
				d.fieldCounts[i] = -1
			case "PL":
				d.fieldCounts[i] = -2
			default:
				d.fieldCounts[i] = 1
			}
		}
		return nil
	}
	if d.format != string(format) {
		return d.fail("filling missing fields requires consistent FORMAT across all rows")
	}
	return nil
}
