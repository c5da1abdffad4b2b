// Package codec implements the streaming Sparse Project VCF (spVCF)
// encoder and decoder.
//
// spVCF collapses vertical runs of sample cells that repeat the previous
// row's value into quote tokens (`"` for a run of one, `"<n>` for longer
// runs). Periodic dense "checkpoint" rows bound run lengths and allow
// decoding to resume mid-file.
package codec

import (
	"fmt"
	"io"
)

// FormatVersion is stamped into the ##fileformat header line of encoded
// output (##fileformat=spVCF<version>;<original format>).
const FormatVersion = "v1.0.0"

// checkpointInfoKey prefixes the INFO sub-field that records the POS of
// the last checkpoint preceding a sparse row.
const checkpointInfoKey = "spVCF_checkpointPOS="

// Transcoder converts lines between the dense and sparse representations,
// one line per call.
//
// ProcessLine consumes the input line (it may be damaged in place) and
// returns a view into an internal buffer that remains valid only until
// the next call.
type Transcoder interface {
	ProcessLine(line []byte) ([]byte, error)
	Stats() Stats
}

// LineSource yields input lines one at a time, without their trailing
// newline. Next returns a nil line at end of input.
type LineSource interface {
	Next() ([]byte, error)
}

// RowError is a fatal transcoding error tied to a 1-based input line.
type RowError struct {
	Line    uint64
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("spvcf: %s (line %d)", e.Message, e.Line)
}

// Transcode pumps every line of src through tc, writing each result to w
// followed by a newline, and returns the transcoder's statistics.
func Transcode(tc Transcoder, src LineSource, w io.Writer) (Stats, error) {
	for {
		line, err := src.Next()
		if err != nil {
			return tc.Stats(), err
		}
		if line == nil {
			return tc.Stats(), nil
		}
		out, err := tc.ProcessLine(line)
		if err != nil {
			return tc.Stats(), err
		}
		if _, err := w.Write(out); err != nil {
			return tc.Stats(), fmt.Errorf("write output: %w", err)
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return tc.Stats(), fmt.Errorf("write output: %w", err)
		}
	}
}
