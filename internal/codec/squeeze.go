package codec

import (
	"bytes"
	"math"
	"strconv"

	"github.com/inodb/spvcf/internal/linebuf"
)

// roundDPTableSize bounds the precomputed rounding table; larger DP
// values are rounded on the fly.
const roundDPTableSize = 10000

// squeezeRow reduces the QC measures kept in each sample cell, rewriting
// tokens[8:] in place (cell tokens are redirected into an internal arena,
// not mutated through the input line).
//
// The FORMAT column is reordered so DP immediately follows GT. Cells with
// no evidence of a non-reference allele, judged from AD (all depth on the
// first allele) or VR (zero variant reads), are truncated to GT:DP with
// DP rounded down to a power of the configured resolution. Other cells
// keep their fields in the new order, with trailing missing values
// dropped.
func (e *Encoder) squeezeRow(tokens [][]byte) error {
	if e.roundDP == nil {
		e.initRoundDP()
	}

	e.formatFields = linebuf.Split(tokens[8], ':', 0, e.formatFields[:0])
	format := e.formatFields
	iDP, iAD, iVR := -1, -1, -1
	for i, f := range format {
		switch {
		case bytes.Equal(f, []byte("DP")):
			iDP = i
		case bytes.Equal(f, []byte("AD")):
			iAD = i
		case bytes.Equal(f, []byte("VR")):
			iVR = i
		}
	}

	// New field order: GT, DP, then the rest as they came.
	e.permutation = e.permutation[:0]
	e.permutation = append(e.permutation, 0)
	if iDP > 0 {
		e.permutation = append(e.permutation, iDP)
	}
	for i := 1; i < len(format); i++ {
		if i != iDP {
			e.permutation = append(e.permutation, i)
		}
	}
	perm := e.permutation

	e.arena = e.arena[:0]

	start := len(e.arena)
	for i, p := range perm {
		if i > 0 {
			e.arena = append(e.arena, ':')
		}
		e.arena = append(e.arena, format[p]...)
	}
	tokens[8] = e.arena[start:]

	for s := 9; s < len(tokens); s++ {
		e.cellFields = linebuf.Split(tokens[s], ':', 0, e.cellFields[:0])
		cell := e.cellFields

		// No variant evidence: all of AD's depth on the first allele, or
		// an explicit zero variant read count.
		truncate := false
		if iAD >= 0 && len(cell) > iAD {
			if comma := bytes.IndexByte(cell[iAD], ','); comma >= 0 {
				truncate = true
				for _, c := range cell[iAD][comma+1:] {
					if c != '0' && c != ',' {
						truncate = false
						break
					}
				}
			}
		}
		if !truncate && iVR >= 0 && len(cell) > iVR && bytes.Equal(cell[iVR], []byte("0")) {
			truncate = true
		}

		start := len(e.arena)
		e.arena = append(e.arena, cell[0]...)

		if truncate {
			if iDP >= 0 && len(cell) > iDP && len(cell[iDP]) > 0 && !bytes.Equal(cell[iDP], []byte(".")) {
				dp, err := strconv.ParseUint(string(cell[iDP]), 10, 64)
				if err != nil {
					return e.fail("couldn't parse DP")
				}
				e.arena = append(e.arena, ':')
				e.arena = append(e.arena, e.roundedDP(dp)...)
			} else if iDP >= 0 {
				e.arena = append(e.arena, ':', '.')
			}
			e.stats.SqueezedCells++
		} else {
			// Drop trailing fields carrying no information.
			last := len(perm) - 1
			for last >= 1 {
				p := perm[last]
				if len(cell) > p && !missingField(cell[p]) {
					break
				}
				last--
			}
			for i := 1; i <= last; i++ {
				e.arena = append(e.arena, ':')
				p := perm[i]
				if len(cell) > p && len(cell[p]) > 0 {
					e.arena = append(e.arena, cell[p]...)
				} else {
					e.arena = append(e.arena, '.')
				}
			}
		}

		tokens[s] = e.arena[start:]
	}

	return nil
}

// missingField reports whether a cell field holds no information ("." or
// ".,.,." style vectors, or an empty field).
func missingField(f []byte) bool {
	for _, c := range f {
		if c != '.' && c != ',' {
			return false
		}
	}
	return true
}

// roundedDP returns dp rounded down to a power of the resolution, as
// decimal text. Values below the table size come from the precomputed
// table.
func (e *Encoder) roundedDP(dp uint64) []byte {
	if dp < uint64(len(e.roundDP)) {
		return []byte(e.roundDP[dp])
	}
	return []byte(strconv.FormatUint(roundDown(dp, e.resolution), 10))
}

func roundDown(dp uint64, base float64) uint64 {
	if dp == 0 {
		return 0
	}
	return uint64(math.Pow(base, math.Floor(math.Log(float64(dp))/math.Log(base))))
}

func (e *Encoder) initRoundDP() {
	e.roundDP = make([]string, roundDPTableSize)
	e.roundDP[0] = "0"
	for dp := uint64(1); dp < roundDPTableSize; dp++ {
		e.roundDP[dp] = strconv.FormatUint(roundDown(dp, e.resolution), 10)
	}
}
