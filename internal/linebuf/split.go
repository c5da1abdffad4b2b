// Package linebuf provides the in-place line tokeniser shared by the
// spVCF encoder, decoder and slicer.
package linebuf

// Split appends to dst the tokens of s delimited by delim and returns the
// extended slice. The tokens are sub-slices of s; no bytes are copied.
// Adjacent delimiters produce empty tokens, and a trailing delimiter
// produces a trailing empty token.
//
// If maxsplit > 0, at most maxsplit tokens are split off and the unsplit
// remainder of s is appended as one final token, so a line with enough
// delimiters yields maxsplit+1 tokens.
//
// The tokens tile s exactly (minus the delimiter bytes), so len(token)
// bounds any in-place rewrite of that token.
func Split(s []byte, delim byte, maxsplit int, dst [][]byte) [][]byte {
	start := 0
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] != delim {
			continue
		}
		dst = append(dst, s[start:i])
		n++
		start = i + 1
		if maxsplit > 0 && n >= maxsplit {
			return append(dst, s[start:])
		}
	}
	return append(dst, s[start:])
}
