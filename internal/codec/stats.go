package codec

// Stats counts what a Transcoder has seen over one stream.
type Stats struct {
	N             uint64 // samples in the project VCF
	Lines         uint64 // data rows (excluding header)
	SparseCells   uint64 // total cells in the sparse representation
	Sparse75Lines uint64 // rows encoded with <=25% of the dense cell count
	Sparse90Lines uint64 // " <=10% "
	Sparse99Lines uint64 // " <=1% "
	SqueezedCells uint64 // cells whose QC measures were dropped
	Checkpoints   uint64 // purposely dense rows emitted to aid partial decoding
}

// Add combines rhs into s. Counters add element-wise; N takes the max,
// since parallel encoder batches each observe the same sample set.
func (s *Stats) Add(rhs Stats) {
	s.N = max(s.N, rhs.N)
	s.Lines += rhs.Lines
	s.SparseCells += rhs.SparseCells
	s.Sparse75Lines += rhs.Sparse75Lines
	s.Sparse90Lines += rhs.Sparse90Lines
	s.Sparse99Lines += rhs.Sparse99Lines
	s.SqueezedCells += rhs.SqueezedCells
	s.Checkpoints += rhs.Checkpoints
}

// countSparseLine updates the per-row sparsity counters given the number
// of sparse cells emitted for a row of N samples.
func (s *Stats) countSparseLine(sparseCells uint64) {
	s.SparseCells += sparseCells
	pct := 100 * sparseCells / s.N
	if pct <= 25 {
		s.Sparse75Lines++
	}
	if pct <= 10 {
		s.Sparse90Lines++
	}
	if pct <= 1 {
		s.Sparse99Lines++
	}
}
