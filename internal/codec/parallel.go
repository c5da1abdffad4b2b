package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// defaultBatchLines sizes parallel batches when periodic checkpoints are
// disabled.
const defaultBatchLines = 1000

// EncodeOptions configure an encoding run.
type EncodeOptions struct {
	CheckpointPeriod uint64
	Sparse           bool
	Squeeze          bool
	Resolution       float64
	Workers          int // 0 means runtime.NumCPU()
}

func (o EncodeOptions) newEncoder() *Encoder {
	return NewEncoder(o.CheckpointPeriod, o.Sparse, o.Squeeze, o.Resolution)
}

// encodeBatch holds consecutive input lines handed to one worker. Lines
// are copies owned by the batch.
type encodeBatch struct {
	seq    int
	offset uint64 // input lines preceding this batch
	lines  [][]byte
}

// encodeResult is one worker's encoded batch output.
type encodeResult struct {
	seq   int
	out   []byte
	stats Stats
	err   error
}

// ParallelEncode encodes src with a pool of workers, writing output
// lines to w in input order and returning the aggregated statistics.
//
// The input is partitioned into batches of at least the checkpoint
// period's worth of data lines; each worker runs its own encoder over a
// batch. A fresh encoder emits a dense row first, so every batch starts
// at a checkpoint and the batches decode independently. Checkpoint
// positions may differ from a single-threaded run when batch boundaries
// do not align with chromosome changes, but the output is equivalent
// after decoding.
func ParallelEncode(opts EncodeOptions, src LineSource, w io.Writer) (Stats, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers == 1 {
		return Transcode(opts.newEncoder(), src, w)
	}
	batchLines := opts.CheckpointPeriod
	if batchLines == 0 {
		batchLines = defaultBatchLines
	}

	g, ctx := errgroup.WithContext(context.Background())
	items := make(chan encodeBatch, workers)
	results := make(chan encodeResult, 2*workers)

	g.Go(func() error {
		defer close(items)
		var (
			b      encodeBatch
			lineNo uint64
			data   uint64
		)
		flush := func() error {
			select {
			case items <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
			b = encodeBatch{seq: b.seq + 1, offset: lineNo}
			data = 0
			return nil
		}
		for {
			line, err := src.Next()
			if err != nil {
				return err
			}
			if line == nil {
				break
			}
			b.lines = append(b.lines, append([]byte(nil), line...))
			lineNo++
			if len(line) > 0 && line[0] != '#' {
				data++
			}
			if data >= batchLines {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if len(b.lines) > 0 {
			return flush()
		}
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer wg.Done()
			var out bytes.Buffer
			for b := range items {
				enc := opts.newEncoder()
				enc.setLineOffset(b.offset)
				out.Reset()
				var perr error
				for _, l := range b.lines {
					res, err := enc.ProcessLine(l)
					if err != nil {
						perr = err
						break
					}
					out.Write(res)
					out.WriteByte('\n')
				}
				r := encodeResult{
					seq:   b.seq,
					out:   append([]byte(nil), out.Bytes()...),
					stats: enc.Stats(),
					err:   perr,
				}
				select {
				case results <- r:
				case <-ctx.Done():
					return ctx.Err()
				}
				if perr != nil {
					return perr
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Sink: emit batches in submission order, buffering whatever arrives
	// out of turn.
	var (
		stats   Stats
		sinkErr error
		pending = make(map[int]encodeResult)
		next    = 0
	)
	for r := range results {
		pending[r.seq] = r
		for sinkErr == nil {
			rr, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if rr.err != nil {
				sinkErr = rr.err
				break
			}
			if _, err := w.Write(rr.out); err != nil {
				sinkErr = fmt.Errorf("write output: %w", err)
				break
			}
			stats.Add(rr.stats)
		}
		if sinkErr != nil {
			// Drain remaining results to unblock workers.
			for range results {
			}
			break
		}
	}

	if err := g.Wait(); err != nil && sinkErr == nil {
		sinkErr = err
	}
	return stats, sinkErr
}
