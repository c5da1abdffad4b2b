package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/spvcf/internal/codec"
	"github.com/inodb/spvcf/internal/vcf"
)

// codecFlags holds the flag values shared by the encode, squeeze, and
// decode subcommands.
type codecFlags struct {
	output     string
	period     uint64
	noSqueeze  bool
	resolution float64
	threads    int
	quiet      bool
}

func newEncodeCmd() *cobra.Command {
	var flags codecFlags
	cmd := &cobra.Command{
		Use:   "encode [in.vcf|-]",
		Short: "Encode a project VCF to spVCF",
		Long: "Encode reads a project VCF (uncompressed) and writes its sparse\n" +
			"encoding. Sample cells are squeezed (FORMAT reordered to begin\n" +
			"with GT:DP, cells without non-reference evidence reduced to\n" +
			"GT:DP) unless --no-squeeze is given. QUAL and INFO are not squeezed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := codec.EncodeOptions{
				CheckpointPeriod: flags.period,
				Sparse:           true,
				Squeeze:          !flags.noSqueeze,
				Resolution:       flags.resolution,
				Workers:          flags.threads,
			}
			return runEncode(cmd, args, flags, opts)
		},
	}
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write to file instead of standard output")
	cmd.Flags().Uint64VarP(&flags.period, "period", "p", viper.GetUint64("period"), "ensure checkpoints (full dense rows) at this period or less")
	cmd.Flags().BoolVar(&flags.noSqueeze, "no-squeeze", false, "disable lossy QC squeezing transform")
	cmd.Flags().Float64Var(&flags.resolution, "resolution", viper.GetFloat64("resolution"), "round down squeezed DP to a power of this base")
	cmd.Flags().IntVarP(&flags.threads, "threads", "t", viper.GetInt("threads"), "encoder worker threads")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress statistics printed to standard error")
	return cmd
}

func newSqueezeCmd() *cobra.Command {
	var flags codecFlags
	cmd := &cobra.Command{
		Use:   "squeeze [in.vcf|-]",
		Short: "Squeeze QC measures from a project VCF without sparse encoding",
		Long: "Squeeze applies only the lossy transform: reference-identical\n" +
			"cells are reduced to GT:DP with DP rounded down, and FORMAT is\n" +
			"reordered to begin with GT:DP. The output is itself a valid VCF.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := codec.EncodeOptions{
				Sparse:     false,
				Squeeze:    true,
				Resolution: flags.resolution,
				Workers:    flags.threads,
			}
			return runEncode(cmd, args, flags, opts)
		},
	}
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write to file instead of standard output")
	cmd.Flags().Float64Var(&flags.resolution, "resolution", viper.GetFloat64("resolution"), "round down squeezed DP to a power of this base")
	cmd.Flags().IntVarP(&flags.threads, "threads", "t", viper.GetInt("threads"), "worker threads")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress statistics printed to standard error")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	var flags codecFlags
	var withMissing bool
	cmd := &cobra.Command{
		Use:   "decode [in.spvcf|-]",
		Short: "Decode spVCF back to a dense project VCF",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out, err := openStreams(cmd, args, flags.output)
			if err != nil {
				return err
			}
			defer in.Close()

			stats, err := codec.Transcode(codec.NewDecoder(withMissing), in, out)
			if err != nil {
				return err
			}
			if err := out.Flush(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if !flags.quiet {
				printStats(cmd.ErrOrStderr(), stats, statsDecode, false)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write to file instead of standard output")
	cmd.Flags().BoolVar(&withMissing, "with-missing-fields", false, "fill trailing FORMAT fields omitted by squeeze with missing values")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress statistics printed to standard error")
	return cmd
}

func runEncode(cmd *cobra.Command, args []string, flags codecFlags, opts codec.EncodeOptions) error {
	if opts.Squeeze && !(opts.Resolution > 1) {
		return usageErrorf("--resolution must be greater than 1")
	}
	in, out, err := openStreams(cmd, args, flags.output)
	if err != nil {
		return err
	}
	defer in.Close()

	stats, err := codec.ParallelEncode(opts, in, out)
	if err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !flags.quiet {
		mode := statsEncode
		if !opts.Sparse {
			mode = statsSqueeze
		}
		printStats(cmd.ErrOrStderr(), stats, mode, opts.Squeeze)
	}
	return nil
}

// openStreams resolves the command's input reader and buffered output
// writer. An absent or "-" input argument means standard input, which
// must not be a terminal.
func openStreams(cmd *cobra.Command, args []string, output string) (*vcf.Reader, *flushWriter, error) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" || path == "-" {
		if st, err := os.Stdin.Stat(); err == nil && st.Mode()&os.ModeCharDevice != 0 {
			_ = cmd.Usage()
			return nil, nil, usageErrorf("no input file given and standard input is a terminal")
		}
	}

	in, err := vcf.Open(path, newLogger())
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = cmd.OutOrStdout()
	var closer *os.File
	if output != "" && output != "-" {
		f, err := os.Create(output)
		if err != nil {
			in.Close()
			return nil, nil, fmt.Errorf("create output: %w", err)
		}
		w = f
		closer = f
	}
	return in, &flushWriter{bw: bufio.NewWriterSize(w, 1<<20), f: closer}, nil
}

// flushWriter pairs a buffered writer with the file (if any) behind it.
type flushWriter struct {
	bw *bufio.Writer
	f  *os.File
}

func (fw *flushWriter) Write(p []byte) (int, error) { return fw.bw.Write(p) }

func (fw *flushWriter) Flush() error {
	if err := fw.bw.Flush(); err != nil {
		if fw.f != nil {
			fw.f.Close()
		}
		return err
	}
	if fw.f != nil {
		return fw.f.Close()
	}
	return nil
}

type statsMode int

const (
	statsEncode statsMode = iota
	statsSqueeze
	statsDecode
)

// printStats reports stream statistics on stderr in the same layout for
// all three codec subcommands, with counters inapplicable to the mode
// left out.
func printStats(w io.Writer, s codec.Stats, mode statsMode, squeeze bool) {
	fmt.Fprintf(w, "N = %d\n", s.N)
	fmt.Fprintf(w, "dense cells = %d\n", s.N*s.Lines)
	if squeeze {
		fmt.Fprintf(w, "squeezed cells = %d\n", s.SqueezedCells)
	}
	if mode != statsSqueeze {
		fmt.Fprintf(w, "sparse cells = %d\n", s.SparseCells)
		fmt.Fprintf(w, "lines (non-header) = %d\n", s.Lines)
		fmt.Fprintf(w, "lines (75%% sparse) = %d\n", s.Sparse75Lines)
		fmt.Fprintf(w, "lines (90%% sparse) = %d\n", s.Sparse90Lines)
		fmt.Fprintf(w, "lines (99%% sparse) = %d\n", s.Sparse99Lines)
	}
	if mode == statsEncode {
		fmt.Fprintf(w, "checkpoints = %d\n", s.Checkpoints)
	}
}
