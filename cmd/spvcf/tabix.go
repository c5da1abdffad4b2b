package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inodb/spvcf/internal/slice"
)

func newTabixCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "tabix <in.spvcf.gz> <region> [region...]",
		Short: "Slice genomic ranges from an indexed spVCF file",
		Long: "Tabix extracts one or more regions (chr or chr:lo-hi) from a\n" +
			"bgzip-compressed, tabix-indexed spVCF file, emitting a\n" +
			"self-contained spVCF stream. The input must have been indexed\n" +
			"with `tabix -p vcf`.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			regions, err := slice.ParseRegions(args[1:])
			if err != nil {
				return usageErrorf("%v", err)
			}

			src, err := slice.OpenTabix(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			w := bufio.NewWriterSize(cmd.OutOrStdout(), 1<<20)
			var f *os.File
			if output != "" && output != "-" {
				if f, err = os.Create(output); err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				w = bufio.NewWriterSize(f, 1<<20)
			}

			if err := slice.NewSlicer(src).Slice(w, regions); err != nil {
				if f != nil {
					f.Close()
				}
				return err
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if f != nil {
				return f.Close()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of standard output")
	return cmd
}
