// Package main provides the spvcf command-line tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// usageError marks failures caused by how the tool was invoked rather
// than by its input.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	os.Exit(run())
}

func run() int {
	initConfig()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		var uerr *usageError
		if errors.As(err, &uerr) {
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "spvcf",
		Short:         "Codec for Sparse Project VCF (spVCF)",
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newEncodeCmd())
	root.AddCommand(newSqueezeCmd())
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newTabixCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// initConfig loads persisted defaults from ~/.spvcf.yaml.
func initConfig() {
	viper.SetDefault("period", uint64(1000))
	viper.SetDefault("resolution", 2.0)
	viper.SetDefault("threads", 1)

	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	viper.AddConfigPath(home)
	viper.SetConfigName(".spvcf")
	viper.SetConfigType("yaml")
	_ = viper.ReadInConfig()
}

// newLogger builds the stderr logger used for non-fatal warnings.
func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
