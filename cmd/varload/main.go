// Package main provides the varload command-line tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/variomics/varload/internal/config"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var verbose bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "varload",
		Short: "High-throughput VCF ingestion into a relational store",
		Long: `varload ingests genomic variant files (VCF), normalizes variants
against a reference genome (vt-compatible left-alignment and multi-allelic
decomposition), and bulk-loads canonical records with provenance tracking.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Init()
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(newLoadCmd())
	root.AddCommand(newNormalizeCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("varload version %s (%s) built %s\n", version, commit, date)
		},
	}
}

// newLogger builds the CLI logger. Library code defaults to a nop logger;
// commands hand this one down.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	return cfg.Build()
}
