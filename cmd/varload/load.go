package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/variomics/varload/internal/config"
	"github.com/variomics/varload/internal/load"
	"github.com/variomics/varload/internal/reference"
	"github.com/variomics/varload/internal/storage"
)

func newLoadCmd() *cobra.Command {
	var force, noNormalize bool

	cmd := &cobra.Command{
		Use:   "load <file.vcf[.gz]>",
		Short: "Bulk-load a VCF file into the variant store",
		Example: `  varload load sample.vcf.gz
  varload load --force --workers 4 cohort.vcf.gz
  varload load --db postgres --dsn "postgres://..." clinvar.vcf.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), args[0], force, noNormalize)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reload even if identical content was already loaded")
	cmd.Flags().Int("batch-size", 0, "Records per bulk-copy batch")
	cmd.Flags().Int("workers", 0, "Concurrent batch writers")
	cmd.Flags().BoolVar(&noNormalize, "no-normalize", false, "Skip variant normalization")
	cmd.Flags().String("db", "", "Store backend: duckdb or postgres")
	cmd.Flags().String("dsn", "", "Postgres connection string")
	cmd.Flags().String("db-path", "", "DuckDB database file")
	cmd.Flags().String("fasta", "", "Reference genome FASTA (enables left-alignment)")
	cmd.Flags().String("genome", "", "Reference genome label recorded in provenance")

	viper.BindPFlag("load.batch_size", cmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("load.workers", cmd.Flags().Lookup("workers"))
	viper.BindPFlag("database.driver", cmd.Flags().Lookup("db"))
	viper.BindPFlag("database.dsn", cmd.Flags().Lookup("dsn"))
	viper.BindPFlag("database.path", cmd.Flags().Lookup("db-path"))
	viper.BindPFlag("reference.fasta", cmd.Flags().Lookup("fasta"))
	viper.BindPFlag("reference.genome", cmd.Flags().Lookup("genome"))

	return cmd
}

func runLoad(ctx context.Context, path string, force, noNormalize bool) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Get()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	acc, err := openReference(cfg, logger)
	if err != nil {
		return err
	}

	normalize := cfg.Load.Normalize && !noNormalize

	coord := load.NewCoordinator(store, load.Options{
		BatchSize:     cfg.Load.BatchSize,
		Workers:       cfg.Load.Workers,
		Normalize:     normalize,
		Reference:     acc,
		Genome:        cfg.Reference.Genome,
		Force:         force,
		ManageIndexes: cfg.Load.ManageIndexes,
		Logger:        logger,
	})

	result, err := coord.Load(ctx, path)
	if err != nil {
		return err
	}

	if result.Skipped {
		fmt.Printf("Skipped: identical content already loaded (batch %s)\n", result.BatchID)
		return nil
	}
	fmt.Printf("Loaded %d variants (batch %s, sha256 %s", result.VariantsLoaded, result.BatchID, result.FileHash[:12])
	if result.AllelesSkipped > 0 {
		fmt.Printf(", %d alleles skipped", result.AllelesSkipped)
	}
	fmt.Println(")")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, cfg.Database.DSN)
	default:
		return storage.OpenDuckDB(cfg.Database.Path)
	}
}

// openReference loads the configured FASTA, or returns a nil accessor when
// none is configured. Without a reference, indels that need a left-roll are
// stored at their last provable representation.
func openReference(cfg *config.Config, logger *zap.Logger) (reference.Accessor, error) {
	if cfg.Reference.FASTA == "" {
		logger.Warn("no reference FASTA configured, left-alignment will be partial")
		return reference.NewMemory(nil), nil
	}
	fasta := reference.NewFASTA(cfg.Reference.FASTA)
	if err := fasta.Load(); err != nil {
		return nil, fmt.Errorf("load reference FASTA: %w", err)
	}
	logger.Info("reference loaded",
		zap.String("fasta", cfg.Reference.FASTA),
		zap.Int("contigs", fasta.ContigCount()))
	return fasta, nil
}
