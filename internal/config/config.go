// Package config loads varload configuration from file, environment, and
// defaults via viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Config is the resolved runtime configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Load      LoadConfig      `mapstructure:"load"`
}

// DatabaseConfig selects and parameterizes the store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // duckdb or postgres
	DSN    string `mapstructure:"dsn"`    // postgres connection string
	Path   string `mapstructure:"path"`   // duckdb database file
}

// ReferenceConfig locates the reference genome.
type ReferenceConfig struct {
	FASTA  string `mapstructure:"fasta"`
	Genome string `mapstructure:"genome"` // label recorded in provenance, e.g. GRCh38
}

// LoadConfig tunes the ingestion pipeline.
type LoadConfig struct {
	BatchSize     int  `mapstructure:"batch_size"`
	Workers       int  `mapstructure:"workers"`
	Normalize     bool `mapstructure:"normalize"`
	ManageIndexes bool `mapstructure:"manage_indexes"`
}

// Init wires viper to ~/.varload.yaml and VARLOAD_* environment variables
// and installs defaults. Call once at CLI startup.
func Init() error {
	viper.SetConfigName(".varload")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("VARLOAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("database.driver", DriverDuckDB)
	viper.SetDefault("database.path", "varload.duckdb")
	viper.SetDefault("reference.genome", "GRCh38")
	viper.SetDefault("load.batch_size", 10000)
	viper.SetDefault("load.workers", 1)
	viper.SetDefault("load.normalize", true)
	viper.SetDefault("load.manage_indexes", true)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Get unmarshals the current viper state into a Config.
func Get() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Database.Driver != DriverDuckDB && cfg.Database.Driver != DriverPostgres {
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver == DriverPostgres && cfg.Database.DSN == "" {
		return nil, fmt.Errorf("postgres driver requires database.dsn")
	}
	return &cfg, nil
}
