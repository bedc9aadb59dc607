package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/variomics/varload/internal/record"
)

// DuckDB is an embedded store backend. Bulk copies use the DuckDB Appender
// API, which writes columnar chunks directly instead of row-by-row inserts.
type DuckDB struct {
	db   *sql.DB
	path string
}

// OpenDuckDB opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func OpenDuckDB(path string) (*DuckDB, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	return &DuckDB{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *DuckDB) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct queries.
func (s *DuckDB) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates tables if they don't exist.
func (s *DuckDB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS variants (
			chrom VARCHAR NOT NULL,
			pos BIGINT NOT NULL,
			ref VARCHAR NOT NULL,
			alt VARCHAR NOT NULL,
			end_pos BIGINT,
			variant_type VARCHAR,
			qual DOUBLE,
			filter VARCHAR,
			rs_id VARCHAR,
			gene_symbol VARCHAR,
			transcript VARCHAR,
			consequence VARCHAR,
			impact VARCHAR,
			hgvsc VARCHAR,
			hgvsp VARCHAR,
			gnomad_af DOUBLE,
			cadd_phred DOUBLE,
			clin_sig VARCHAR,
			info VARCHAR,
			normalized BOOLEAN,
			symbolic BOOLEAN,
			orig_pos BIGINT,
			orig_ref VARCHAR,
			orig_alt VARCHAR,
			load_batch_id VARCHAR,
			sample_id VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS load_batches (
			id VARCHAR PRIMARY KEY,
			file_path VARCHAR NOT NULL,
			file_hash VARCHAR NOT NULL,
			file_size BIGINT,
			genome VARCHAR,
			sample_count INTEGER,
			status VARCHAR NOT NULL,
			variants_loaded BIGINT,
			started_at TIMESTAMP,
			completed_at TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &WriteError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}

// DropIndexes removes secondary indexes ahead of a bulk load.
func (s *DuckDB) DropIndexes(ctx context.Context) error {
	for _, name := range []string{"idx_variants_site", "idx_variants_gene", "idx_variants_rsid"} {
		if _, err := s.db.ExecContext(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return &WriteError{Op: "drop index " + name, Err: err}
		}
	}
	return nil
}

// CreateIndexes rebuilds secondary indexes after a bulk load.
func (s *DuckDB) CreateIndexes(ctx context.Context) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_variants_site ON variants (chrom, pos)",
		"CREATE INDEX IF NOT EXISTS idx_variants_gene ON variants (gene_symbol)",
		"CREATE INDEX IF NOT EXISTS idx_variants_rsid ON variants (rs_id)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &WriteError{Op: "create index", Err: err}
		}
	}
	return nil
}

// CopyRecords appends a whole batch through the Appender API.
func (s *DuckDB) CopyRecords(ctx context.Context, recs []*record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, &WriteError{Op: "acquire connection", Err: err}
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "variants")
		return err
	}); err != nil {
		return 0, &WriteError{Op: "create appender", Err: err}
	}
	defer appender.Close()

	for _, r := range recs {
		row := recordRow(r)
		if err := appender.AppendRow(row...); err != nil {
			return 0, &WriteError{Op: "append variant row", Err: err}
		}
	}

	if err := appender.Flush(); err != nil {
		return 0, &WriteError{Op: "flush appender", Err: err}
	}
	return int64(len(recs)), nil
}

// InsertBatch writes a provenance row with status started.
func (s *DuckDB) InsertBatch(ctx context.Context, b *LoadBatch) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO load_batches
		(id, file_path, file_hash, file_size, genome, sample_count, status, variants_loaded, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.FilePath, b.FileHash, b.FileSize, b.Genome,
		b.SampleCount, b.Status, b.VariantsLoaded, b.StartedAt)
	if err != nil {
		return &WriteError{Op: "insert load batch", Err: err}
	}
	return nil
}

// CompleteBatch marks a provenance row completed with the final count.
func (s *DuckDB) CompleteBatch(ctx context.Context, id uuid.UUID, loaded int64) error {
	return s.finishBatch(ctx, id, StatusCompleted, loaded)
}

// FailBatch marks a provenance row failed, keeping the partial count.
func (s *DuckDB) FailBatch(ctx context.Context, id uuid.UUID) error {
	return s.finishBatch(ctx, id, StatusFailed, 0)
}

func (s *DuckDB) finishBatch(ctx context.Context, id uuid.UUID, status string, loaded int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE load_batches
		SET status = ?, variants_loaded = ?, completed_at = ?
		WHERE id = ?`,
		status, loaded, time.Now().UTC(), id.String())
	if err != nil {
		return &WriteError{Op: "update load batch", Err: err}
	}
	return nil
}

// FindCompletedByHash returns the most recent completed load with the same
// content hash, or nil when none exists.
func (s *DuckDB) FindCompletedByHash(ctx context.Context, hash string) (*LoadBatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, file_path, file_hash, file_size, genome, sample_count,
		status, variants_loaded, started_at, completed_at
		FROM load_batches
		WHERE file_hash = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1`,
		hash, StatusCompleted)

	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query load batch by hash: %w", err)
	}
	return b, nil
}

func scanBatch(row *sql.Row) (*LoadBatch, error) {
	var b LoadBatch
	var id string
	var completedAt sql.NullTime
	err := row.Scan(&id, &b.FilePath, &b.FileHash, &b.FileSize, &b.Genome,
		&b.SampleCount, &b.Status, &b.VariantsLoaded, &b.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	b.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse batch id: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}
