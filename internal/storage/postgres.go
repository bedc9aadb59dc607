package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/variomics/varload/internal/record"
)

// Postgres is the server store backend. Bulk copies use the COPY protocol
// via pgx CopyFrom; each CopyRecords call acquires its own pooled
// connection for the duration of the copy and releases it immediately, so
// concurrent batch writers never share or hold connections across batches.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool to the given DSN.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// EnsureSchema creates tables if they don't exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS variants (
			chrom TEXT NOT NULL,
			pos BIGINT NOT NULL,
			ref TEXT NOT NULL,
			alt TEXT NOT NULL,
			end_pos BIGINT,
			variant_type TEXT,
			qual DOUBLE PRECISION,
			filter TEXT,
			rs_id TEXT,
			gene_symbol TEXT,
			transcript TEXT,
			consequence TEXT,
			impact TEXT,
			hgvsc TEXT,
			hgvsp TEXT,
			gnomad_af DOUBLE PRECISION,
			cadd_phred DOUBLE PRECISION,
			clin_sig TEXT,
			info JSONB,
			normalized BOOLEAN,
			symbolic BOOLEAN,
			orig_pos BIGINT,
			orig_ref TEXT,
			orig_alt TEXT,
			load_batch_id UUID,
			sample_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS load_batches (
			id UUID PRIMARY KEY,
			file_path TEXT NOT NULL,
			file_hash TEXT NOT NULL,
			file_size BIGINT,
			genome TEXT,
			sample_count INTEGER,
			status TEXT NOT NULL,
			variants_loaded BIGINT,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_load_batches_hash ON load_batches (file_hash)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &WriteError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}

// DropIndexes removes secondary indexes ahead of a bulk load.
func (s *Postgres) DropIndexes(ctx context.Context) error {
	for _, name := range []string{"idx_variants_site", "idx_variants_gene", "idx_variants_rsid"} {
		if _, err := s.pool.Exec(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return &WriteError{Op: "drop index " + name, Err: err}
		}
	}
	return nil
}

// CreateIndexes rebuilds secondary indexes after a bulk load.
func (s *Postgres) CreateIndexes(ctx context.Context) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_variants_site ON variants (chrom, pos)",
		"CREATE INDEX IF NOT EXISTS idx_variants_gene ON variants (gene_symbol)",
		"CREATE INDEX IF NOT EXISTS idx_variants_rsid ON variants (rs_id)",
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &WriteError{Op: "create index", Err: err}
		}
	}
	return nil
}

// CopyRecords streams a whole batch through the COPY protocol in one call.
func (s *Postgres) CopyRecords(ctx context.Context, recs []*record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = recordRow(r)
	}

	copied, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"variants"},
		variantColumns,
		pgx.CopyFromRows(rows))
	if err != nil {
		return copied, &WriteError{Op: "copy variants", Err: err}
	}
	return copied, nil
}

// InsertBatch writes a provenance row with status started.
func (s *Postgres) InsertBatch(ctx context.Context, b *LoadBatch) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO load_batches
		(id, file_path, file_hash, file_size, genome, sample_count, status, variants_loaded, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.FilePath, b.FileHash, b.FileSize, b.Genome,
		b.SampleCount, b.Status, b.VariantsLoaded, b.StartedAt)
	if err != nil {
		return &WriteError{Op: "insert load batch", Err: err}
	}
	return nil
}

// CompleteBatch marks a provenance row completed with the final count.
func (s *Postgres) CompleteBatch(ctx context.Context, id uuid.UUID, loaded int64) error {
	return s.finishBatch(ctx, id, StatusCompleted, loaded)
}

// FailBatch marks a provenance row failed.
func (s *Postgres) FailBatch(ctx context.Context, id uuid.UUID) error {
	return s.finishBatch(ctx, id, StatusFailed, 0)
}

func (s *Postgres) finishBatch(ctx context.Context, id uuid.UUID, status string, loaded int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE load_batches
		SET status = $1, variants_loaded = $2, completed_at = $3
		WHERE id = $4`,
		status, loaded, time.Now().UTC(), id)
	if err != nil {
		return &WriteError{Op: "update load batch", Err: err}
	}
	return nil
}

// FindCompletedByHash returns the most recent completed load with the same
// content hash, or nil when none exists.
func (s *Postgres) FindCompletedByHash(ctx context.Context, hash string) (*LoadBatch, error) {
	row := s.pool.QueryRow(ctx, `SELECT
		id, file_path, file_hash, file_size, genome, sample_count,
		status, variants_loaded, started_at, completed_at
		FROM load_batches
		WHERE file_hash = $1 AND status = $2
		ORDER BY started_at DESC LIMIT 1`,
		hash, StatusCompleted)

	var b LoadBatch
	var completedAt *time.Time
	err := row.Scan(&b.ID, &b.FilePath, &b.FileHash, &b.FileSize, &b.Genome,
		&b.SampleCount, &b.Status, &b.VariantsLoaded, &b.StartedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query load batch by hash: %w", err)
	}
	b.CompletedAt = completedAt
	return &b, nil
}
