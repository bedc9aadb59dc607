// Package storage provides the relational store backends for canonical
// variant records and load-batch provenance. Both backends expose the same
// bulk columnar-copy contract: one high-throughput insert call per batch.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/variomics/varload/internal/record"
)

// Load batch status values.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// LoadBatch is the provenance row for one file-load attempt. It is written
// at load start, updated exactly once at completion or failure, and
// immutable thereafter.
type LoadBatch struct {
	ID             uuid.UUID
	FilePath       string
	FileHash       string // sha256 of the file bytes, hex encoded
	FileSize       int64
	Genome         string // declared reference genome, e.g. "GRCh38"
	SampleCount    int
	Status         string
	VariantsLoaded int64
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// Store is the storage contract the load coordinator drives. All DDL
// operations are idempotent. CopyRecords inserts a whole batch in one bulk
// operation and returns the row count written.
type Store interface {
	EnsureSchema(ctx context.Context) error
	DropIndexes(ctx context.Context) error
	CreateIndexes(ctx context.Context) error

	CopyRecords(ctx context.Context, recs []*record.Record) (int64, error)

	InsertBatch(ctx context.Context, b *LoadBatch) error
	CompleteBatch(ctx context.Context, id uuid.UUID, loaded int64) error
	FailBatch(ctx context.Context, id uuid.UUID) error
	// FindCompletedByHash returns the most recent completed load of the
	// same file bytes, or nil when none exists.
	FindCompletedByHash(ctx context.Context, hash string) (*LoadBatch, error)

	Close() error
}

// WriteError wraps a failed bulk-copy or DDL call. It always propagates;
// swallowing one would break idempotent-reload detection.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("storage write failed during %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// variantColumns is the column order of the variants table. CopyRecords
// implementations must emit tuples in exactly this order.
var variantColumns = []string{
	"chrom", "pos", "ref", "alt", "end_pos", "variant_type",
	"qual", "filter", "rs_id",
	"gene_symbol", "transcript", "consequence", "impact", "hgvsc", "hgvsp",
	"gnomad_af", "cadd_phred", "clin_sig",
	"info", "normalized", "symbolic",
	"orig_pos", "orig_ref", "orig_alt",
	"load_batch_id", "sample_id",
}

// recordRow flattens a Record into the variantColumns tuple shape.
func recordRow(r *record.Record) []any {
	var qual any
	if r.Qual != nil {
		qual = *r.Qual
	}
	var gnomad any
	if r.GnomadAF != nil {
		gnomad = *r.GnomadAF
	}
	var cadd any
	if r.CADDPhred != nil {
		cadd = *r.CADDPhred
	}

	return []any{
		r.Chrom, r.Pos, r.Ref, r.Alt, r.End, r.Type(),
		qual, strings.Join(r.Filter, ";"), nullable(r.RSID),
		nullable(r.GeneSymbol), nullable(r.Transcript), nullable(r.Consequence),
		nullable(r.Impact), nullable(r.HGVSc), nullable(r.HGVSp),
		gnomad, cadd, nullable(r.ClinSig),
		infoJSON(r.Info), r.Normalized, r.Symbolic,
		r.OrigPos, r.OrigRef, r.OrigAlt,
		r.LoadBatchID, nullable(r.SampleID),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// infoJSON serializes the retained INFO map. Unserializable values are
// dropped rather than failing the batch.
func infoJSON(info map[string]interface{}) any {
	if len(info) == 0 {
		return nil
	}
	b, err := json.Marshal(info)
	if err != nil {
		return nil
	}
	return string(b)
}
