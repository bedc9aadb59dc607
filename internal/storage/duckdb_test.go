package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variomics/varload/internal/record"
)

func openInMemory(t *testing.T) *DuckDB {
	t.Helper()
	s, err := OpenDuckDB("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func testRecord(chrom string, pos int64, ref, alt string) *record.Record {
	qual := 99.5
	af := 0.01
	return &record.Record{
		Chrom: chrom, Pos: pos, Ref: ref, Alt: alt,
		End:         pos + int64(len(ref)) - 1,
		Qual:        &qual,
		Filter:      []string{"PASS"},
		RSID:        "rs123",
		GeneSymbol:  "KRAS",
		Consequence: "missense_variant",
		Impact:      record.ImpactModerate,
		GnomadAF:    &af,
		Info:        map[string]interface{}{"DP": "100"},
		Normalized:  true,
		OrigPos:     pos,
		OrigRef:     ref,
		OrigAlt:     alt,
		LoadBatchID: uuid.NewString(),
	}
}

func TestDuckDB_CopyRecords(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	recs := []*record.Record{
		testRecord("12", 25245351, "C", "A"),
		testRecord("7", 55249071, "G", "T"),
	}

	n, err := s.CopyRecords(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var count int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM variants").Scan(&count))
	assert.Equal(t, 2, count)

	var gene, vtype string
	require.NoError(t, s.DB().QueryRow(
		"SELECT gene_symbol, variant_type FROM variants WHERE chrom = '12'").
		Scan(&gene, &vtype))
	assert.Equal(t, "KRAS", gene)
	assert.Equal(t, "snp", vtype)
}

func TestDuckDB_CopyRecordsEmpty(t *testing.T) {
	s := openInMemory(t)
	n, err := s.CopyRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDuckDB_NullableColumns(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	r := &record.Record{
		Chrom: "1", Pos: 100, Ref: "A", Alt: "T", End: 100,
		OrigPos: 100, OrigRef: "A", OrigAlt: "T",
		LoadBatchID: uuid.NewString(),
	}
	_, err := s.CopyRecords(ctx, []*record.Record{r})
	require.NoError(t, err)

	var nullQuals int
	require.NoError(t, s.DB().QueryRow(
		"SELECT COUNT(*) FROM variants WHERE qual IS NULL AND gene_symbol IS NULL AND gnomad_af IS NULL").
		Scan(&nullQuals))
	assert.Equal(t, 1, nullQuals)
}

func TestDuckDB_IndexLifecycle(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	// All DDL is idempotent: repeated drops and creates must not error.
	require.NoError(t, s.DropIndexes(ctx))
	require.NoError(t, s.CreateIndexes(ctx))
	require.NoError(t, s.CreateIndexes(ctx))
	require.NoError(t, s.DropIndexes(ctx))
	require.NoError(t, s.DropIndexes(ctx))
}

func TestDuckDB_BatchProvenanceLifecycle(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	b := &LoadBatch{
		ID:          uuid.New(),
		FilePath:    "/data/sample.vcf.gz",
		FileHash:    "deadbeef",
		FileSize:    1024,
		Genome:      "GRCh38",
		SampleCount: 2,
		Status:      StatusStarted,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.InsertBatch(ctx, b))

	// In-progress loads are not idempotent-skip candidates.
	found, err := s.FindCompletedByHash(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, s.CompleteBatch(ctx, b.ID, 12345))

	found, err = s.FindCompletedByHash(ctx, "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, b.ID, found.ID)
	assert.Equal(t, StatusCompleted, found.Status)
	assert.Equal(t, int64(12345), found.VariantsLoaded)
	assert.NotNil(t, found.CompletedAt)

	found, err = s.FindCompletedByHash(ctx, "0000")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestDuckDB_FailedBatchNotFound(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	b := &LoadBatch{
		ID:        uuid.New(),
		FilePath:  "/data/x.vcf",
		FileHash:  "cafe",
		Status:    StatusStarted,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, s.InsertBatch(ctx, b))
	require.NoError(t, s.FailBatch(ctx, b.ID))

	found, err := s.FindCompletedByHash(ctx, "cafe")
	require.NoError(t, err)
	assert.Nil(t, found, "failed loads must not satisfy idempotent-skip")
}
