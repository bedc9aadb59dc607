package load

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variomics/varload/internal/record"
	"github.com/variomics/varload/internal/reference"
	"github.com/variomics/varload/internal/storage"
)

// memStore is an in-memory storage.Store for coordinator tests.
type memStore struct {
	mu       sync.Mutex
	records  []*record.Record
	batches  map[uuid.UUID]*storage.LoadBatch
	copyErr  error
	failCopy int // fail the nth CopyRecords call (1-based), 0 = never
	copies   int
	dropped  int
	created  int
}

func newMemStore() *memStore {
	return &memStore{batches: make(map[uuid.UUID]*storage.LoadBatch)}
}

func (m *memStore) EnsureSchema(ctx context.Context) error { return nil }

func (m *memStore) DropIndexes(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
	return nil
}

func (m *memStore) CreateIndexes(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	return nil
}

func (m *memStore) CopyRecords(ctx context.Context, recs []*record.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copies++
	if m.failCopy > 0 && m.copies == m.failCopy {
		return 0, &storage.WriteError{Op: "copy variants", Err: errors.New("boom")}
	}
	if m.copyErr != nil {
		return 0, m.copyErr
	}
	m.records = append(m.records, recs...)
	return int64(len(recs)), nil
}

func (m *memStore) InsertBatch(ctx context.Context, b *storage.LoadBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *memStore) CompleteBatch(ctx context.Context, id uuid.UUID, loaded int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.batches[id]
	b.Status = storage.StatusCompleted
	b.VariantsLoaded = loaded
	return nil
}

func (m *memStore) FailBatch(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[id].Status = storage.StatusFailed
	return nil
}

func (m *memStore) FindCompletedByHash(ctx context.Context, hash string) (*storage.LoadBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.FileHash == hash && b.Status == storage.StatusCompleted {
			return b, nil
		}
	}
	return nil, nil
}

func (m *memStore) Close() error { return nil }

const testHeader = `##fileformat=VCFv4.2
##INFO=<ID=DP,Number=1,Type=Integer,Description="Total Depth">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	S1	S2
`

func writeVCF(t *testing.T, lines int) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString(testHeader)
	for i := 1; i <= lines; i++ {
		fmt.Fprintf(&sb, "1\t%d\t.\tA\tG\t50\tPASS\tDP=10\tGT\t0/1\t0/0\n", i*100)
	}
	path := filepath.Join(t.TempDir(), "test.vcf")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path
}

func newTestCoordinator(store storage.Store, opts Options) *Coordinator {
	if opts.Reference == nil {
		opts.Reference = reference.NewMemory(nil)
	}
	return NewCoordinator(store, opts)
}

func TestLoad_Normal(t *testing.T) {
	store := newMemStore()
	path := writeVCF(t, 25)

	c := newTestCoordinator(store, Options{BatchSize: 10, Normalize: true, ManageIndexes: true})
	res, err := c.Load(context.Background(), path)
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Equal(t, int64(25), res.VariantsLoaded)
	assert.Len(t, store.records, 25)
	assert.Equal(t, 3, store.copies, "25 records at batch size 10 = 3 copies")
	assert.Equal(t, 1, store.dropped)
	assert.Equal(t, 1, store.created)

	b := store.batches[res.BatchID]
	require.NotNil(t, b)
	assert.Equal(t, 2, b.SampleCount)
	assert.NotEmpty(t, res.FileHash)

	// Every record carries the batch identity.
	for _, r := range store.records {
		assert.Equal(t, res.BatchID.String(), r.LoadBatchID)
	}
	// Completion is recorded on the provenance row.
	assert.Equal(t, storage.StatusCompleted, b.Status)
	assert.Equal(t, int64(25), b.VariantsLoaded)
}

func TestLoad_IdempotentSkip(t *testing.T) {
	store := newMemStore()
	path := writeVCF(t, 5)

	c := newTestCoordinator(store, Options{BatchSize: 10})
	first, err := c.Load(context.Background(), path)
	require.NoError(t, err)
	require.False(t, first.Skipped)

	second, err := c.Load(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.BatchID, second.BatchID, "skip references the prior batch")
	assert.Equal(t, int64(0), second.VariantsLoaded)
	assert.Len(t, store.records, 5, "no records inserted on skip")
}

func TestLoad_ForceReload(t *testing.T) {
	store := newMemStore()
	path := writeVCF(t, 5)

	c := newTestCoordinator(store, Options{BatchSize: 10})
	_, err := c.Load(context.Background(), path)
	require.NoError(t, err)

	forced := newTestCoordinator(store, Options{BatchSize: 10, Force: true})
	res, err := forced.Load(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(5), res.VariantsLoaded)
	assert.Len(t, store.records, 10)
}

func TestLoad_EmptyBodyCompletesWithZero(t *testing.T) {
	store := newMemStore()
	path := writeVCF(t, 0)

	c := newTestCoordinator(store, Options{BatchSize: 10})
	res, err := c.Load(context.Background(), path)
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Equal(t, int64(0), res.VariantsLoaded)
	assert.Equal(t, 0, store.copies, "zero batches for an empty body")
	assert.Equal(t, storage.StatusCompleted, store.batches[res.BatchID].Status)
}

func TestLoad_PartialFailureLeavesFailedProvenance(t *testing.T) {
	store := newMemStore()
	store.failCopy = 2
	path := writeVCF(t, 25)

	c := newTestCoordinator(store, Options{BatchSize: 10})
	_, err := c.Load(context.Background(), path)
	require.Error(t, err)

	var we *storage.WriteError
	assert.True(t, errors.As(err, &we), "storage error must propagate, got %v", err)
	assert.Contains(t, err.Error(), path)

	// Exactly one batch remains in the provenance table, never completed.
	var statuses []string
	for _, b := range store.batches {
		statuses = append(statuses, b.Status)
	}
	require.Len(t, statuses, 1)
	assert.Equal(t, storage.StatusFailed, statuses[0])

	// A retry is not mistaken for a completed load.
	prior, err2 := store.FindCompletedByHash(context.Background(), "")
	require.NoError(t, err2)
	assert.Nil(t, prior)
}

func TestLoad_ConcurrentWriters(t *testing.T) {
	store := newMemStore()
	path := writeVCF(t, 100)

	c := newTestCoordinator(store, Options{BatchSize: 7, Workers: 4})
	res, err := c.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, int64(100), res.VariantsLoaded)
	assert.Len(t, store.records, 100)

	// Cross-batch order is not guaranteed; content is. Every input
	// position must be present exactly once.
	seen := make(map[int64]int)
	for _, r := range store.records {
		seen[r.Pos]++
	}
	assert.Len(t, seen, 100)
	for pos, n := range seen {
		assert.Equal(t, 1, n, "pos %d inserted %d times", pos, n)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(store, Options{})
	_, err := c.Load(context.Background(), filepath.Join(t.TempDir(), "nope.vcf"))
	require.Error(t, err)
	assert.Empty(t, store.batches, "no provenance row for an unreadable file")
}
