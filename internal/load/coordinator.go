// Package load drives full file-to-storage loads: content hashing,
// idempotent re-load detection, batch streaming with concurrent writers,
// index management, and provenance bookkeeping.
package load

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/variomics/varload/internal/pipeline"
	"github.com/variomics/varload/internal/record"
	"github.com/variomics/varload/internal/reference"
	"github.com/variomics/varload/internal/storage"
)

// Options configures a Coordinator.
type Options struct {
	// BatchSize is the record count per bulk-copy call.
	BatchSize int
	// Workers is how many batches may be in flight to storage at once.
	// The producer itself is always consumed sequentially. Zero means 1.
	Workers int
	// Normalize toggles variant canonicalization during extraction.
	Normalize bool
	// Reference supplies bases for left-alignment.
	Reference reference.Accessor
	// Genome is the declared reference genome label recorded in provenance.
	Genome string
	// Force reloads a file even when an identical-content load completed
	// before.
	Force bool
	// ManageIndexes drops secondary indexes before the first batch and
	// rebuilds them after the last, trading query speed during the load
	// for bulk-insert throughput.
	ManageIndexes bool
	Logger        *zap.Logger
}

// Result is the outcome of one load call.
type Result struct {
	BatchID        uuid.UUID
	FileHash       string
	VariantsLoaded int64
	// Skipped is true when an identical-content completed load already
	// existed and no insert was performed. BatchID then references the
	// prior load.
	Skipped bool
	// AllelesSkipped counts decomposed alleles dropped as malformed.
	AllelesSkipped int64
}

// Coordinator runs bulk loads against a Store.
type Coordinator struct {
	store storage.Store
	opts  Options
}

// NewCoordinator creates a coordinator. Zero-value options get defaults.
func NewCoordinator(store storage.Store, opts Options) *Coordinator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = pipeline.DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Coordinator{store: store, opts: opts}
}

// Load ingests one VCF file. It either returns a success or skip outcome
// with concrete counts, or an error carrying the file path and the count
// loaded before the failure. Storage errors are never swallowed: provenance
// is left non-completed so a retry is not mistaken for a finished load.
func (c *Coordinator) Load(ctx context.Context, path string) (*Result, error) {
	hash, size, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}

	if err := c.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	if !c.opts.Force {
		prior, err := c.store.FindCompletedByHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			c.opts.Logger.Info("identical content already loaded, skipping",
				zap.String("file", path),
				zap.String("hash", hash),
				zap.String("prior_batch", prior.ID.String()))
			return &Result{BatchID: prior.ID, FileHash: hash, Skipped: true}, nil
		}
	}

	producer, err := pipeline.NewProducer(path, pipeline.Options{
		BatchSize: c.opts.BatchSize,
		Normalize: c.opts.Normalize,
		Reference: c.opts.Reference,
		Logger:    c.opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	defer producer.Close()

	batch := &storage.LoadBatch{
		ID:          uuid.New(),
		FilePath:    path,
		FileHash:    hash,
		FileSize:    size,
		Genome:      c.opts.Genome,
		SampleCount: len(producer.SampleNames()),
		Status:      storage.StatusStarted,
		StartedAt:   time.Now().UTC(),
	}
	if err := c.store.InsertBatch(ctx, batch); err != nil {
		return nil, err
	}

	if c.opts.ManageIndexes {
		if err := c.store.DropIndexes(ctx); err != nil {
			c.failBatch(ctx, batch.ID)
			return nil, err
		}
	}

	loaded, loadErr := c.streamBatches(ctx, producer, batch.ID)

	if c.opts.ManageIndexes {
		// Rebuild even after a partial failure so the table stays usable.
		if err := c.store.CreateIndexes(ctx); err != nil && loadErr == nil {
			loadErr = err
		}
	}

	if loadErr != nil {
		c.failBatch(ctx, batch.ID)
		return nil, fmt.Errorf("load %s after %d records: %w", path, loaded, loadErr)
	}

	if err := c.store.CompleteBatch(ctx, batch.ID, loaded); err != nil {
		return nil, err
	}

	c.opts.Logger.Info("load completed",
		zap.String("file", path),
		zap.String("batch", batch.ID.String()),
		zap.Int64("variants_loaded", loaded),
		zap.Int64("alleles_skipped", producer.Skipped()))

	return &Result{
		BatchID:        batch.ID,
		FileHash:       hash,
		VariantsLoaded: loaded,
		AllelesSkipped: producer.Skipped(),
	}, nil
}

// streamBatches consumes the producer sequentially and fans batches out to
// the configured number of concurrent storage writers. Cross-batch ordering
// is not guaranteed; stored-variant identity is content-based, not
// order-based.
func (c *Coordinator) streamBatches(ctx context.Context, producer *pipeline.Producer, batchID uuid.UUID) (int64, error) {
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan []*record.Record, c.opts.Workers)
	errCh := make(chan error, c.opts.Workers)
	var loaded atomic.Int64

	var wg sync.WaitGroup
	wg.Add(c.opts.Workers)
	for range c.opts.Workers {
		go func() {
			defer wg.Done()
			for recs := range batches {
				n, err := c.store.CopyRecords(writeCtx, recs)
				loaded.Add(n)
				if err != nil {
					errCh <- err
					cancel()
					return
				}
			}
		}()
	}

	var produceErr error
	id := batchID.String()
produce:
	for {
		recs, err := producer.NextBatch()
		if err != nil {
			produceErr = err
			break
		}
		if recs == nil {
			break
		}
		for _, r := range recs {
			r.LoadBatchID = id
		}
		select {
		case batches <- recs:
		case <-writeCtx.Done():
			break produce
		}
	}
	close(batches)
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return loaded.Load(), err
	}
	if produceErr != nil {
		return loaded.Load(), produceErr
	}
	if err := ctx.Err(); err != nil {
		return loaded.Load(), err
	}
	return loaded.Load(), nil
}

// failBatch records the failed status. Best effort: the original error is
// what propagates.
func (c *Coordinator) failBatch(ctx context.Context, id uuid.UUID) {
	if err := c.store.FailBatch(ctx, id); err != nil {
		c.opts.Logger.Error("marking load batch failed", zap.Error(err))
	}
}

// hashFile computes the sha256 digest of the file bytes.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
