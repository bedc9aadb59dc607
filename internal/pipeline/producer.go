// Package pipeline turns a VCF file into fixed-size batches of canonical
// records, streaming the file without buffering it whole.
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/variomics/varload/internal/record"
	"github.com/variomics/varload/internal/reference"
	"github.com/variomics/varload/internal/vcf"
)

// DefaultBatchSize is the record count per batch when none is configured.
const DefaultBatchSize = 10000

// Options configures a Producer.
type Options struct {
	// BatchSize is the maximum output-record count per batch. Batch size
	// counts records after multi-allelic decomposition, not input lines.
	BatchSize int
	// Normalize toggles (pos, ref, alt) canonicalization.
	Normalize bool
	// Reference supplies bases for left-alignment. Required when
	// Normalize is set and the file contains indels; lookups that fail
	// degrade per-record instead of failing the file.
	Reference reference.Accessor
	Logger    *zap.Logger
}

// Producer reads a VCF file and yields batches of canonical records.
// A Producer is single-pass: it is consumed by one sequential reader and
// cannot be restarted without reopening the file.
type Producer struct {
	parser    *vcf.Parser
	extractor *record.Extractor
	batchSize int
	logger    *zap.Logger

	// pending carries decomposition overflow into the next batch so a
	// multi-allelic line near the cap never oversizes a batch.
	pending []*record.Record

	produced int64
	skipped  int64
	lines    int64
	done     bool
}

// NewProducer opens the file (plain or gzip), parses the header once, and
// prepares batch iteration. The caller must Close the producer on every
// exit path.
func NewProducer(path string, opts Options) (*Producer, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	parser, err := vcf.NewParser(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	ex := record.NewExtractor(parser.Header(), opts.Reference)
	ex.SetNormalize(opts.Normalize)
	ex.SetLogger(opts.Logger)

	return &Producer{
		parser:    parser,
		extractor: ex,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
	}, nil
}

// SampleNames returns the sample identifiers declared on the #CHROM line.
func (p *Producer) SampleNames() []string {
	return p.parser.SampleNames()
}

// Header returns the parsed header model.
func (p *Producer) Header() *vcf.Header {
	return p.parser.Header()
}

// NextBatch returns the next batch of records, blocking on file I/O and
// normalization. Returns nil, nil after the final batch. A file with no
// data lines yields zero batches. Lines that fail to parse are skipped
// with a warning; only I/O errors abort iteration.
func (p *Producer) NextBatch() ([]*record.Record, error) {
	for len(p.pending) < p.batchSize && !p.done {
		v, err := p.parser.Next()
		if err != nil {
			if _, ok := err.(*vcf.ParseError); ok {
				p.skipped++
				p.logger.Warn("skipping unparseable line", zap.Error(err))
				continue
			}
			return nil, err
		}
		if v == nil {
			p.done = true
			break
		}
		p.lines++

		recs, skips := p.extractor.Extract(v)
		p.skipped += int64(len(skips))
		p.pending = append(p.pending, recs...)
	}

	if len(p.pending) == 0 {
		return nil, nil
	}

	n := p.batchSize
	if n > len(p.pending) {
		n = len(p.pending)
	}
	batch := p.pending[:n:n]
	p.pending = p.pending[n:]
	p.produced += int64(len(batch))
	return batch, nil
}

// Produced returns the total record count yielded so far.
func (p *Producer) Produced() int64 {
	return p.produced
}

// Skipped returns the count of alleles and lines dropped as malformed.
func (p *Producer) Skipped() int64 {
	return p.skipped
}

// Lines returns the count of data lines consumed.
func (p *Producer) Lines() int64 {
	return p.lines
}

// Close releases the underlying file handle. Safe to call multiple times.
func (p *Producer) Close() error {
	return p.parser.Close()
}
