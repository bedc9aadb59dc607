package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variomics/varload/internal/reference"
)

const testHeader = `##fileformat=VCFv4.2
##INFO=<ID=DP,Number=1,Type=Integer,Description="Total Depth">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	S1
`

func writeVCF(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(testHeader+body), 0644))
	return path
}

func dataLine(chrom string, pos int, ref, alt string) string {
	return fmt.Sprintf("%s\t%d\t.\t%s\t%s\t50\tPASS\tDP=10\tGT\t0/1\n", chrom, pos, ref, alt)
}

func newTestProducer(t *testing.T, path string, batchSize int) *Producer {
	t.Helper()
	p, err := NewProducer(path, Options{
		BatchSize: batchSize,
		Normalize: true,
		Reference: reference.NewMemory(nil),
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestProducer_Batching(t *testing.T) {
	var body strings.Builder
	for i := 1; i <= 7; i++ {
		body.WriteString(dataLine("1", 100*i, "A", "G"))
	}
	path := writeVCF(t, "seven.vcf", body.String())

	p := newTestProducer(t, path, 3)

	var sizes []int
	for {
		batch, err := p.NextBatch()
		require.NoError(t, err)
		if batch == nil {
			break
		}
		sizes = append(sizes, len(batch))
	}

	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Equal(t, int64(7), p.Produced())
	assert.Equal(t, int64(7), p.Lines())
	assert.Equal(t, int64(0), p.Skipped())
}

func TestProducer_MultiAllelicCountsOutputRecords(t *testing.T) {
	// Two lines, three output records: batch size counts records, not
	// lines, and decomposition overflow carries into the next batch.
	body := dataLine("7", 55249071, "G", "A,T") + dataLine("1", 200, "C", "G")
	path := writeVCF(t, "multi.vcf", body)

	p := newTestProducer(t, path, 2)

	first, err := p.NextBatch()
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "A", first[0].Alt)
	assert.Equal(t, "T", first[1].Alt)

	second, err := p.NextBatch()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "G", second[0].Alt)

	third, err := p.NextBatch()
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestProducer_EmptyBodyYieldsZeroBatches(t *testing.T) {
	path := writeVCF(t, "empty.vcf", "")

	p := newTestProducer(t, path, 100)

	batch, err := p.NextBatch()
	require.NoError(t, err)
	assert.Nil(t, batch, "empty-body file must yield zero batches, not one empty batch")
	assert.Equal(t, int64(0), p.Produced())
}

func TestProducer_MalformedAlleleSkipped(t *testing.T) {
	body := dataLine("1", 100, "A", "XYZ9") + dataLine("1", 200, "A", "G")
	path := writeVCF(t, "bad.vcf", body)

	p := newTestProducer(t, path, 10)

	batch, err := p.NextBatch()
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(1), p.Skipped())
	assert.Equal(t, int64(2), p.Lines())
}

func TestProducer_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.vcf.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(testHeader + dataLine("1", 100, "A", "G")))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	p := newTestProducer(t, path, 10)

	batch, err := p.NextBatch()
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "1", batch[0].Chrom)
}

func TestProducer_SampleNames(t *testing.T) {
	path := writeVCF(t, "s.vcf", "")
	p := newTestProducer(t, path, 10)
	assert.Equal(t, []string{"S1"}, p.SampleNames())
}

func TestProducer_CloseIdempotent(t *testing.T) {
	path := writeVCF(t, "c.vcf", "")
	p := newTestProducer(t, path, 10)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
