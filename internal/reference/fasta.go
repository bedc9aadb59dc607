package reference

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/variomics/varload/internal/vcf"
)

// FASTA loads a reference genome FASTA file into memory, indexed by
// canonical chromosome name. Suitable for single-chromosome or modest
// genomes; whole-genome use should point at the contigs actually loaded.
type FASTA struct {
	path      string
	sequences map[string]string
}

// NewFASTA creates a FASTA accessor for the given path. Call Load before use.
func NewFASTA(path string) *FASTA {
	return &FASTA{
		path:      path,
		sequences: make(map[string]string),
	}
}

// Load parses the FASTA file and stores sequences indexed by chromosome.
func (f *FASTA) Load() error {
	fh, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open FASTA file: %w", err)
	}
	defer fh.Close()

	var reader io.Reader = fh

	// Handle gzipped files
	if strings.HasSuffix(f.path, ".gz") {
		gz, err := gzip.NewReader(fh)
		if err != nil {
			return fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return f.parseFASTA(reader)
}

// parseFASTA parses FASTA content. Headers like ">chr20 AC:..." or ">20"
// both index the sequence under the canonical name "20".
func (f *FASTA) parseFASTA(reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	// Increase buffer size for long sequence lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024) // 10MB max line

	var currentChrom string
	var currentSeq strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, ">") {
			if currentChrom != "" && currentSeq.Len() > 0 {
				f.sequences[currentChrom] = currentSeq.String()
			}

			currentChrom = parseChromHeader(line)
			currentSeq.Reset()
		} else {
			currentSeq.WriteString(strings.ToUpper(strings.TrimSpace(line)))
		}
	}

	if currentChrom != "" && currentSeq.Len() > 0 {
		f.sequences[currentChrom] = currentSeq.String()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan FASTA: %w", err)
	}

	return nil
}

// parseChromHeader extracts the canonical chromosome name from a FASTA header.
func parseChromHeader(header string) string {
	header = strings.TrimPrefix(header, ">")
	if idx := strings.IndexAny(header, " \t"); idx != -1 {
		header = header[:idx]
	}
	return vcf.NormalizeChrom(header)
}

// Fetch returns bases for a 0-based half-open interval.
func (f *FASTA) Fetch(chrom string, start, end int64) (string, error) {
	seq, ok := f.sequences[vcf.NormalizeChrom(chrom)]
	if !ok {
		return "", fmt.Errorf("contig %s: %w", chrom, ErrUnavailable)
	}
	if start < 0 || end > int64(len(seq)) || start > end {
		return "", fmt.Errorf("%s:%d-%d: %w", chrom, start, end, ErrUnavailable)
	}
	return seq[start:end], nil
}

// ContigCount returns the number of loaded contigs.
func (f *FASTA) ContigCount() int {
	return len(f.sequences)
}

// HasContig checks whether a chromosome was loaded.
func (f *FASTA) HasContig(chrom string) bool {
	_, ok := f.sequences[vcf.NormalizeChrom(chrom)]
	return ok
}
