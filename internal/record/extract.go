package record

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/variomics/varload/internal/normalize"
	"github.com/variomics/varload/internal/reference"
	"github.com/variomics/varload/internal/vcf"
)

// Skip records why one decomposed allele produced no Record. A skip is
// scoped to the single allele; sibling alleles and the rest of the file
// continue.
type Skip struct {
	AltIndex int
	Allele   string
	Reason   error
}

// Extractor converts raw VCF entries into canonical records using the
// file's header model and a reference accessor for left-alignment.
type Extractor struct {
	header    *vcf.Header
	acc       reference.Accessor
	normalize bool
	logger    *zap.Logger
}

// NewExtractor creates an extractor for one file's header context. A nil
// accessor behaves as an empty reference: left-rolls degrade instead of
// panicking.
func NewExtractor(header *vcf.Header, acc reference.Accessor) *Extractor {
	if acc == nil {
		acc = reference.NewMemory(nil)
	}
	return &Extractor{
		header:    header,
		acc:       acc,
		normalize: true,
		logger:    zap.NewNop(),
	}
}

// SetNormalize configures whether (pos, ref, alt) canonicalization runs.
func (e *Extractor) SetNormalize(on bool) {
	e.normalize = on
}

// SetLogger sets the logger for degraded-normalization warnings.
func (e *Extractor) SetLogger(l *zap.Logger) {
	e.logger = l
}

// Extract produces one Record per alternate allele of the entry. Malformed
// alleles are reported as Skips rather than errors; missing-allele markers
// ("." and "*") are dropped silently.
func (e *Extractor) Extract(v *vcf.Variant) ([]*Record, []Skip) {
	var records []*Record
	var skips []Skip

	chrom := vcf.NormalizeChrom(v.Chrom)
	csq := e.parseCSQ(v)

	for i, alt := range v.Alts {
		if alt == "." || alt == "*" {
			continue
		}

		rec := &Record{
			Chrom:   chrom,
			Pos:     v.Pos,
			Ref:     v.Ref,
			Alt:     alt,
			RSID:    v.ID,
			Filter:  v.Filter,
			Info:    v.Info,
			OrigPos: v.Pos,
			OrigRef: v.Ref,
			OrigAlt: alt,
		}
		if v.HasQual {
			q := v.Qual
			rec.Qual = &q
		}

		if e.normalize {
			res, err := normalize.Allele(chrom, v.Pos, v.Ref, alt, e.acc)
			if err != nil {
				skips = append(skips, Skip{AltIndex: i, Allele: alt, Reason: err})
				e.logger.Warn("skipping malformed allele",
					zap.String("chrom", v.Chrom),
					zap.Int64("pos", v.Pos),
					zap.String("alt", alt),
					zap.Error(err))
				continue
			}
			rec.Pos = res.Pos
			rec.Ref = res.Ref
			rec.Alt = res.Alt
			rec.Normalized = res.Changed
			rec.Degraded = res.Degraded
			rec.Symbolic = res.Symbolic
			if res.Degraded {
				e.logger.Warn("left-alignment stopped early, reference unavailable",
					zap.String("chrom", chrom),
					zap.Int64("pos", res.Pos),
					zap.String("ref", res.Ref),
					zap.String("alt", res.Alt))
			}
		} else if normalize.IsSymbolic(alt) {
			rec.Symbolic = true
		}

		rec.End = rec.Pos + int64(len(rec.Ref)) - 1

		if ann := pickAnnotation(csq, v.Ref, alt, e.header.CSQFields); ann != nil {
			e.applyAnnotation(rec, ann)
		}

		records = append(records, rec)
	}

	return records, skips
}

// parseCSQ splits the compound annotation INFO value into per-transcript
// sub-records. Returns nil when the file declares no CSQ layout or the
// entry carries none.
func (e *Extractor) parseCSQ(v *vcf.Variant) [][]string {
	if len(e.header.CSQFields) == 0 {
		return nil
	}
	raw := v.InfoString(e.header.CSQKey)
	if raw == "" {
		return nil
	}

	entries := strings.Split(raw, ",")
	subs := make([][]string, 0, len(entries))
	for _, entry := range entries {
		subs = append(subs, strings.Split(entry, "|"))
	}
	return subs
}

// pickAnnotation selects the sub-record for the given ALT with the most
// severe impact. Ties keep the first occurrence in file order: the scan
// only replaces on a strictly greater rank.
func pickAnnotation(subs [][]string, ref, alt string, fields []string) map[string]string {
	if len(subs) == 0 {
		return nil
	}

	alleleIdx := indexOf(fields, "Allele")
	impactIdx := indexOf(fields, "IMPACT")

	var best map[string]string
	bestRank := -1

	for _, sub := range subs {
		if alleleIdx >= 0 && alleleIdx < len(sub) &&
			!csqAlleleMatches(sub[alleleIdx], ref, alt) {
			continue
		}

		rank := 0
		if impactIdx >= 0 && impactIdx < len(sub) {
			rank = ImpactRank(sub[impactIdx])
		}
		if rank > bestRank {
			bestRank = rank
			best = zipFields(fields, sub)
		}
	}

	return best
}

// csqAlleleMatches compares a CSQ Allele value against the VCF ALT. VEP
// writes indel alleles in trimmed form: the shared leading base is dropped
// and a pure deletion becomes "-".
func csqAlleleMatches(csqAllele, ref, alt string) bool {
	if csqAllele == alt {
		return true
	}
	if len(ref) > 0 && len(alt) > 0 && ref[0] == alt[0] {
		trimmed := alt[1:]
		if trimmed == "" {
			trimmed = "-"
		}
		return csqAllele == trimmed
	}
	return false
}

// applyAnnotation copies annotation sub-fields onto the record. Numeric
// fields parse defensively: junk yields nil, never an error.
func (e *Extractor) applyAnnotation(rec *Record, ann map[string]string) {
	rec.GeneSymbol = ann["SYMBOL"]
	rec.Transcript = ann["Feature"]
	rec.Consequence = ann["Consequence"]
	rec.Impact = ann["IMPACT"]
	rec.HGVSc = ann["HGVSc"]
	rec.HGVSp = ann["HGVSp"]
	rec.ClinSig = ann["CLIN_SIG"]

	for _, key := range []string{"gnomAD_AF", "gnomADe_AF", "AF"} {
		if f := parseFloat(ann[key]); f != nil {
			rec.GnomadAF = f
			break
		}
	}
	rec.CADDPhred = parseFloat(ann["CADD_PHRED"])
}

// parseFloat parses an annotation number, returning nil for missing or
// non-numeric values.
func parseFloat(s string) *float64 {
	if s == "" || s == "." || s == "-" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func indexOf(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}

func zipFields(fields, values []string) map[string]string {
	m := make(map[string]string, len(fields))
	for i, f := range fields {
		if i < len(values) {
			m[f] = values[i]
		}
	}
	return m
}
