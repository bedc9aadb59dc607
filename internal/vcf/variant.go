// Package vcf provides streaming VCF file parsing and header modeling.
package vcf

import "strings"

// Variant represents a single raw VCF data line before normalization.
// Alts holds every alternate allele of the site; multi-allelic
// decomposition happens downstream, per allele.
type Variant struct {
	Chrom   string                 // Chromosome name as spelled in the file (e.g., "12", "chr12")
	Pos     int64                  // 1-based genomic position
	ID      string                 // Variant identifier (e.g., rs ID), "" when "."
	Ref     string                 // Reference allele
	Alts    []string               // Alternate alleles
	Qual    float64                // Quality score, 0 when missing
	HasQual bool                   // Whether QUAL was present (not ".")
	Filter  []string               // Filter names, empty for "."
	Info    map[string]interface{} // INFO field key-value pairs
	Samples []string               // FORMAT + per-sample columns, raw
}

// IsSNV returns true if the variant is a biallelic single nucleotide variant.
func (v *Variant) IsSNV() bool {
	return len(v.Alts) == 1 && len(v.Ref) == 1 && len(v.Alts[0]) == 1
}

// IsMultiAllelic returns true if the site carries more than one alternate allele.
func (v *Variant) IsMultiAllelic() bool {
	return len(v.Alts) > 1
}

// InfoString returns the INFO value for key as a string, or "" when the key
// is absent or a flag.
func (v *Variant) InfoString(key string) string {
	val, ok := v.Info[key]
	if !ok {
		return ""
	}
	s, ok := val.(string)
	if !ok {
		return ""
	}
	return s
}

// NormalizeChrom returns the canonical chromosome name: the "chr" prefix is
// stripped and the mitochondrial contig is spelled "MT". Downstream joins
// against GWAS/PRS datasets rely on this single spelling.
func NormalizeChrom(chrom string) string {
	if len(chrom) > 3 && strings.EqualFold(chrom[:3], "chr") {
		chrom = chrom[3:]
	}
	if chrom == "M" || chrom == "m" {
		return "MT"
	}
	return chrom
}
