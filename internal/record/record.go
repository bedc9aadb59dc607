// Package record defines the canonical variant record and the extractor
// that produces records from raw VCF entries.
package record

// Impact severity tiers for variant consequences.
const (
	ImpactHigh     = "HIGH"
	ImpactModerate = "MODERATE"
	ImpactLow      = "LOW"
	ImpactModifier = "MODIFIER"
)

// ImpactRank returns numeric rank for impact comparison (higher = more severe).
func ImpactRank(impact string) int {
	switch impact {
	case ImpactHigh:
		return 3
	case ImpactModerate:
		return 2
	case ImpactLow:
		return 1
	default:
		return 0
	}
}

// Variant type labels derived from allele lengths.
const (
	TypeSNP   = "snp"
	TypeIndel = "indel"
	TypeMNP   = "mnp"
)

// Record is one canonical, biallelic variant ready for storage.
// Multi-allelic sites decompose into one Record per alternate allele.
type Record struct {
	Chrom string // canonical chromosome name (no "chr" prefix, MT for chrM)
	Pos   int64  // 1-based position of the first base of Ref, post-normalization
	Ref   string
	Alt   string
	End   int64 // derived genomic end position: Pos + len(Ref) - 1

	Qual   *float64
	Filter []string
	RSID   string

	// Annotation fields from the most severe matching CSQ sub-record.
	GeneSymbol  string
	Transcript  string
	Consequence string
	Impact      string
	HGVSc       string
	HGVSp       string

	// Population frequency and pathogenicity, nil/empty when absent or
	// unparseable.
	GnomadAF  *float64
	CADDPhred *float64
	ClinSig   string

	// Info retains INFO keys not individually extracted.
	Info map[string]interface{}

	// Normalized is true when normalization altered the representation.
	Normalized bool
	// Degraded is true when left-alignment stopped early because the
	// reference was unavailable.
	Degraded bool
	// Symbolic marks structural/breakend alleles passed through unchanged.
	Symbolic bool

	// Provenance: the representation as spelled in the source file.
	OrigPos int64
	OrigRef string
	OrigAlt string

	LoadBatchID string
	SampleID    string
}

// Type returns the derived variant type: snp for 1/1, indel when allele
// lengths differ, mnp otherwise.
func (r *Record) Type() string {
	switch {
	case len(r.Ref) == 1 && len(r.Alt) == 1:
		return TypeSNP
	case len(r.Ref) != len(r.Alt):
		return TypeIndel
	default:
		return TypeMNP
	}
}
