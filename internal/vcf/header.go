package vcf

import (
	"fmt"
	"strconv"
	"strings"
)

// NumberKind classifies a VCF Number specification.
type NumberKind int

const (
	// NumberFixed is a literal integer count.
	NumberFixed NumberKind = iota
	// NumberPerAlt is "A": one value per alternate allele.
	NumberPerAlt
	// NumberPerAllele is "R": one value per allele, reference included.
	NumberPerAllele
	// NumberPerGenotype is "G": one value per possible genotype.
	NumberPerGenotype
	// NumberVariable is ".": unknown cardinality, length not validated.
	NumberVariable
)

// VariableSize is the sentinel returned by ArraySize for "." fields.
const VariableSize = -1

// NumberSpec is a parsed VCF Number code.
type NumberSpec struct {
	Kind  NumberKind
	Fixed int // valid only when Kind == NumberFixed
}

// ParseNumberSpec parses the Number attribute of an INFO/FORMAT definition.
func ParseNumberSpec(s string) (NumberSpec, error) {
	switch s {
	case "A":
		return NumberSpec{Kind: NumberPerAlt}, nil
	case "R":
		return NumberSpec{Kind: NumberPerAllele}, nil
	case "G":
		return NumberSpec{Kind: NumberPerGenotype}, nil
	case ".":
		return NumberSpec{Kind: NumberVariable}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return NumberSpec{}, fmt.Errorf("invalid Number specification %q", s)
	}
	return NumberSpec{Kind: NumberFixed, Fixed: n}, nil
}

// ArraySize returns the expected value count for a field at a site with
// nAlts alternate alleles and the given ploidy. Returns VariableSize for
// "." fields, whose length is not validated.
func (n NumberSpec) ArraySize(nAlts, ploidy int) int {
	switch n.Kind {
	case NumberPerAlt:
		return nAlts
	case NumberPerAllele:
		return nAlts + 1
	case NumberPerGenotype:
		// Genotypes over nAlts+1 alleles with the given ploidy:
		// C(nAlts+ploidy, ploidy) multisets.
		return binomial(nAlts+ploidy, ploidy)
	case NumberVariable:
		return VariableSize
	default:
		return n.Fixed
	}
}

func binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := 1
	for i := 1; i <= k; i++ {
		result = result * (n - k + i) / i
	}
	return result
}

// FieldDef is one parsed ##INFO or ##FORMAT definition.
type FieldDef struct {
	ID          string
	Number      NumberSpec
	Type        string
	Description string
}

// Header is the structured model of a VCF file header: INFO and FORMAT
// field definitions plus the compound annotation (CSQ/ANN) column layout.
type Header struct {
	FileFormat string
	Info       map[string]FieldDef
	Format     map[string]FieldDef
	// CSQFields is the ordered column layout of the VEP-style compound
	// annotation field, extracted from its Description. Empty when the
	// file carries no such field; annotation extraction is skipped then.
	CSQFields []string
	// CSQKey is the INFO key the layout came from ("CSQ" or "ANN").
	CSQKey string
}

// Annotation INFO keys probed for a pipe-delimited Format description,
// in priority order.
var csqKeys = []string{"CSQ", "ANN"}

// ParseHeader builds a Header from raw ## header lines.
// The #CHROM line, if included, is ignored.
func ParseHeader(lines []string) (*Header, error) {
	h := &Header{
		Info:   make(map[string]FieldDef),
		Format: make(map[string]FieldDef),
	}

	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "##fileformat="):
			h.FileFormat = strings.TrimPrefix(line, "##fileformat=")
		case strings.HasPrefix(line, "##INFO=<"):
			def, err := parseFieldDef(line, "##INFO=<")
			if err != nil {
				return nil, &HeaderError{Line: i + 1, Message: err.Error()}
			}
			h.Info[def.ID] = def
		case strings.HasPrefix(line, "##FORMAT=<"):
			def, err := parseFieldDef(line, "##FORMAT=<")
			if err != nil {
				return nil, &HeaderError{Line: i + 1, Message: err.Error()}
			}
			h.Format[def.ID] = def
		}
	}

	for _, key := range csqKeys {
		if def, ok := h.Info[key]; ok {
			if fields := parseCSQLayout(def.Description); len(fields) > 0 {
				h.CSQFields = fields
				h.CSQKey = key
				break
			}
		}
	}

	return h, nil
}

// parseFieldDef parses one ##INFO=<...> or ##FORMAT=<...> line.
func parseFieldDef(line, prefix string) (FieldDef, error) {
	body := strings.TrimPrefix(line, prefix)
	body = strings.TrimSuffix(body, ">")

	var def FieldDef
	for _, attr := range splitAttrs(body) {
		kv := strings.SplitN(attr, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]
		switch key {
		case "ID":
			def.ID = val
		case "Number":
			spec, err := ParseNumberSpec(val)
			if err != nil {
				return FieldDef{}, fmt.Errorf("field %s: %v", def.ID, err)
			}
			def.Number = spec
		case "Type":
			def.Type = val
		case "Description":
			def.Description = strings.Trim(val, `"`)
		}
	}

	if def.ID == "" {
		return FieldDef{}, fmt.Errorf("definition without ID: %s", line)
	}
	return def, nil
}

// splitAttrs splits a definition body on commas, ignoring commas inside
// double-quoted substrings (Description text routinely contains them).
func splitAttrs(body string) []string {
	var attrs []string
	var sb strings.Builder
	inQuotes := false

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			sb.WriteByte(c)
		case c == ',' && !inQuotes:
			attrs = append(attrs, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	if sb.Len() > 0 {
		attrs = append(attrs, sb.String())
	}
	return attrs
}

// parseCSQLayout extracts the pipe-delimited column names from a VEP-style
// Description, e.g. `Consequence annotations from VEP. Format: Allele|Gene|...`.
func parseCSQLayout(description string) []string {
	idx := strings.Index(description, "Format:")
	if idx == -1 {
		return nil
	}
	layout := strings.TrimSpace(description[idx+len("Format:"):])
	layout = strings.Trim(layout, `"`)
	if layout == "" {
		return nil
	}

	fields := strings.Split(layout, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
