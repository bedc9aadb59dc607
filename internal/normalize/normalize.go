// Package normalize canonicalizes variant representations: shared-base
// trimming, left-alignment of indels against the reference genome, and
// multi-allelic decomposition. Output matches the vt normalizer.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/variomics/varload/internal/reference"
)

// AlleleError indicates a malformed allele string. The caller skips the
// affected decomposed record and continues with the rest of the site.
type AlleleError struct {
	Allele  string
	Message string
}

func (e *AlleleError) Error() string {
	return fmt.Sprintf("malformed allele %q: %s", e.Allele, e.Message)
}

// Result is one canonicalized (pos, ref, alt) representation.
type Result struct {
	Pos int64
	Ref string
	Alt string
	// Changed is true when normalization altered pos, ref or alt.
	Changed bool
	// Degraded is true when a reference lookup failed mid-roll and the
	// representation is the leftmost one that could be proven. Soft
	// condition: the record is still loadable.
	Degraded bool
	// Symbolic is true for structural/breakend alleles, which bypass
	// normalization entirely.
	Symbolic bool
}

// IsSymbolic reports whether an allele is a symbolic or breakend ALT
// (e.g. <DEL>, A[chr1:123[, *). Symbolic alleles are passed through
// unchanged.
func IsSymbolic(allele string) bool {
	return strings.ContainsAny(allele, "<>[]*.")
}

// validateAllele checks a non-symbolic allele against the permitted
// alphabet.
func validateAllele(allele string) error {
	if allele == "" {
		return &AlleleError{Allele: allele, Message: "empty allele"}
	}
	for i := 0; i < len(allele); i++ {
		switch allele[i] {
		case 'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n':
		default:
			return &AlleleError{
				Allele:  allele,
				Message: fmt.Sprintf("invalid base %q at offset %d", allele[i], i),
			}
		}
	}
	return nil
}

// Allele canonicalizes a single REF/ALT pair: trim the shared suffix, trim
// the shared prefix, then left-roll the indel while the reference permits.
// SNPs and already-minimal sites return unchanged without touching the
// accessor. pos is 1-based.
func Allele(chrom string, pos int64, ref, alt string, acc reference.Accessor) (Result, error) {
	if IsSymbolic(alt) {
		return Result{Pos: pos, Ref: ref, Alt: alt, Symbolic: true}, nil
	}
	if err := validateAllele(ref); err != nil {
		return Result{}, err
	}
	if err := validateAllele(alt); err != nil {
		return Result{}, err
	}

	origPos, origRef, origAlt := pos, ref, alt
	ref = strings.ToUpper(ref)
	alt = strings.ToUpper(alt)

	// Trim shared suffix. Position is unaffected.
	ref, alt = trimSuffix(ref, alt)

	// Trim shared prefix, advancing the position.
	for len(ref) > 1 && len(alt) > 1 && ref[0] == alt[0] {
		ref = ref[1:]
		alt = alt[1:]
		pos++
	}

	// Left-roll: while one allele is a single base equal to the last base
	// of the other, the indel can be represented one base earlier. Each
	// roll consults the reference base preceding the current position.
	degraded := false
	for canRoll(ref, alt) {
		if pos <= 1 {
			break
		}
		// Base immediately preceding pos: 1-based pos-1, 0-based pos-2.
		base, err := reference.Base(acc, chrom, pos-2)
		if err != nil {
			if errors.Is(err, reference.ErrUnavailable) {
				degraded = true
				break
			}
			return Result{}, fmt.Errorf("fetch reference base %s:%d: %w", chrom, pos-1, err)
		}
		ref = string(base) + ref
		alt = string(base) + alt
		pos--
		ref, alt = trimSuffix(ref, alt)
	}

	changed := pos != origPos || ref != origRef || alt != origAlt
	return Result{Pos: pos, Ref: ref, Alt: alt, Changed: changed, Degraded: degraded}, nil
}

// Site decomposes a possibly multi-allelic site and canonicalizes each
// alternate allele independently against the shared REF. The returned slice
// always has len(alts) entries; entries whose allele failed validation carry
// the error in their second return position via errs.
func Site(chrom string, pos int64, ref string, alts []string, acc reference.Accessor) ([]Result, []error) {
	results := make([]Result, len(alts))
	errs := make([]error, len(alts))
	for i, alt := range alts {
		results[i], errs[i] = Allele(chrom, pos, ref, alt, acc)
	}
	return results, errs
}

// trimSuffix removes the shared trailing bases while both alleles keep at
// least one base.
func trimSuffix(ref, alt string) (string, string) {
	for len(ref) > 1 && len(alt) > 1 && ref[len(ref)-1] == alt[len(alt)-1] {
		ref = ref[:len(ref)-1]
		alt = alt[:len(alt)-1]
	}
	return ref, alt
}

// canRoll reports whether the indel admits a representation one base to the
// left: one allele is a single base and that base equals the last base of
// the other allele.
func canRoll(ref, alt string) bool {
	if len(ref) == 1 && len(alt) > 1 {
		return ref[0] == alt[len(alt)-1]
	}
	if len(alt) == 1 && len(ref) > 1 {
		return alt[0] == ref[len(ref)-1]
	}
	return false
}
