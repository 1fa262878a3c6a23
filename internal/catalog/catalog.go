// Package catalog defines the songbook reference sets shipped with the application.
package catalog

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/songbook/internal/apperr"
)

// Ref is the short code identifying one songbook, e.g. "ZH" or "CH".
type Ref string

// Class is the provenance of a book reference.
type Class string

const (
	ClassPrepackaged Class = "prepackaged"
	ClassPublic      Class = "public"
	ClassKnown       Class = "known"
	ClassUnknown     Class = "unknown"
)

var (
	// Prepackaged books are bundled at build time and always available offline.
	Prepackaged = []Ref{"ZH", "GH", "JH", "HG"}
	// Public books are listed in the shipped catalog and fetchable remotely.
	Public = []Ref{"CH", "HZ", "ZG", "ZGE", "ZHJ", "ZHSP", "ZHG", "ZHH", "ZHR", "HS", "PC"}
	// Known is every importable reference: the public catalog plus unlisted books.
	Known = append(slices.Clone(Public), "ARF", "ARFR")
)

var refRe = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

// RefRule validates the lexical shape of a book reference.
var RefRule = validation.Match(refRe).Error("must be 1-16 upper-case letters or digits")

// Parse normalises s into a Ref and checks its shape. It does not check
// catalog membership.
func Parse(s string) (Ref, error) {
	ref := strings.ToUpper(strings.TrimSpace(s))
	if err := validation.Validate(ref, validation.Required, RefRule); err != nil {
		return "", fmt.Errorf("catalog: book %q: %w", s, err)
	}
	return Ref(ref), nil
}

// IsPrepackaged reports whether ref ships with the application.
func IsPrepackaged(ref Ref) bool { return slices.Contains(Prepackaged, ref) }

// IsPublic reports whether ref is in the public catalog.
func IsPublic(ref Ref) bool { return slices.Contains(Public, ref) }

// IsKnown reports whether ref can be imported.
func IsKnown(ref Ref) bool { return slices.Contains(Known, ref) }

// Classify returns the provenance class of ref.
func Classify(ref Ref) Class {
	switch {
	case IsPrepackaged(ref):
		return ClassPrepackaged
	case IsPublic(ref):
		return ClassPublic
	case IsKnown(ref):
		return ClassKnown
	default:
		return ClassUnknown
	}
}

// Importable returns nil when ref may be added to the imported list.
func Importable(ref Ref) error {
	switch Classify(ref) {
	case ClassPrepackaged:
		return fmt.Errorf("catalog: %s: %w", ref, apperr.ErrPrepackaged)
	case ClassUnknown:
		return fmt.Errorf("catalog: %s: %w", ref, apperr.ErrUnknownBook)
	}
	return nil
}

// Strings converts refs to plain strings.
func Strings(refs []Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = string(r)
	}
	return out
}
