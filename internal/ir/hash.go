package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonical form separators. Changing either invalidates every
// fingerprint already frozen into queued submissions.
const (
	tripleSep = ":"
	fieldSep  = "|"
)

// fieldTriple is the part of a FieldDefinition that participates in the
// fingerprint. Label and default are presentation data and are excluded.
type fieldTriple struct {
	name, typ, options string
}

func (t fieldTriple) String() string {
	return t.name + tripleSep + t.typ + tripleSep + t.options
}

// CanonicalFields produces the canonical string hashed by Fingerprint.
//
// Each field becomes "fieldname:fieldtype:options" (options empty when
// absent). Triples are sorted by fieldname using byte order, which is
// case-sensitive and locale-independent. Fields sharing a fieldname are
// ordered by their full triple so the result never depends on input order.
// Components are hashed as raw bytes: submission data is keyed by the raw
// fieldname, so two spellings of one name are different fields.
//
// The input slice is not modified.
func CanonicalFields(fields []FieldDefinition) string {
	triples := make([]fieldTriple, len(fields))
	for i, f := range fields {
		triples[i] = fieldTriple{name: f.Fieldname, typ: string(f.Fieldtype), options: f.Options}
	}

	sort.Slice(triples, func(i, j int) bool {
		if triples[i].name != triples[j].name {
			return triples[i].name < triples[j].name
		}
		return triples[i].String() < triples[j].String()
	})

	parts := make([]string, len(triples))
	for i, t := range triples {
		parts[i] = t.String()
	}
	return strings.Join(parts, fieldSep)
}

// Fingerprint computes the schema fingerprint: lowercase hex SHA-256 of
// CanonicalFields. The digest is a plain hash of the canonical string with
// no domain prefix, so it matches fingerprints produced by other clients
// that hash the same string.
//
// Identical field sets yield identical fingerprints regardless of order,
// labels or defaults.
func Fingerprint(fields []FieldDefinition) string {
	sum := sha256.Sum256([]byte(CanonicalFields(fields)))
	return hex.EncodeToString(sum[:])
}

// UnnormalizedFieldnames returns the fieldnames that are not in Unicode NFC
// form, in input order. Such names fingerprint differently from their
// composed spelling, which clients that normalize user input will produce.
func UnnormalizedFieldnames(fields []FieldDefinition) []string {
	var out []string
	for _, f := range fields {
		if !norm.NFC.IsNormalString(f.Fieldname) {
			out = append(out, f.Fieldname)
		}
	}
	return out
}
