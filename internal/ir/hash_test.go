package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoiceFields() []FieldDefinition {
	return []FieldDefinition{
		{Fieldname: "status", Label: "Status", Fieldtype: FieldTypeSelect, Options: "Draft\nPaid\nUnpaid"},
		{Fieldname: "customer", Label: "Customer", Fieldtype: FieldTypeLink, Options: "Customer"},
		{Fieldname: "posting_date", Label: "Date", Fieldtype: FieldTypeData},
		{Fieldname: "qty", Label: "Quantity", Fieldtype: FieldTypeInt, Default: []byte(`1`)},
		{Fieldname: "is_return", Label: "Is Return", Fieldtype: FieldTypeCheck, Default: []byte(`0`)},
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	fields := []FieldDefinition{
		{Fieldname: "b", Fieldtype: FieldTypeData},
		{Fieldname: "a", Fieldtype: FieldTypeSelect, Options: "x\ny"},
	}
	reversed := []FieldDefinition{fields[1], fields[0]}

	fp1 := Fingerprint(fields)
	fp2 := Fingerprint(fields)
	fp3 := Fingerprint(reversed)

	assert.Equal(t, fp1, fp2, "Fingerprint must be deterministic")
	assert.Equal(t, fp1, fp3, "Fingerprint must ignore field order")
	assert.Len(t, fp1, 64, "SHA-256 hex is 64 characters")
	assert.Equal(t, "528db14cef1cff12dbb53e657948dce949618b454c75c2606d9659c0f455b694", fp1)
}

func TestFingerprintDoesNotMutateInput(t *testing.T) {
	fields := []FieldDefinition{
		{Fieldname: "z", Fieldtype: FieldTypeData},
		{Fieldname: "a", Fieldtype: FieldTypeData},
	}
	_ = Fingerprint(fields)

	assert.Equal(t, "z", fields[0].Fieldname)
	assert.Equal(t, "a", fields[1].Fieldname)
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint(invoiceFields())

	tests := []struct {
		name    string
		mutate  func([]FieldDefinition)
		changes bool
	}{
		{"fieldtype", func(f []FieldDefinition) { f[2].Fieldtype = FieldTypeText }, true},
		{"options", func(f []FieldDefinition) { f[0].Options = "Draft\nPaid" }, true},
		{"fieldname", func(f []FieldDefinition) { f[3].Fieldname = "quantity" }, true},
		{"label", func(f []FieldDefinition) { f[1].Label = "Client" }, false},
		{"default", func(f []FieldDefinition) { f[3].Default = []byte(`5`) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := invoiceFields()
			tt.mutate(fields)
			got := Fingerprint(fields)
			if tt.changes {
				assert.NotEqual(t, base, got, "changing %s must change the fingerprint", tt.name)
			} else {
				assert.Equal(t, base, got, "changing %s must not change the fingerprint", tt.name)
			}
		})
	}
}

func TestFingerprintAddedOrRemovedField(t *testing.T) {
	fields := invoiceFields()
	base := Fingerprint(fields)

	assert.NotEqual(t, base, Fingerprint(fields[:4]))
	assert.NotEqual(t, base, Fingerprint(append(invoiceFields(), FieldDefinition{Fieldname: "notes", Fieldtype: FieldTypeText})))
}

func TestFingerprintCaseSensitiveOrdering(t *testing.T) {
	// Byte order puts uppercase before lowercase.
	fields := []FieldDefinition{
		{Fieldname: "beta", Fieldtype: FieldTypeData},
		{Fieldname: "Alpha", Fieldtype: FieldTypeData},
		{Fieldname: "alpha", Fieldtype: FieldTypeData},
	}
	assert.Equal(t, "Alpha:Data:|alpha:Data:|beta:Data:", CanonicalFields(fields))
}

func TestFingerprintDuplicateFieldnamesOrderIndependent(t *testing.T) {
	a := []FieldDefinition{
		{Fieldname: "x", Fieldtype: FieldTypeText},
		{Fieldname: "x", Fieldtype: FieldTypeData},
	}
	b := []FieldDefinition{a[1], a[0]}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Equal(t, "x:Data:|x:Text:", CanonicalFields(a))
}

func TestFingerprintHashesRawFieldnames(t *testing.T) {
	composed := []FieldDefinition{{Fieldname: "caf\u00e9", Fieldtype: FieldTypeData}}
	decomposed := []FieldDefinition{{Fieldname: "cafe\u0301", Fieldtype: FieldTypeData}}

	assert.NotEqual(t, Fingerprint(composed), Fingerprint(decomposed))
	assert.Equal(t, "cafe\u0301:Data:", CanonicalFields(decomposed))

	sum := sha256.Sum256([]byte("cafe\u0301:Data:"))
	assert.Equal(t, hex.EncodeToString(sum[:]), Fingerprint(decomposed))
}

func TestUnnormalizedFieldnames(t *testing.T) {
	fields := []FieldDefinition{
		{Fieldname: "caf\u00e9", Fieldtype: FieldTypeData},
		{Fieldname: "cafe\u0301", Fieldtype: FieldTypeData},
		{Fieldname: "qty", Fieldtype: FieldTypeInt},
	}
	assert.Equal(t, []string{"cafe\u0301"}, UnnormalizedFieldnames(fields))
	assert.Nil(t, UnnormalizedFieldnames(invoiceFields()))
}

func TestFingerprintEmpty(t *testing.T) {
	assert.Equal(t, "", CanonicalFields(nil))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(nil))
}

func TestFingerprintGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	canonical := CanonicalFields(invoiceFields())
	g.Assert(t, "invoice_canonical", []byte(canonical))
	g.Assert(t, "invoice_fingerprint", []byte(Fingerprint(invoiceFields())))
}

func TestDocTypeSchemaFingerprint(t *testing.T) {
	s := &DocTypeSchema{Name: "Invoice", Fields: invoiceFields()}
	require.Equal(t, Fingerprint(invoiceFields()), s.Fingerprint())
}
