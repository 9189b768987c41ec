package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldkit/internal/ir"
)

func TestCountingProvider(t *testing.T) {
	ctx := context.Background()
	p := NewCountingProvider(&ir.DocTypeSchema{Name: "Lead", Fields: []ir.FieldDefinition{{Fieldname: "a", Fieldtype: ir.FieldTypeData}}})

	s, err := p.GetDocType(ctx, "Lead")
	require.NoError(t, err)
	assert.Equal(t, "Lead", s.Name)

	_, err = p.GetDocType(ctx, "Missing")
	assert.True(t, ir.IsRemoteFetchError(err))

	names, err := p.ListDocTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lead"}, names)

	assert.Equal(t, 1, p.GetCalls("Lead"))
	assert.Equal(t, 3, p.Calls())

	p.FailWith(errors.New("down"))
	_, err = p.ListDocTypes(ctx)
	assert.True(t, ir.IsRemoteFetchError(err))
}

func TestCountingProvider_Hold(t *testing.T) {
	p := NewCountingProvider(&ir.DocTypeSchema{Name: "Lead"})
	p.Hold()

	done := make(chan error, 1)
	go func() {
		_, err := p.GetDocType(context.Background(), "Lead")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("held call returned early")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("release did not unblock")
	}
}
