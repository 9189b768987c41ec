package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"minimal", `{"name":"Lead","fields":[]}`, false},
		{"unknown keys kept open", `{"name":"Lead","istable":0,"fields":[{"fieldname":"a","fieldtype":"Data","idx":1}]}`, false},
		{"null label and options", `{"name":"Lead","fields":[{"fieldname":"a","fieldtype":"Data","label":null,"options":null}]}`, false},
		{"any default", `{"name":"Lead","fields":[{"fieldname":"a","fieldtype":"Check","default":{"x":[1,2]}}]}`, false},
		{"empty fieldname", `{"name":"Lead","fields":[{"fieldname":"","fieldtype":"Data"}]}`, true},
		{"options not string", `{"name":"Lead","fields":[{"fieldname":"a","fieldtype":"Select","options":["x"]}]}`, true},
		{"fields not list", `{"name":"Lead","fields":{}}`, true},
		{"empty name", `{"name":"","fields":[]}`, true},
		{"not json", `{"name":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_MissingName(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.Validate([]byte(`{"fields":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid doctype")
}
