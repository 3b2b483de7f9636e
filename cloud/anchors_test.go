package cloud

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnchorsFromPrefix(t *testing.T) {
	got := AnchorsFromPrefix("ictf{")
	want := []Anchor{
		{Row: 0, Col: 0, Value: 105},
		{Row: 0, Col: 1, Value: 99},
		{Row: 0, Col: 2, Value: 116},
		{Row: 1, Col: 0, Value: 102},
		{Row: 1, Col: 1, Value: 123},
	}
	assert.Equal(t, want, got)
	assert.Empty(t, AnchorsFromPrefix(""))
}

func TestParseAnchorSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []Anchor
		wantErr bool
	}{
		{name: "empty", spec: "  ", want: nil},
		{name: "decimal", spec: "0:0=105", want: []Anchor{{0, 0, 105}}},
		{name: "quoted and spaced", spec: " 1:1='{' , 2:2=125", want: []Anchor{{1, 1, 123}, {2, 2, 125}}},
		{name: "quoted comma", spec: "0:1=','", wantErr: true}, // split on comma first
		{name: "missing equals", spec: "0:0", wantErr: true},
		{name: "missing colon", spec: "0=1", wantErr: true},
		{name: "bad row", spec: "x:0=1", wantErr: true},
		{name: "bad col", spec: "0:y=1", wantErr: true},
		{name: "bad value", spec: "0:0=abc", wantErr: true},
		{name: "multi-char quote", spec: "0:0='ab'", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnchorSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeAnchors(t *testing.T) {
	prefix := AnchorsFromPrefix("ab")
	override := []Anchor{{Row: 0, Col: 1, Value: 90}, {Row: 3, Col: 2, Value: 125}}

	got := MergeAnchors(prefix, override)
	assert.Equal(t, []Anchor{
		{Row: 0, Col: 0, Value: 97},
		{Row: 0, Col: 1, Value: 90},
		{Row: 3, Col: 2, Value: 125},
	}, got)
}

func TestValidateAnchors(t *testing.T) {
	dom := PrintableASCII()
	tests := []struct {
		name    string
		anchors []Anchor
		wantErr bool
	}{
		{"valid", AnchorsFromPrefix("ictf{"), false},
		{"negative row", []Anchor{{Row: -1, Col: 0, Value: 65}}, true},
		{"col too large", []Anchor{{Row: 0, Col: 3, Value: 65}}, true},
		{"value below domain", []Anchor{{Row: 0, Col: 0, Value: 10}}, true},
		{"value above domain", []Anchor{{Row: 0, Col: 0, Value: 127}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAnchors(tt.anchors, dom)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyAnchors_SkipsRowsBeyondMatrix(t *testing.T) {
	x := HiddenMatrix{{95, 95, 95}}
	applyAnchors(x, []Anchor{{Row: 0, Col: 2, Value: 116}, {Row: 5, Col: 0, Value: 65}})
	assert.Equal(t, HiddenMatrix{{95, 95, 116}}, x)
}
