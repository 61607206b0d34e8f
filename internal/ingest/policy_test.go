package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericPolicy_Lenient(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		coerced bool
	}{
		{"12.5", 12.5, false},
		{" 7 ", 7, false},
		{"-3", -3, false},
		{"1e3", 1000, false},
		{"", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"$12", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, coerced, err := Lenient.Float("col", tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.coerced, coerced)
		})
	}
}

func TestNumericPolicy_Strict(t *testing.T) {
	v, coerced, err := Strict.Float("weight_lb", "42")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
	assert.False(t, coerced)

	_, _, err = Strict.Float("weight_lb", "NaN")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "weight_lb", pe.Column)
	assert.Contains(t, pe.Error(), `"NaN"`)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Lenient, p)

	p, err = ParsePolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, Strict, p)
	assert.Equal(t, "strict", p.String())

	_, err = ParsePolicy("loose")
	assert.Error(t, err)
}

func TestParseBool(t *testing.T) {
	for _, raw := range []string{"true", "TRUE", "1", "yes", "Y", " y "} {
		assert.True(t, ParseBool(raw), raw)
	}
	for _, raw := range []string{"false", "0", "no", "", "maybe", "t"} {
		assert.False(t, ParseBool(raw), raw)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC)

	for _, raw := range []string{"2024-07-04", "07/04/2024", "2024-07-04T00:00:00Z", "2024-07-04 00:00:00"} {
		got, ok := ParseDate(raw)
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), raw)
	}

	_, ok := ParseDate("July 4th")
	assert.False(t, ok)
}
