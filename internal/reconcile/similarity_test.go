package reconcile

import (
	"math"
	"testing"
)

var sampleStrings = []string{
	"",
	"a",
	"chicago, il->dallas, tx",
	"chicago il->dallas tx",
	"dallas, tx->chicago, il",
	"atlanta, ga->miami, fl",
	"liftgate",
	"liftgate delivery",
	"residential delivery",
	"inside delivery",
	"abcd",
	"bcde",
	"xyz",
	"aaaaabbbbb",
	"bbbbbaaaaa",
}

func TestSimilarity_Identity(t *testing.T) {
	for _, s := range sampleStrings {
		if got := Similarity(s, s); got != 1.0 {
			t.Errorf("Similarity(%q, %q) = %v, want 1.0", s, s, got)
		}
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	for _, a := range sampleStrings {
		for _, b := range sampleStrings {
			if Similarity(a, b) != Similarity(b, a) {
				t.Errorf("Similarity(%q, %q) = %v but reversed = %v", a, b, Similarity(a, b), Similarity(b, a))
			}
		}
	}
}

func TestSimilarity_Range(t *testing.T) {
	for _, a := range sampleStrings {
		for _, b := range sampleStrings {
			got := Similarity(a, b)
			if got < 0 || got > 1 || math.IsNaN(got) {
				t.Errorf("Similarity(%q, %q) = %v out of [0,1]", a, b, got)
			}
		}
	}
}

func TestSimilarity_KnownValues(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abcd", "bcde", 0.75}, // 2*3/8
		{"abc", "xyz", 0.0},
		{"", "abc", 0.0},
		{"", "", 1.0},
		{"ab", "abcd", 2.0 * 2 / 6},
	}

	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity_MultibyteRunes(t *testing.T) {
	// "r" and "sum" match; accented runes count once each
	got := Similarity("résumé", "resume")
	want := 2.0 * 4 / 12
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Chicago, IL", "chicago, il"},
		{"  DALLAS ", "dallas"},
		{"ＡＴＬ", "atl"}, // full-width folds under NFKC
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLaneKey(t *testing.T) {
	if got := LaneKey("Chicago, IL", "Dallas, TX"); got != "chicago, il->dallas, tx" {
		t.Errorf("unexpected lane key %q", got)
	}
}
