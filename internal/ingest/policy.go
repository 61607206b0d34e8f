package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NumericPolicy decides what happens to numeric values that do not parse.
//
// Lenient replaces them with 0.0 and keeps the batch auditable. The cost is a
// bias: a zero billed amount looks like an unbilled charge, so malformed rows
// inflate underbilled amounts. Every coercion is counted per column in
// model.IngestStats so callers can judge how much of a result rests on it.
//
// Strict rejects the batch with a *ParseError instead.
type NumericPolicy int

const (
	Lenient NumericPolicy = iota
	Strict
)

func (p NumericPolicy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// ParsePolicy maps a config value to a policy
func ParsePolicy(name string) (NumericPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	default:
		return Lenient, fmt.Errorf("unknown numeric policy %q", name)
	}
}

// Float parses raw as a finite number. Empty, NaN and infinite values count as
// unparsable. coerced reports that Lenient substituted 0.0.
func (p NumericPolicy) Float(column, raw string) (v float64, coerced bool, err error) {
	v, perr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if perr == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v, false, nil
	}
	if p == Strict {
		return 0, false, &ParseError{Column: column, Value: raw}
	}
	return 0, true, nil
}

// ParseError reports a value rejected under the Strict policy
type ParseError struct {
	Row    int // 1-based data row, 0 when unknown
	Column string
	Value  string
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: column %s: cannot parse %q as a number", e.Row, e.Column, e.Value)
	}
	return fmt.Sprintf("column %s: cannot parse %q as a number", e.Column, e.Value)
}

// ParseBool accepts true/1/yes/y in any case; everything else is false
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseDate tries the supported layouts in order; ok is false when none match
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
