package ingest

import (
	"strings"
	"time"

	"github.com/ppiankov/freightaudit/internal/model"
)

// record reads typed fields from one CSV row and tracks coercions
type record struct {
	header header
	fields []string
	row    int
	policy NumericPolicy
	stats  *model.IngestStats
	err    error // first strict-mode failure
}

func (r *record) has(column string) bool {
	return r.header.has(column)
}

func (r *record) str(column string) string {
	i, ok := r.header[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r *record) float(column string) float64 {
	v, coerced, err := r.policy.Float(column, r.str(column))
	if err != nil {
		if r.err == nil {
			pe := err.(*ParseError)
			pe.Row = r.row
			r.err = pe
		}
		return 0
	}
	if coerced {
		r.coerce(column)
	}
	return v
}

// optFloat reads a column that may be absent from the schema; blanks are 0.0
// and are not counted as coercions
func (r *record) optFloat(column string) float64 {
	if !r.has(column) || r.str(column) == "" {
		return 0
	}
	return r.float(column)
}

func (r *record) bool(column string) bool {
	return ParseBool(r.str(column))
}

func (r *record) date(column string) time.Time {
	raw := r.str(column)
	if raw == "" {
		return time.Time{}
	}
	t, ok := ParseDate(raw)
	if !ok {
		r.coerce(column)
	}
	return t
}

func (r *record) coerce(column string) {
	if r.stats.Coercions == nil {
		r.stats.Coercions = make(map[string]int)
	}
	r.stats.Coercions[column]++
}
