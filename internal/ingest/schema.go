package ingest

import (
	"fmt"
	"strings"
)

// SchemaError reports required columns absent from an input header.
// It is fatal: the audit core only runs on batches with a complete schema.
type SchemaError struct {
	Schema  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s schema: missing required columns: %s", e.Schema, strings.Join(e.Missing, ", "))
}

// header indexes column names, trimmed and lowercased
type header map[string]int

func newHeader(columns []string) header {
	h := make(header, len(columns))
	for i, c := range columns {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

func (h header) has(column string) bool {
	_, ok := h[column]
	return ok
}

func (h header) missing(required []string) []string {
	var out []string
	for _, c := range required {
		if !h.has(c) {
			out = append(out, c)
		}
	}
	return out
}

// require returns a *SchemaError naming every missing column
func (h header) require(schema string, required []string) error {
	if missing := h.missing(required); len(missing) > 0 {
		return &SchemaError{Schema: schema, Missing: missing}
	}
	return nil
}
