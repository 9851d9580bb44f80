package models

import (
	"fmt"
	"strconv"
)

// KeyField is the natural-key field every record must carry after mapping.
// It is the upsert conflict target in the relational store.
const KeyField = "listing_no"

// Record is one spreadsheet row after column mapping. Values are either
// string, float64 or nil; treat it as immutable once produced.
type Record map[string]any

// NaturalKey returns the business identifier of the record, or "" when the
// source row carried none.
func (r Record) NaturalKey() string {
	v, ok := r[KeyField]
	if !ok || v == nil {
		return ""
	}
	switch k := v.(type) {
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", k)
	}
}

// Text returns the field as a string, or "" when absent, nil or non-string.
func (r Record) Text(field string) string {
	if s, ok := r[field].(string); ok {
		return s
	}
	return ""
}

// Number returns the field as a float64 with a presence flag.
func (r Record) Number(field string) (float64, bool) {
	n, ok := r[field].(float64)
	return n, ok
}
