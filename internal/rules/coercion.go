// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

/*
 * Type coercion for rule evaluation.
 *
 * Numeric operators accept native numbers or a single explicit numeric parse
 * of a string. Booleans are never numbers. Anything else is a type mismatch.
 *
 * Text operators accept scalars only: strings pass through, numbers and
 * booleans are formatted. Lists and objects have no text form.
 *
 * Case folding: strings are lower-cased on both sides unless the rule is
 * case sensitive.
 */

// FieldType classifies document fields in the field registry.
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeNumeric FieldType = "numeric"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeList    FieldType = "list"
	FieldTypeAny     FieldType = "any"
)

// nativeNumber converts Go numeric kinds to float64 without parsing strings.
// Handles float64 from JSON decoding and int from YAML decoding.
func nativeNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// toNumber applies the numeric coercion policy: native numbers, or one
// strconv.ParseFloat of a trimmed string. Whitespace-only and NaN strings fail.
func toNumber(v any) (float64, bool) {
	if f, ok := nativeNumber(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// toText converts scalars to their string form. Lists, objects and nil fail.
func toText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "", false
	}
	if f, ok := nativeNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// toList returns the elements of slice or array values.
func toList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// isEmptyValue reports absence, null, blank strings and zero-length collections.
func isEmptyValue(v any, found bool) bool {
	if !found || v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// fold lower-cases s unless the comparison is case sensitive.
func fold(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}
