// internal/rules/fieldpath.go
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/smartfolder/internal/types"
)

/*
 * Field path parsing and resolution for document metadata.
 *
 * Rule fields are dotted paths into a document's metadata tree:
 *   status               top-level key
 *   metadata.author      nested object key
 *   tags[0]              array index
 *   versions[*].status   wildcard over array elements (or object values)
 *
 * Wildcard semantics: first match wins (ANY). Object wildcards iterate keys in
 * sorted order so the same document always resolves to the same value.
 * MaxPathDepth and MaxNestedWildcards are enforced at parse time.
 */

// ParseFieldPath converts a rule field name into path segments.
func ParseFieldPath(field string) ([]types.PathSegment, error) {
	if strings.TrimSpace(field) == "" {
		return nil, fmt.Errorf("%w: empty field name", types.ErrInvalidFieldPath)
	}

	var path []types.PathSegment
	for _, part := range strings.Split(field, ".") {
		name, brackets := part, ""
		if i := strings.IndexByte(part, '['); i >= 0 {
			name, brackets = part[:i], part[i:]
		}
		if strings.ContainsAny(name, "[]") {
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidFieldPath, field)
		}

		switch {
		case name == "*":
			path = append(path, types.PathSegment{Wildcard: true})
		case name != "":
			path = append(path, types.PathSegment{Key: name})
		case brackets == "" || len(path) == 0:
			// "a..b", trailing dot, or a path starting with an index
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidFieldPath, field)
		}

		for brackets != "" {
			end := strings.IndexByte(brackets, ']')
			if brackets[0] != '[' || end < 0 {
				return nil, fmt.Errorf("%w: unbalanced brackets in %q", types.ErrInvalidFieldPath, field)
			}
			inner := brackets[1:end]
			if inner == "*" {
				path = append(path, types.PathSegment{Wildcard: true})
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%w: bad index %q in %q", types.ErrInvalidFieldPath, inner, field)
				}
				path = append(path, types.PathSegment{Index: n, IsIndex: true})
			}
			brackets = brackets[end+1:]
		}
	}

	if len(path) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}
	wildcards := 0
	for _, seg := range path {
		if seg.Wildcard {
			wildcards++
		}
	}
	if wildcards > types.MaxNestedWildcards {
		return nil, types.ErrTooManyWildcards
	}
	return path, nil
}

// Resolve traverses decoded document data following path segments.
// Returns ErrFieldNotFound if the path does not exist in data.
func Resolve(path []types.PathSegment, data any) (any, error) {
	if len(path) == 0 {
		return data, nil
	}

	seg := path[0]
	remaining := path[1:]

	switch v := data.(type) {
	case map[string]any:
		if seg.Wildcard {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				if val, err := Resolve(remaining, v[key]); err == nil {
					return val, nil
				}
			}
			return nil, types.ErrFieldNotFound
		}
		if seg.IsIndex {
			return nil, types.ErrFieldNotFound
		}
		val, ok := v[seg.Key]
		if !ok {
			return nil, types.ErrFieldNotFound
		}
		return Resolve(remaining, val)

	case []any:
		if seg.Wildcard {
			for _, elem := range v {
				if val, err := Resolve(remaining, elem); err == nil {
					return val, nil
				}
			}
			return nil, types.ErrFieldNotFound
		}
		if !seg.IsIndex || seg.Index >= len(v) {
			return nil, types.ErrFieldNotFound
		}
		return Resolve(remaining, v[seg.Index])

	default:
		// Scalar or null value but path continues
		return nil, types.ErrFieldNotFound
	}
}
