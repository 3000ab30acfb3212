package rules

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/smartfolder/internal/types"
)

func TestParseFieldPath(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		want    []types.PathSegment
		wantErr error
	}{
		{
			name:  "top-level key",
			field: "status",
			want:  []types.PathSegment{{Key: "status"}},
		},
		{
			name:  "nested key",
			field: "metadata.author",
			want:  []types.PathSegment{{Key: "metadata"}, {Key: "author"}},
		},
		{
			name:  "array index",
			field: "tags[0]",
			want:  []types.PathSegment{{Key: "tags"}, {Index: 0, IsIndex: true}},
		},
		{
			name:  "bracket wildcard",
			field: "versions[*].status",
			want:  []types.PathSegment{{Key: "versions"}, {Wildcard: true}, {Key: "status"}},
		},
		{
			name:  "dotted wildcard",
			field: "approvals.*.state",
			want:  []types.PathSegment{{Key: "approvals"}, {Wildcard: true}, {Key: "state"}},
		},
		{
			name:  "chained indices",
			field: "matrix[1][2]",
			want:  []types.PathSegment{{Key: "matrix"}, {Index: 1, IsIndex: true}, {Index: 2, IsIndex: true}},
		},
		{name: "empty", field: "", wantErr: types.ErrInvalidFieldPath},
		{name: "blank", field: "   ", wantErr: types.ErrInvalidFieldPath},
		{name: "double dot", field: "a..b", wantErr: types.ErrInvalidFieldPath},
		{name: "trailing dot", field: "a.", wantErr: types.ErrInvalidFieldPath},
		{name: "leading index", field: "[0].a", wantErr: types.ErrInvalidFieldPath},
		{name: "unbalanced bracket", field: "tags[0", wantErr: types.ErrInvalidFieldPath},
		{name: "negative index", field: "tags[-1]", wantErr: types.ErrInvalidFieldPath},
		{name: "stray closing bracket", field: "ta]gs", wantErr: types.ErrInvalidFieldPath},
		{name: "too many wildcards", field: "a[*].b[*].c[*]", wantErr: types.ErrTooManyWildcards},
		{name: "too deep", field: strings.Repeat("a.", types.MaxPathDepth) + "a", wantErr: types.ErrPathTooDeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFieldPath(tt.field)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseFieldPath(%q) error = %v, want %v", tt.field, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFieldPath(%q) error = %v, want nil", tt.field, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseFieldPath(%q) mismatch (-want +got):\n%s", tt.field, diff)
			}
		})
	}
}

func decode(t *testing.T, data string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		t.Fatalf("bad test data %q: %v", data, err)
	}
	return v
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		data     string
		expected any
		wantErr  error
	}{
		{
			name:     "nested object traversal",
			field:    "metadata.author",
			data:     `{"metadata": {"author": "Alice"}}`,
			expected: "Alice",
		},
		{
			name:     "array index access",
			field:    "reviewers[1].name",
			data:     `{"reviewers": [{"name": "Bob"}, {"name": "Carol"}]}`,
			expected: "Carol",
		},
		{
			name:     "wildcard first match",
			field:    "versions[*].pages",
			data:     `{"versions": [{"label": "draft"}, {"pages": 12}, {"pages": 20}]}`,
			expected: float64(12),
		},
		{
			name:     "wildcard on object uses sorted keys",
			field:    "*.value",
			data:     `{"z": {"value": 1}, "a": {"value": 2}, "m": {"value": 3}}`,
			expected: float64(2),
		},
		{
			name:     "explicit null is present",
			field:    "archivedAt",
			data:     `{"archivedAt": null}`,
			expected: nil,
		},
		{
			name:    "missing key",
			field:   "status",
			data:    `{"title": "x"}`,
			wantErr: types.ErrFieldNotFound,
		},
		{
			name:    "index out of range",
			field:   "tags[3]",
			data:    `{"tags": ["a"]}`,
			wantErr: types.ErrFieldNotFound,
		},
		{
			name:    "key on array",
			field:   "tags.first",
			data:    `{"tags": ["a"]}`,
			wantErr: types.ErrFieldNotFound,
		},
		{
			name:    "index on object",
			field:   "metadata[0]",
			data:    `{"metadata": {"a": 1}}`,
			wantErr: types.ErrFieldNotFound,
		},
		{
			name:    "path continues past scalar",
			field:   "title.length",
			data:    `{"title": "x"}`,
			wantErr: types.ErrFieldNotFound,
		},
		{
			name:    "wildcard over empty array",
			field:   "versions[*].pages",
			data:    `{"versions": []}`,
			wantErr: types.ErrFieldNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := ParseFieldPath(tt.field)
			if err != nil {
				t.Fatalf("ParseFieldPath(%q) error = %v", tt.field, err)
			}
			got, err := Resolve(path, decode(t, tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v, want nil", err)
			}
			if got != tt.expected {
				t.Errorf("Resolve() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// Property-based test: arbitrary paths never crash resolution
func TestResolve_PropertyNoPanic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	data := decode(t, `{"key": [{"key": "value"}, {"key": {"key": [1, 2]}}], "other": null}`)

	properties.Property("resolution never panics", prop.ForAll(
		func(depth int, useWildcards bool, index int) bool {
			path := make([]types.PathSegment, depth)
			for i := range path {
				switch {
				case useWildcards && i%2 == 1:
					path[i] = types.PathSegment{Wildcard: true}
				case i%3 == 2:
					path[i] = types.PathSegment{Index: index, IsIndex: true}
				default:
					path[i] = types.PathSegment{Key: "key"}
				}
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Resolve() panicked: %v", r)
				}
			}()
			_, _ = Resolve(path, data)
			return true
		},
		gen.IntRange(0, 12),
		gen.Bool(),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

// Property-based test: wildcard determinism
func TestResolve_PropertyWildcardDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("wildcard resolution is deterministic", prop.ForAll(
		func(keys []string) bool {
			obj := make(map[string]any, len(keys))
			for i, k := range keys {
				obj[k] = map[string]any{"value": float64(i)}
			}
			path := []types.PathSegment{{Wildcard: true}, {Key: "value"}}

			first, err1 := Resolve(path, obj)
			second, err2 := Resolve(path, obj)
			return errors.Is(err1, err2) && first == second
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
