// internal/rules/validate.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/smartfolder/internal/types"
)

// IssueLevel grades a validation finding.
type IssueLevel string

const (
	// LevelStructural issues prevent compilation.
	LevelStructural IssueLevel = "structural"
	// LevelValue issues compile but error on every evaluation of the rule.
	LevelValue IssueLevel = "value"
	// LevelWarning issues never block saving.
	LevelWarning IssueLevel = "warning"
)

// ValidationIssue is one finding about a rule or group.
type ValidationIssue struct {
	Level   IssueLevel    `json:"level"`
	RuleID  types.RuleID  `json:"ruleId,omitempty"`
	GroupID types.GroupID `json:"groupId,omitempty"`
	Field   string        `json:"field,omitempty"`
	Message string        `json:"message"`
	Err     error         `json:"-"`
}

// ValidationResult is the save-time report for a rule set.
type ValidationResult struct {
	Valid            bool              `json:"valid"`
	Errors           []ValidationIssue `json:"errors"`
	Warnings         []ValidationIssue `json:"warnings"`
	RuleCount        int               `json:"ruleCount"`
	IndexUtilization float64           `json:"indexUtilization"`
}

// Err returns nil for a valid result, otherwise a *ValidationError.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Issues: r.Errors}
}

// ValidationError blocks persistence of a malformed rule set.
// errors.Is matches types.ErrValidation and every issue's sentinel.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return types.ErrValidation.Error()
	}
	first := e.Issues[0]
	msg := first.Message
	if first.RuleID != "" {
		msg = fmt.Sprintf("rule %s: %s", first.RuleID, msg)
	} else if first.GroupID != "" {
		msg = fmt.Sprintf("group %s: %s", first.GroupID, msg)
	}
	if extra := len(e.Issues) - 1; extra > 0 {
		msg = fmt.Sprintf("%s (and %d more)", msg, extra)
	}
	return fmt.Sprintf("%s: %s", types.ErrValidation, msg)
}

func (e *ValidationError) Unwrap() []error {
	errs := []error{types.ErrValidation}
	for _, issue := range e.Issues {
		if issue.Err != nil {
			errs = append(errs, issue.Err)
		}
	}
	return errs
}

// Validate checks a rule set before it is saved. Unlike Compile it reports
// value issues and registry mismatches as errors, and collects warnings.
func Validate(root types.RuleGroup, opts CompileOptions) ValidationResult {
	c := newCompiler(opts)
	c.run(root)

	result := ValidationResult{
		Errors:    append(c.issuesAt(LevelStructural), c.issuesAt(LevelValue)...),
		Warnings:  c.issuesAt(LevelWarning),
		RuleCount: root.CountRules(),
	}
	result.Valid = len(result.Errors) == 0
	if result.Valid {
		result.IndexUtilization = c.set.IndexUtilization()
	}
	return result
}

// FieldDefinition describes a document field available to rules.
type FieldDefinition struct {
	Name      string           `json:"name" yaml:"name"`
	Type      FieldType        `json:"type" yaml:"type"`
	Indexed   bool             `json:"indexed" yaml:"indexed"`
	Operators []types.Operator `json:"operators,omitempty" yaml:"operators,omitempty"`
}

// Supports reports whether op may be used on this field. An empty Operators
// list falls back to DefaultOperators for the field type.
func (d FieldDefinition) Supports(op types.Operator) bool {
	ops := d.Operators
	if len(ops) == 0 {
		ops = DefaultOperators(d.Type)
	}
	for _, allowed := range ops {
		if allowed == op {
			return true
		}
	}
	return false
}

// FieldRegistry maps field names to their definitions.
type FieldRegistry map[string]FieldDefinition

// Lookup finds the definition for a rule field. Nested paths such as
// metadata.author fall back to the definition of their root key.
func (r FieldRegistry) Lookup(field string) (FieldDefinition, bool) {
	if def, ok := r[field]; ok {
		return def, true
	}
	root := field
	if i := strings.IndexAny(root, ".["); i >= 0 {
		root = root[:i]
	}
	def, ok := r[root]
	return def, ok
}

var presenceOperators = []types.Operator{types.OpIsEmpty, types.OpIsNotEmpty, types.OpExists, types.OpNotExists}

// DefaultOperators returns the operators allowed on a field type.
func DefaultOperators(ft FieldType) []types.Operator {
	var ops []types.Operator
	switch ft {
	case FieldTypeText:
		ops = []types.Operator{
			types.OpEquals, types.OpNotEquals, types.OpContains, types.OpNotContains,
			types.OpStartsWith, types.OpEndsWith, types.OpIn, types.OpNotIn, types.OpRegex,
		}
	case FieldTypeNumeric, FieldTypeDate:
		ops = []types.Operator{
			types.OpEquals, types.OpNotEquals, types.OpGreaterThan, types.OpGreaterThanOrEqual,
			types.OpLessThan, types.OpLessThanOrEqual, types.OpBetween, types.OpNotBetween,
			types.OpIn, types.OpNotIn,
		}
	case FieldTypeBoolean:
		ops = []types.Operator{types.OpEquals, types.OpNotEquals}
	case FieldTypeList:
		ops = []types.Operator{types.OpContains, types.OpNotContains, types.OpIn, types.OpNotIn, types.OpEquals, types.OpNotEquals}
	default:
		return types.Operators
	}
	return append(ops, presenceOperators...)
}

// DefaultFieldRegistry describes the document metadata produced by ingestion.
func DefaultFieldRegistry() FieldRegistry {
	defs := []FieldDefinition{
		{Name: "title", Type: FieldTypeText, Indexed: true},
		{Name: "status", Type: FieldTypeText, Indexed: true},
		{Name: "documentType", Type: FieldTypeText, Indexed: true},
		{Name: "author", Type: FieldTypeText, Indexed: true},
		{Name: "department", Type: FieldTypeText},
		{Name: "confidentiality", Type: FieldTypeText},
		{Name: "barcode", Type: FieldTypeText, Indexed: true},
		{Name: "mimeType", Type: FieldTypeText},
		{Name: "tags", Type: FieldTypeList, Indexed: true},
		{Name: "size", Type: FieldTypeNumeric},
		{Name: "pageCount", Type: FieldTypeNumeric},
		{Name: "documentCount", Type: FieldTypeNumeric},
		{Name: "version", Type: FieldTypeNumeric},
		{Name: "createdAt", Type: FieldTypeDate, Indexed: true},
		{Name: "updatedAt", Type: FieldTypeDate},
		{Name: "approved", Type: FieldTypeBoolean},
		{Name: "metadata", Type: FieldTypeAny},
	}
	registry := make(FieldRegistry, len(defs))
	for _, def := range defs {
		registry[def.Name] = def
	}
	return registry
}
