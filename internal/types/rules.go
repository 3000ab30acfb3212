// internal/types/rules.go
package types

/*
 * Domain types for smart folder rules.
 *
 * Provides Rule, RuleGroup, Operator and PathSegment structures used by
 * internal/rules for validation, compilation and evaluation. These types are
 * storage and wire agnostic: the same structs round-trip through the folders
 * table (JSON), the CLI definition files (YAML) and gRPC Struct payloads.
 *
 * Key types:
 *   - Rule: single field-level predicate
 *   - RuleGroup: AND/OR/NOT combination of rules and nested groups
 *   - PathSegment: one component of a document field path
 */

// Operator names a rule comparison. The set is closed; see Operators.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "notEquals"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "notContains"
	OpStartsWith         Operator = "startsWith"
	OpEndsWith           Operator = "endsWith"
	OpIsEmpty            Operator = "isEmpty"
	OpIsNotEmpty         Operator = "isNotEmpty"
	OpGreaterThan        Operator = "greaterThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpLessThan           Operator = "lessThan"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
	OpBetween            Operator = "between"
	OpNotBetween         Operator = "notBetween"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "notIn"
	OpRegex              Operator = "regex"
	OpExists             Operator = "exists"
	OpNotExists          Operator = "notExists"
)

// Operators lists every supported operator in declaration order.
var Operators = []Operator{
	OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith, OpEndsWith,
	OpIsEmpty, OpIsNotEmpty, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan,
	OpLessThanOrEqual, OpBetween, OpNotBetween, OpIn, OpNotIn, OpRegex,
	OpExists, OpNotExists,
}

// Valid reports whether op is one of Operators.
func (op Operator) Valid() bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// Logic is the boolean combinator of a rule group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
	LogicNot Logic = "NOT"
)

// Valid reports whether l is AND, OR or NOT.
func (l Logic) Valid() bool {
	return l == LogicAnd || l == LogicOr || l == LogicNot
}

// ValueType tells how a rule's Value is obtained.
// Only ValueStatic reaches the evaluator; the rest go through a resolver.
type ValueType string

const (
	ValueStatic      ValueType = "static"
	ValueDynamic     ValueType = "dynamic"
	ValueReference   ValueType = "reference"
	ValueFunction    ValueType = "function"
	ValueVariable    ValueType = "variable"
	ValueCalculation ValueType = "calculation"
)

// IsStatic treats the empty value type as static.
func (vt ValueType) IsStatic() bool {
	return vt == "" || vt == ValueStatic
}

// PathSegment represents one component of a field path.
// String for object keys, int for array indices, wildcard for array expansion.
type PathSegment struct {
	Key      string // object key (mutually exclusive with Index/Wildcard)
	Index    int    // array index (mutually exclusive with Key/Wildcard)
	IsIndex  bool   // disambiguates Index=0 from unset
	Wildcard bool   // true = wildcard segment
}

// Rule is a single predicate over one document field.
type Rule struct {
	ID            RuleID    `json:"id" yaml:"id"`
	Field         string    `json:"field" yaml:"field"`
	Operator      Operator  `json:"operator" yaml:"operator"`
	Value         any       `json:"value,omitempty" yaml:"value,omitempty"`
	ValueType     ValueType `json:"valueType,omitempty" yaml:"valueType,omitempty"`
	CaseSensitive bool      `json:"caseSensitive,omitempty" yaml:"caseSensitive,omitempty"`
	Negate        bool      `json:"negate,omitempty" yaml:"negate,omitempty"`
	GroupID       GroupID   `json:"groupId,omitempty" yaml:"groupId,omitempty"`
	Order         int       `json:"order" yaml:"order"`
	IsActive      bool      `json:"isActive" yaml:"isActive"`
}

// RuleGroup combines rules and nested groups with one logic operator.
type RuleGroup struct {
	ID     GroupID     `json:"id" yaml:"id"`
	Name   string      `json:"name,omitempty" yaml:"name,omitempty"`
	Logic  Logic       `json:"logic" yaml:"logic"`
	Rules  []Rule      `json:"rules,omitempty" yaml:"rules,omitempty"`
	Groups []RuleGroup `json:"groups,omitempty" yaml:"groups,omitempty"`
	Order  int         `json:"order" yaml:"order"`
}

// WithIDs returns a copy of g in which every group and rule lacking an id
// has been given a fresh one. g itself is not modified.
func (g RuleGroup) WithIDs() RuleGroup {
	if g.ID == "" {
		g.ID = NewGroupID()
	}
	if g.Rules != nil {
		g.Rules = append([]Rule(nil), g.Rules...)
		for i := range g.Rules {
			if g.Rules[i].ID == "" {
				g.Rules[i].ID = NewRuleID()
			}
		}
	}
	if g.Groups != nil {
		children := make([]RuleGroup, len(g.Groups))
		for i, child := range g.Groups {
			children[i] = child.WithIDs()
		}
		g.Groups = children
	}
	return g
}

// CountRules returns the number of leaf rules in the tree rooted at g.
func (g RuleGroup) CountRules() int {
	n := len(g.Rules)
	for _, child := range g.Groups {
		n += child.CountRules()
	}
	return n
}
