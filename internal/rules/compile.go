// internal/rules/compile.go
package rules

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/solatis/smartfolder/internal/types"
)

/*
 * Rule set compilation.
 *
 * Compiles a types.RuleGroup tree into an arena: a flat slice of groups in
 * preorder (parents before children, root at index 0) and a flat slice of
 * rules, linked by index. Cyclic or dangling links cannot be expressed in
 * the arena, so the acyclicity check runs once here and never during
 * evaluation.
 *
 * Compilation workflow:
 *   1. Depth-first walk with a visited set and an on-path set (cycle and
 *      duplicate id detection)
 *   2. Children ordered by their Order field (stable sort for determinism)
 *   3. Operator arity checks and target normalization (numbers, lists,
 *      precompiled regex)
 *   4. Deferred values resolved through ValueResolver
 *
 * Issue levels: structural issues (unknown operator, wrong arity, cycles)
 * make Compile fail. Value issues (non-numeric bound, malformed pattern,
 * unparsable field path) are attached to the rule and surface as a per-rule
 * error on every evaluation. Validate reports both, plus warnings.
 */

// CompiledRule is a leaf rule with normalized comparison targets.
type CompiledRule struct {
	ID            types.RuleID
	GroupID       types.GroupID
	Field         string
	Path          []types.PathSegment
	Operator      types.Operator
	CaseSensitive bool
	Negate        bool
	Active        bool
	Order         int
	Indexed       bool

	value   any            // equals/notEquals target
	text    string         // contains/startsWith/endsWith target
	num     float64        // ordered comparison target
	lo, hi  float64        // between bounds, lo <= hi
	set     []any          // in/notIn members
	pattern *regexp.Regexp // regex, (?i) unless case sensitive
	err     error          // value issue reported on every evaluation
}

// Err returns the value issue found at compile time, if any.
func (r *CompiledRule) Err() error {
	return r.err
}

// CompiledGroup is an internal node of the arena.
type CompiledGroup struct {
	ID     types.GroupID
	Name   string
	Logic  types.Logic
	Order  int
	Rules  []int // indexes into CompiledRuleSet.Rules
	Groups []int // indexes into CompiledRuleSet.Groups
}

// CompiledRuleSet is a validated rule tree stored as an arena.
type CompiledRuleSet struct {
	Groups []CompiledGroup // preorder, Groups[0] is the root
	Rules  []CompiledRule
}

// Root returns the top-level group.
func (s *CompiledRuleSet) Root() *CompiledGroup {
	return &s.Groups[0]
}

// IndexUtilization is the fraction of rules reading an indexed field.
func (s *CompiledRuleSet) IndexUtilization() float64 {
	if len(s.Rules) == 0 {
		return 0
	}
	indexed := 0
	for i := range s.Rules {
		if s.Rules[i].Indexed {
			indexed++
		}
	}
	return float64(indexed) / float64(len(s.Rules))
}

// ValueResolver turns deferred rule values (reference, function, variable,
// calculation, dynamic) into static ones before evaluation.
type ValueResolver interface {
	ResolveValue(rule types.Rule) (any, error)
}

// CompileOptions carries the collaborators used while compiling.
type CompileOptions struct {
	Resolver ValueResolver
	Registry FieldRegistry
}

// Compile validates the tree structure and builds the evaluation arena.
// Returns *ValidationError (wrapping types.ErrValidation) on structural issues.
func Compile(root types.RuleGroup, opts CompileOptions) (*CompiledRuleSet, error) {
	c := newCompiler(opts)
	c.run(root)
	if issues := c.issuesAt(LevelStructural); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return c.set, nil
}

type compiler struct {
	opts       CompileOptions
	set        *CompiledRuleSet
	issues     []ValidationIssue
	seenGroups map[types.GroupID]bool
	onPath     map[types.GroupID]bool
	seenRules  map[types.RuleID]bool
}

func newCompiler(opts CompileOptions) *compiler {
	return &compiler{
		opts:       opts,
		set:        &CompiledRuleSet{},
		seenGroups: make(map[types.GroupID]bool),
		onPath:     make(map[types.GroupID]bool),
		seenRules:  make(map[types.RuleID]bool),
	}
}

func (c *compiler) run(root types.RuleGroup) {
	c.group(root, "root")
	if n := root.CountRules(); n > types.MaxRulesPerFolder {
		c.add(LevelStructural, "", "", "", fmt.Errorf("%w: %d > %d", types.ErrTooManyRules, n, types.MaxRulesPerFolder))
	}
}

func (c *compiler) add(level IssueLevel, ruleID types.RuleID, groupID types.GroupID, field string, err error) {
	c.issues = append(c.issues, ValidationIssue{
		Level:   level,
		RuleID:  ruleID,
		GroupID: groupID,
		Field:   field,
		Message: err.Error(),
		Err:     err,
	})
}

func (c *compiler) issuesAt(level IssueLevel) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range c.issues {
		if issue.Level == level {
			out = append(out, issue)
		}
	}
	return out
}

// group appends g and its subtree to the arena and returns its index, or -1
// when g cannot be linked (cycle or duplicate id).
func (c *compiler) group(g types.RuleGroup, fallbackID types.GroupID) int {
	id := g.ID
	if id == "" {
		id = fallbackID
	}
	if c.onPath[id] {
		c.add(LevelStructural, "", id, "", fmt.Errorf("%w: %s", types.ErrGroupCycle, id))
		return -1
	}
	if c.seenGroups[id] {
		c.add(LevelStructural, "", id, "", fmt.Errorf("%w: %s", types.ErrDuplicateGroup, id))
		return -1
	}
	c.seenGroups[id] = true
	c.onPath[id] = true
	defer delete(c.onPath, id)

	if !g.Logic.Valid() {
		c.add(LevelStructural, "", id, "", fmt.Errorf("%w: %q", types.ErrInvalidLogic, g.Logic))
	}
	if len(g.Rules) == 0 && len(g.Groups) == 0 {
		c.add(LevelWarning, "", id, "", fmt.Errorf("group %s is empty and always evaluates to %v", id, g.Logic != types.LogicOr && g.Logic != types.LogicNot))
	}

	gi := len(c.set.Groups)
	c.set.Groups = append(c.set.Groups, CompiledGroup{
		ID:    id,
		Name:  g.Name,
		Logic: g.Logic,
		Order: g.Order,
	})

	rules := append([]types.Rule(nil), g.Rules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Order < rules[j].Order })
	for i, r := range rules {
		if ri := c.rule(r, id, types.RuleID(fmt.Sprintf("%s/r%d", id, i))); ri >= 0 {
			c.set.Groups[gi].Rules = append(c.set.Groups[gi].Rules, ri)
		}
	}

	children := append([]types.RuleGroup(nil), g.Groups...)
	sort.SliceStable(children, func(i, j int) bool { return children[i].Order < children[j].Order })
	for i, child := range children {
		if ci := c.group(child, types.GroupID(fmt.Sprintf("%s/g%d", id, i))); ci >= 0 {
			c.set.Groups[gi].Groups = append(c.set.Groups[gi].Groups, ci)
		}
	}
	return gi
}

// rule appends r to the arena and returns its index, or -1 on structural issues.
func (c *compiler) rule(r types.Rule, groupID types.GroupID, fallbackID types.RuleID) int {
	id := r.ID
	if id == "" {
		id = fallbackID
	}
	if c.seenRules[id] {
		c.add(LevelStructural, id, groupID, r.Field, fmt.Errorf("%w: %s", types.ErrDuplicateRule, id))
		return -1
	}
	c.seenRules[id] = true

	if r.GroupID != "" && r.GroupID != groupID {
		c.add(LevelStructural, id, groupID, r.Field, fmt.Errorf("%w: rule %s names %s", types.ErrRuleGroupMismatch, id, r.GroupID))
		return -1
	}
	if !r.Operator.Valid() {
		c.add(LevelStructural, id, groupID, r.Field, fmt.Errorf("%w: %q", types.ErrInvalidOperator, r.Operator))
		return -1
	}

	cr := CompiledRule{
		ID:            id,
		GroupID:       groupID,
		Field:         r.Field,
		Operator:      r.Operator,
		CaseSensitive: r.CaseSensitive,
		Negate:        r.Negate,
		Active:        r.IsActive,
		Order:         r.Order,
	}

	path, err := ParseFieldPath(r.Field)
	if err != nil {
		cr.err = err
		c.add(LevelValue, id, groupID, r.Field, err)
	}
	cr.Path = path

	if len(c.opts.Registry) > 0 {
		def, ok := c.opts.Registry.Lookup(r.Field)
		switch {
		case !ok:
			c.add(LevelValue, id, groupID, r.Field, fmt.Errorf("%w: %s", types.ErrUnknownField, r.Field))
		case !def.Supports(r.Operator):
			c.add(LevelValue, id, groupID, r.Field, fmt.Errorf("%w: %s on %s field %s", types.ErrUnsupportedOperator, r.Operator, def.Type, r.Field))
		default:
			cr.Indexed = def.Indexed
			if !def.Indexed {
				c.add(LevelWarning, id, groupID, r.Field, fmt.Errorf("field %s is not indexed", r.Field))
			}
		}
	}
	if !r.IsActive {
		c.add(LevelWarning, id, groupID, r.Field, fmt.Errorf("rule %s is inactive and does not affect matching", id))
	}

	value := r.Value
	if !r.ValueType.IsStatic() {
		if c.opts.Resolver == nil {
			c.add(LevelStructural, id, groupID, r.Field, fmt.Errorf("%w: %s value", types.ErrUnresolvedValue, r.ValueType))
			return -1
		}
		resolved, err := c.opts.Resolver.ResolveValue(r)
		if err != nil {
			c.add(LevelStructural, id, groupID, r.Field, fmt.Errorf("%w: %v", types.ErrUnresolvedValue, err))
			return -1
		}
		value = resolved
	}

	if c.target(&cr, value) {
		return -1
	}

	idx := len(c.set.Rules)
	c.set.Rules = append(c.set.Rules, cr)
	return idx
}

// target normalizes the comparison value for cr.Operator. Returns true when
// a structural issue was recorded.
func (c *compiler) target(cr *CompiledRule, value any) bool {
	structural := func(err error) bool {
		c.add(LevelStructural, cr.ID, cr.GroupID, cr.Field, err)
		return true
	}
	invalid := func(err error) {
		if cr.err == nil {
			cr.err = err
		}
		c.add(LevelValue, cr.ID, cr.GroupID, cr.Field, err)
	}

	switch cr.Operator {
	case types.OpIsEmpty, types.OpIsNotEmpty, types.OpExists, types.OpNotExists:
		if value != nil {
			c.add(LevelWarning, cr.ID, cr.GroupID, cr.Field, fmt.Errorf("%s ignores its value", cr.Operator))
		}
		return false

	case types.OpBetween, types.OpNotBetween:
		bounds, ok := toList(value)
		if !ok || len(bounds) != 2 {
			return structural(fmt.Errorf("%w: %s needs exactly two values", types.ErrValueArity, cr.Operator))
		}
		lo, okLo := toNumber(bounds[0])
		hi, okHi := toNumber(bounds[1])
		if !okLo || !okHi {
			invalid(fmt.Errorf("%w: %s bounds must be numeric", types.ErrTypeMismatch, cr.Operator))
			return false
		}
		if lo > hi {
			c.add(LevelWarning, cr.ID, cr.GroupID, cr.Field, fmt.Errorf("%s bounds reversed, using [%v, %v]", cr.Operator, hi, lo))
			lo, hi = hi, lo
		}
		cr.lo, cr.hi = lo, hi
		return false

	case types.OpIn, types.OpNotIn:
		members, ok := toList(value)
		if !ok {
			return structural(fmt.Errorf("%w: %s needs a list", types.ErrValueArity, cr.Operator))
		}
		if len(members) > types.MaxInOperatorValues {
			return structural(fmt.Errorf("%w: %d > %d", types.ErrTooManyInValues, len(members), types.MaxInOperatorValues))
		}
		cr.set = members
		return false
	}

	if value == nil {
		return structural(fmt.Errorf("%w: %s needs a value", types.ErrValueArity, cr.Operator))
	}
	if _, isList := toList(value); isList {
		return structural(fmt.Errorf("%w: %s needs a single value", types.ErrValueArity, cr.Operator))
	}

	switch cr.Operator {
	case types.OpGreaterThan, types.OpGreaterThanOrEqual, types.OpLessThan, types.OpLessThanOrEqual:
		n, ok := toNumber(value)
		if !ok {
			invalid(fmt.Errorf("%w: %s needs a numeric value", types.ErrTypeMismatch, cr.Operator))
		}
		cr.num = n

	case types.OpContains, types.OpNotContains, types.OpStartsWith, types.OpEndsWith:
		s, ok := toText(value)
		if !ok {
			invalid(fmt.Errorf("%w: %s needs a text value", types.ErrTypeMismatch, cr.Operator))
		}
		cr.text = s

	case types.OpRegex:
		src, ok := toText(value)
		if !ok {
			invalid(fmt.Errorf("%w: regex needs a text pattern", types.ErrInvalidPattern))
			return false
		}
		if len(src) > types.MaxPatternLength {
			invalid(fmt.Errorf("%w: pattern longer than %d bytes", types.ErrInvalidPattern, types.MaxPatternLength))
			return false
		}
		if !cr.CaseSensitive {
			src = "(?i)" + src
		}
		re, err := regexp.Compile(src)
		if err != nil {
			invalid(fmt.Errorf("%w: %v", types.ErrInvalidPattern, err))
			return false
		}
		cr.pattern = re

	default:
		cr.value = value
	}
	return false
}
