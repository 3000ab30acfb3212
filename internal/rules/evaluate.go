// internal/rules/evaluate.go
package rules

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/solatis/smartfolder/internal/types"
)

/*
 * Rule evaluation.
 *
 * Evaluates a compiled rule set against one document and produces a full
 * diagnostic trace. There is no short circuit: every leaf rule runs so the
 * trace can explain why a document matched or not.
 *
 * Evaluation flow:
 *   1. Each leaf: inactive -> vacuous true; compile issue -> error;
 *      resolve field -> compare -> negate
 *   2. Groups combined bottom-up over the preorder arena (reverse index
 *      order visits children before parents)
 *   3. Confidence = share of rules that evaluated without error
 *
 * Error policy: nothing raised inside a leaf escapes. Type mismatches,
 * malformed patterns, field access failures and panics from Document
 * implementations all become the rule's error string with matches=false.
 */

// Outcome is the result of evaluating one leaf rule.
type Outcome struct {
	Matches bool
	Err     error
}

// EvaluateRule applies a single rule to a resolved field value.
// found=false means the document has no such field.
func EvaluateRule(rule *CompiledRule, value any, found bool) Outcome {
	if !rule.Active {
		return Outcome{Matches: true}
	}
	if rule.err != nil {
		return Outcome{Err: rule.err}
	}
	matched, err := Compare(rule, value, found)
	if err != nil {
		// Negating an error is not meaningful; errors stay non-matching
		return Outcome{Err: err}
	}
	if rule.Negate {
		matched = !matched
	}
	return Outcome{Matches: matched}
}

// Combine applies a group's logic to the results of its direct children.
// Inactive rules do not take part. Missing entries count as false.
//
//	AND: all children true, vacuously true when empty
//	OR:  at least one child true, false when empty
//	NOT: inverted AND
func (s *CompiledRuleSet) Combine(g *CompiledGroup, ruleResults map[types.RuleID]bool, groupResults map[types.GroupID]bool) bool {
	all, some := true, false
	visit := func(v bool) {
		all = all && v
		some = some || v
	}
	for _, ri := range g.Rules {
		r := &s.Rules[ri]
		if !r.Active {
			continue
		}
		visit(ruleResults[r.ID])
	}
	for _, gi := range g.Groups {
		visit(groupResults[s.Groups[gi].ID])
	}

	switch g.Logic {
	case types.LogicOr:
		return some
	case types.LogicNot:
		return !all
	default:
		return all
	}
}

// evaluateLeaf resolves the rule's field on doc and applies the rule.
// Panics from the document accessor are converted into rule errors.
func evaluateLeaf(rule *CompiledRule, doc Document) (out Outcome) {
	if !rule.Active {
		return Outcome{Matches: true}
	}
	if rule.err != nil {
		return Outcome{Err: rule.err}
	}

	defer func() {
		if p := recover(); p != nil {
			out = Outcome{Err: fmt.Errorf("field access: panic: %v", p)}
		}
	}()

	value, found, err := lookupField(doc, rule.Field, rule.Path)
	if err != nil {
		return Outcome{Err: fmt.Errorf("field access: %w", err)}
	}
	return EvaluateRule(rule, value, found)
}

// lookupField prefers pre-parsed paths when the document supports them.
// ErrFieldNotFound is absence, not failure.
func lookupField(doc Document, field string, path []types.PathSegment) (any, bool, error) {
	var (
		value any
		found bool
		err   error
	)
	if pd, ok := doc.(PathDocument); ok && len(path) > 0 {
		value, found, err = pd.FieldPath(path)
	} else {
		value, found, err = doc.Field(field)
	}
	if errors.Is(err, types.ErrFieldNotFound) {
		return nil, false, nil
	}
	return value, found, err
}

// evaluateSet runs every rule of set against doc and combines the groups.
// now is sampled around each leaf for the per-rule timing.
func evaluateSet(set *CompiledRuleSet, doc Document, now func() time.Time) (bool, []types.RuleResult) {
	results := make([]types.RuleResult, len(set.Rules))
	ruleMatches := make(map[types.RuleID]bool, len(set.Rules))

	for i := range set.Rules {
		rule := &set.Rules[i]
		start := now()
		out := evaluateLeaf(rule, doc)
		results[i] = types.RuleResult{
			RuleID:         rule.ID,
			GroupID:        rule.GroupID,
			Order:          rule.Order,
			Matches:        out.Matches && out.Err == nil,
			EvaluationTime: now().Sub(start),
		}
		if out.Err != nil {
			results[i].Error = out.Err.Error()
		}
		ruleMatches[rule.ID] = results[i].Matches
	}

	if len(set.Groups) == 0 {
		return true, results
	}
	groupMatches := make(map[types.GroupID]bool, len(set.Groups))
	for gi := len(set.Groups) - 1; gi >= 0; gi-- {
		g := &set.Groups[gi]
		groupMatches[g.ID] = set.Combine(g, ruleMatches, groupMatches)
	}
	return groupMatches[set.Root().ID], results
}

// confidence is the share of rule results without error, rounded to two
// decimals. A rule set with no rules is fully confident.
func confidence(results []types.RuleResult) float64 {
	if len(results) == 0 {
		return 1
	}
	errored := 0
	for _, r := range results {
		if r.Error != "" {
			errored++
		}
	}
	c := 1 - float64(errored)/float64(len(results))
	return math.Round(c*100) / 100
}
