// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/smartfolder/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Compare applies a compiled rule's operator to one resolved field value.
 * Targets were normalized at compile time (numbers as float64, lists as
 * []any, regex precompiled), so Compare only coerces the field side.
 *
 * Absent fields: presence operators decide on absence directly. Positive
 * comparisons (equals, contains, numeric, in, regex) are false; the negative
 * forms notEquals, notContains and notIn are true. Numeric operators never
 * place an absent value inside or outside a range, so notBetween is false.
 *
 * List-valued fields (tags, reviewers) match equals, contains and in when
 * any element matches.
 */

// Compare applies the rule's operator to value. found=false means the
// document has no such field. Returns types.ErrTypeMismatch when the field
// cannot be coerced for the operator.
func Compare(rule *CompiledRule, value any, found bool) (bool, error) {
	present := found && value != nil

	switch rule.Operator {
	case types.OpExists:
		return present, nil
	case types.OpNotExists:
		return !present, nil
	case types.OpIsEmpty:
		return isEmptyValue(value, found), nil
	case types.OpIsNotEmpty:
		return !isEmptyValue(value, found), nil

	case types.OpEquals:
		return present && anyElement(value, func(v any) bool { return equalValues(v, rule.value, rule.CaseSensitive) }), nil
	case types.OpNotEquals:
		return !present || !anyElement(value, func(v any) bool { return equalValues(v, rule.value, rule.CaseSensitive) }), nil

	case types.OpIn:
		return present && anyElement(value, func(v any) bool { return inSet(v, rule.set, rule.CaseSensitive) }), nil
	case types.OpNotIn:
		return !present || !anyElement(value, func(v any) bool { return inSet(v, rule.set, rule.CaseSensitive) }), nil

	case types.OpContains:
		if !present {
			return false, nil
		}
		return compareContains(value, rule.text, rule.CaseSensitive)
	case types.OpNotContains:
		if !present {
			return true, nil
		}
		matched, err := compareContains(value, rule.text, rule.CaseSensitive)
		return !matched, err

	case types.OpStartsWith, types.OpEndsWith, types.OpRegex:
		if !present {
			return false, nil
		}
		s, ok := toText(value)
		if !ok {
			return false, types.ErrTypeMismatch
		}
		switch rule.Operator {
		case types.OpStartsWith:
			return strings.HasPrefix(fold(s, rule.CaseSensitive), fold(rule.text, rule.CaseSensitive)), nil
		case types.OpEndsWith:
			return strings.HasSuffix(fold(s, rule.CaseSensitive), fold(rule.text, rule.CaseSensitive)), nil
		default:
			return rule.pattern.MatchString(s), nil
		}

	case types.OpGreaterThan, types.OpGreaterThanOrEqual, types.OpLessThan,
		types.OpLessThanOrEqual, types.OpBetween, types.OpNotBetween:
		if !present {
			return false, nil
		}
		n, ok := toNumber(value)
		if !ok {
			return false, types.ErrTypeMismatch
		}
		return compareNumeric(rule, n), nil

	default:
		return false, types.ErrInvalidOperator
	}
}

// compareNumeric evaluates ordered comparisons. Ranges are inclusive.
func compareNumeric(rule *CompiledRule, n float64) bool {
	switch rule.Operator {
	case types.OpGreaterThan:
		return n > rule.num
	case types.OpGreaterThanOrEqual:
		return n >= rule.num
	case types.OpLessThan:
		return n < rule.num
	case types.OpLessThanOrEqual:
		return n <= rule.num
	case types.OpBetween:
		return n >= rule.lo && n <= rule.hi
	case types.OpNotBetween:
		return n < rule.lo || n > rule.hi
	default:
		return false
	}
}

// compareContains is substring search on scalars and membership on lists.
func compareContains(value any, target string, caseSensitive bool) (bool, error) {
	if list, ok := toList(value); ok {
		for _, elem := range list {
			if equalValues(elem, target, caseSensitive) {
				return true, nil
			}
		}
		return false, nil
	}
	s, ok := toText(value)
	if !ok {
		return false, types.ErrTypeMismatch
	}
	return strings.Contains(fold(s, caseSensitive), fold(target, caseSensitive)), nil
}

// equalValues compares two scalars. Numbers compare numerically when at least
// one side is a native number and both parse; strings compare with folding.
func equalValues(a, b any, caseSensitive bool) bool {
	_, aNative := nativeNumber(a)
	_, bNative := nativeNumber(b)
	if aNative || bNative {
		if na, ok := toNumber(a); ok {
			if nb, ok := toNumber(b); ok {
				return na == nb
			}
		}
	}
	ab, aBool := a.(bool)
	bb, bBool := b.(bool)
	if aBool || bBool {
		return aBool && bBool && ab == bb
	}
	as, aok := toText(a)
	bs, bok := toText(b)
	if !aok || !bok {
		return false
	}
	return fold(as, caseSensitive) == fold(bs, caseSensitive)
}

// inSet checks membership using equality semantics.
func inSet(value any, set []any, caseSensitive bool) bool {
	for _, elem := range set {
		if equalValues(value, elem, caseSensitive) {
			return true
		}
	}
	return false
}

// anyElement applies match to each element of a list value, or to value itself.
func anyElement(value any, match func(any) bool) bool {
	if list, ok := toList(value); ok {
		for _, elem := range list {
			if match(elem) {
				return true
			}
		}
		return false
	}
	return match(value)
}
