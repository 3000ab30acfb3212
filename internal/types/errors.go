package types

import "errors"

// Sentinel errors for SmartFolder operations.
var (
	// ErrValidation is wrapped by every save-time validation failure.
	ErrValidation = errors.New("rule set validation failed")

	// ErrInvalidOperator indicates an operator outside the supported set.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrInvalidLogic indicates a group logic other than AND, OR or NOT.
	ErrInvalidLogic = errors.New("invalid group logic")

	// ErrValueArity indicates the wrong number of comparison values for an operator.
	ErrValueArity = errors.New("wrong number of values for operator")

	// ErrGroupCycle indicates a group that contains itself transitively.
	ErrGroupCycle = errors.New("rule group contains itself")

	// ErrDuplicateGroup indicates two groups sharing one id.
	ErrDuplicateGroup = errors.New("duplicate group id")

	// ErrDuplicateRule indicates two rules sharing one id.
	ErrDuplicateRule = errors.New("duplicate rule id")

	// ErrRuleGroupMismatch indicates a rule whose groupId names a different group than its parent.
	ErrRuleGroupMismatch = errors.New("rule groupId does not match enclosing group")

	// ErrUnknownField indicates a rule field absent from the field registry.
	ErrUnknownField = errors.New("unknown field")

	// ErrUnsupportedOperator indicates an operator the field definition does not allow.
	ErrUnsupportedOperator = errors.New("operator not supported for field")

	// ErrTooManyRules indicates a rule set exceeding MaxRulesPerFolder.
	ErrTooManyRules = errors.New("rule set has too many rules")

	// ErrTooManyInValues indicates an in/notIn list exceeding MaxInOperatorValues.
	ErrTooManyInValues = errors.New("in operator has too many values")

	// ErrUnresolvedValue indicates a deferred value with no resolver available.
	ErrUnresolvedValue = errors.New("rule value is not static and no resolver is configured")

	// ErrInvalidPattern indicates a regex rule whose pattern does not compile.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrTypeMismatch indicates a field value that cannot be coerced for the operator.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrTooManyWildcards indicates a field path exceeds MaxNestedWildcards.
	ErrTooManyWildcards = errors.New("field path has too many wildcards")

	// ErrInvalidFieldPath indicates a field name that does not parse as a path.
	ErrInvalidFieldPath = errors.New("invalid field path")

	// ErrFieldNotFound indicates a field path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrFolderNotFound indicates an unknown folder id.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrFolderReferenced indicates a delete of a folder still attached to the hierarchy.
	ErrFolderReferenced = errors.New("folder is referenced by a hierarchy node")

	// ErrNodeNotFound indicates an unknown hierarchy node id.
	ErrNodeNotFound = errors.New("hierarchy node not found")

	// ErrDocumentNotFound indicates an unknown document id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrNodeOccupied indicates an attach to a node that already holds a folder.
	ErrNodeOccupied = errors.New("hierarchy node already holds a folder")
)
