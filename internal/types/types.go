// Package types provides domain models shared across SmartFolder components.
//
// Zero-dependency design: everything except ids.go uses only the standard
// library so the rule model can be embedded by ingestion pipelines without
// pulling in storage or transport packages.
//
// Separation from the engine: types here describe what a user saved (rule
// trees, folder settings) and what the engine produced (evaluations, results,
// performance). Compiled forms live in internal/rules.
package types

// FolderID represents a UUIDv7 smart folder identifier.
// String alias enables type safety while maintaining JSON string serialization.
type FolderID string

// RuleID identifies a single rule within a folder's rule set.
type RuleID string

// GroupID identifies a rule group within a folder's rule set.
type GroupID string

// DocumentID identifies a document. The engine never interprets it.
type DocumentID string

// NodeID identifies a folder hierarchy node.
type NodeID string

// Resource limits enforced at save time to keep evaluation bounded.
const (
	// MaxRulesPerFolder caps leaf rules across the whole tree.
	// 256 rules covers hand-built folders with room for generated ones.
	MaxRulesPerFolder = 256

	// MaxInOperatorValues limits in/notIn list size to bound membership scans.
	MaxInOperatorValues = 256

	// MaxPathDepth prevents unbounded recursion during field path resolution.
	MaxPathDepth = 16

	// MaxNestedWildcards limits wildcard expansion in field paths.
	MaxNestedWildcards = 2

	// MaxPatternLength bounds regex source size accepted for regex rules.
	MaxPatternLength = 1024
)
