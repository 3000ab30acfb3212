package types

import "time"

// RuleResult is the diagnostic trace entry for one leaf rule.
type RuleResult struct {
	RuleID         RuleID        `json:"ruleId"`
	GroupID        GroupID       `json:"groupId,omitempty"`
	Order          int           `json:"order"`
	Matches        bool          `json:"matches"`
	EvaluationTime time.Duration `json:"evaluationTime"`
	Error          string        `json:"error,omitempty"`
}

// DocumentEvaluation is the verdict for one document against one folder.
// Produced fresh per evaluation and never mutated afterwards.
type DocumentEvaluation struct {
	DocumentID     DocumentID    `json:"documentId"`
	FolderID       FolderID      `json:"folderId"`
	Matches        bool          `json:"matches"`
	RuleResults    []RuleResult  `json:"ruleResults"`
	EvaluationTime time.Duration `json:"evaluationTime"`
	EvaluatedAt    time.Time     `json:"evaluatedAt"`
	Confidence     float64       `json:"confidence"`
}

// ErrorCount returns the number of rule results carrying an error.
func (e *DocumentEvaluation) ErrorCount() int {
	n := 0
	for _, r := range e.RuleResults {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// LastError returns the last rule error in trace order, or "".
func (e *DocumentEvaluation) LastError() string {
	for i := len(e.RuleResults) - 1; i >= 0; i-- {
		if e.RuleResults[i].Error != "" {
			return e.RuleResults[i].Error
		}
	}
	return ""
}

// Elapsed implements Observation.
func (e *DocumentEvaluation) Elapsed() time.Duration {
	return e.EvaluationTime
}

// MatchedDocument is one entry of a collection result.
type MatchedDocument struct {
	DocumentID DocumentID         `json:"documentId"`
	SortValue  any                `json:"sortValue,omitempty"`
	Evaluation DocumentEvaluation `json:"evaluation"`
}

// SmartFolderResult is the outcome of evaluating a folder over a document set.
type SmartFolderResult struct {
	FolderID       FolderID          `json:"folderId"`
	Generation     int64             `json:"generation"`
	Documents      []MatchedDocument `json:"documents"`
	TotalCount     int               `json:"totalCount"`
	EvaluatedCount int               `json:"evaluatedCount"`
	Errors         int               `json:"errorCount"`
	LastErr        string            `json:"lastError,omitempty"`
	EvaluationTime time.Duration     `json:"evaluationTime"`
	CacheUsed      bool              `json:"cacheUsed"`
	Query          Query             `json:"query"`
	ExecutedAt     time.Time         `json:"executedAt"`
}

// ErrorCount implements Observation.
func (r *SmartFolderResult) ErrorCount() int { return r.Errors }

// LastError implements Observation.
func (r *SmartFolderResult) LastError() string { return r.LastErr }

// Elapsed implements Observation.
func (r *SmartFolderResult) Elapsed() time.Duration { return r.EvaluationTime }

// Observation is what the performance recorder consumes.
// Implemented by *DocumentEvaluation and *SmartFolderResult.
type Observation interface {
	Elapsed() time.Duration
	ErrorCount() int
	LastError() string
}

// FolderPerformance is the running aggregate kept per folder.
type FolderPerformance struct {
	AverageEvaluationTime time.Duration `json:"averageEvaluationTime"`
	LastEvaluationTime    time.Duration `json:"lastEvaluationTime"`
	TotalEvaluations      int64         `json:"totalEvaluations"`
	SuccessRate           float64       `json:"successRate"`
	ErrorCount            int64         `json:"errorCount"`
	LastError             string        `json:"lastError,omitempty"`
	IndexUtilization      float64       `json:"indexUtilization"`
	CacheHitRate          float64       `json:"cacheHitRate"`
}

// CacheKey identifies a cached collection result.
// Generation makes every rule or settings edit miss implicitly.
type CacheKey struct {
	FolderID    FolderID
	Generation  int64
	Fingerprint string
}
