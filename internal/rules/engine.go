package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solatis/smartfolder/internal/types"
)

// ResultCache stores collection results keyed by folder generation and
// document-set fingerprint. Implemented by *cache.ResultCache.
type ResultCache interface {
	Get(key types.CacheKey, settings types.FolderSettings) (*types.SmartFolderResult, bool, error)
	Put(key types.CacheKey, settings types.FolderSettings, result *types.SmartFolderResult) error
	Invalidate(folderID types.FolderID)
}

// Recorder consumes evaluation outcomes. Implemented by *perf.Recorder.
type Recorder interface {
	Record(folderID types.FolderID, obs types.Observation, cacheHit bool)
}

// Folder is a smart folder with its rule set compiled for evaluation.
type Folder struct {
	ID         types.FolderID
	Name       string
	Generation int64
	Active     bool
	Settings   types.FolderSettings
	RuleSet    *CompiledRuleSet
}

// CompileFolder compiles f's rule set. Structural issues return *ValidationError.
func CompileFolder(f *types.SmartFolder, opts CompileOptions) (*Folder, error) {
	set, err := Compile(f.RuleSet, opts)
	if err != nil {
		return nil, fmt.Errorf("compile folder %s: %w", f.ID, err)
	}
	return &Folder{
		ID:         f.ID,
		Name:       f.Name,
		Generation: f.Generation,
		Active:     f.IsActive,
		Settings:   f.Settings,
		RuleSet:    set,
	}, nil
}

// Engine orchestrates rule evaluation for smart folders. The cache and
// recorder are optional; a zero-option Engine evaluates without either.
type Engine struct {
	cache    ResultCache
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables result caching for EvaluateCollection.
func WithCache(c ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithRecorder reports every evaluation to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithLogger sets the logger for cache and recording failures.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now, mainly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a new rules engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invalidate drops cached results for a folder.
func (e *Engine) Invalidate(folderID types.FolderID) {
	if e.cache != nil {
		e.cache.Invalidate(folderID)
	}
}

// EvaluateDocument evaluates folder against one document.
func (e *Engine) EvaluateDocument(folder *Folder, doc Document) types.DocumentEvaluation {
	ev := e.evaluate(folder, doc)
	e.record(folder.ID, &ev, false)
	return ev
}

func (e *Engine) evaluate(folder *Folder, doc Document) types.DocumentEvaluation {
	start := e.now()
	matches, results := evaluateSet(folder.RuleSet, doc, e.now)
	return types.DocumentEvaluation{
		DocumentID:     doc.ID(),
		FolderID:       folder.ID,
		Matches:        folder.Active && matches,
		RuleResults:    results,
		EvaluationTime: e.now().Sub(start),
		EvaluatedAt:    start.UTC(),
		Confidence:     confidence(results),
	}
}

// EvaluateCollection evaluates folder over docs, keeps the matches, sorts
// and paginates them. ctx is checked between documents; a cancelled scan
// returns ctx.Err() and no result.
func (e *Engine) EvaluateCollection(ctx context.Context, folder *Folder, docs []Document, q types.Query) (*types.SmartFolderResult, error) {
	q = q.Resolve(folder.Settings)
	key := types.CacheKey{
		FolderID:    folder.ID,
		Generation:  folder.Generation,
		Fingerprint: Fingerprint(docs, q),
	}

	if e.cache != nil {
		start := e.now()
		cached, ok, err := e.cache.Get(key, folder.Settings)
		switch {
		case err != nil:
			e.logger.Warn("result cache read failed, evaluating uncached",
				zap.String("folder_id", string(folder.ID)), zap.Error(err))
		case ok:
			cached.CacheUsed = true
			cached.EvaluationTime = e.now().Sub(start)
			e.record(folder.ID, cached, true)
			return cached, nil
		}
	}

	var sortPath []types.PathSegment
	if q.SortBy != "" {
		path, err := ParseFieldPath(q.SortBy)
		if err != nil {
			return nil, fmt.Errorf("sort field %q: %w", q.SortBy, err)
		}
		sortPath = path
	}

	start := e.now()
	result := &types.SmartFolderResult{
		FolderID:   folder.ID,
		Generation: folder.Generation,
		Query:      q,
		ExecutedAt: start.UTC(),
	}

	var matched []types.MatchedDocument
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev := e.evaluate(folder, doc)
		result.EvaluatedCount++
		if n := ev.ErrorCount(); n > 0 {
			result.Errors += n
			result.LastErr = ev.LastError()
		}
		if !ev.Matches {
			continue
		}
		md := types.MatchedDocument{DocumentID: ev.DocumentID, Evaluation: ev}
		if sortPath != nil {
			if v, found, err := sortValue(doc, q.SortBy, sortPath); err == nil && found {
				md.SortValue = snapshotValue(v)
			}
		}
		matched = append(matched, md)
	}

	sortMatches(matched, q.SortOrder)
	result.TotalCount = len(matched)
	result.Documents = paginate(matched, q.Offset, q.Limit)
	result.EvaluationTime = e.now().Sub(start)

	if e.cache != nil {
		if err := e.cache.Put(key, folder.Settings, result); err != nil {
			e.logger.Warn("result cache write failed",
				zap.String("folder_id", string(folder.ID)), zap.Error(err))
		}
	}
	e.record(folder.ID, result, false)
	return result, nil
}

func (e *Engine) record(folderID types.FolderID, obs types.Observation, cacheHit bool) {
	if e.recorder == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			e.logger.Warn("performance recording dropped",
				zap.String("folder_id", string(folderID)), zap.Any("panic", p))
		}
	}()
	e.recorder.Record(folderID, obs, cacheHit)
}

// sortValue reads the sort field, recovering from accessor panics.
func sortValue(doc Document, field string, path []types.PathSegment) (v any, found bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, found, err = nil, false, fmt.Errorf("panic: %v", p)
		}
	}()
	return lookupField(doc, field, path)
}

// snapshotValue converts v to the form it takes after a JSON round trip,
// with numbers as json.Number so large integers keep their digits. Results
// served from the cache then carry the same sort values as fresh ones.
// Values that cannot be encoded are returned unchanged.
func snapshotValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}

// sortMatches orders matches by SortValue. Numbers sort before text and
// compare numerically; text compares case-folded. Documents without a value
// go last in either direction. Ties keep evaluation order.
func sortMatches(matched []types.MatchedDocument, order types.SortOrder) {
	desc := order == types.SortDesc
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].SortValue, matched[j].SortValue
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		c := compareSortValues(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// compareSortValues is a total order: every number ranks below every
// non-numeric value.
func compareSortValues(a, b any) int {
	na, aNum := toNumber(a)
	nb, bNum := toNumber(b)
	switch {
	case aNum && bNum:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	case aNum:
		return -1
	case bNum:
		return 1
	}
	as, _ := toText(a)
	bs, _ := toText(b)
	return strings.Compare(strings.ToLower(as), strings.ToLower(bs))
}

// paginate returns the [offset, offset+limit) window; limit <= 0 is unbounded.
// The result is never nil so empty folders encode as [].
func paginate(matched []types.MatchedDocument, offset, limit int) []types.MatchedDocument {
	if offset >= len(matched) {
		return []types.MatchedDocument{}
	}
	end := len(matched)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	out := make([]types.MatchedDocument, end-offset)
	copy(out, matched[offset:end])
	return out
}
