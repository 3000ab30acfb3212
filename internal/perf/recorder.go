// Package perf keeps rolling evaluation statistics per smart folder.
package perf

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solatis/smartfolder/internal/types"
)

// folderStats is the mutable aggregate behind one folder's FolderPerformance.
// mu serializes every update for the folder.
type folderStats struct {
	mu        sync.Mutex
	perf      types.FolderPerformance
	avgNanos  float64
	successes int64
	hits      int64
}

// Recorder aggregates evaluation observations. Different folders record
// concurrently; updates to one folder are serialized.
type Recorder struct {
	folders sync.Map // types.FolderID -> *folderStats
	logger  *zap.Logger
}

// NewRecorder creates an empty recorder. A nil logger discards output.
func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger}
}

func (r *Recorder) stats(folderID types.FolderID) *folderStats {
	if s, ok := r.folders.Load(folderID); ok {
		return s.(*folderStats)
	}
	s, _ := r.folders.LoadOrStore(folderID, &folderStats{})
	return s.(*folderStats)
}

// Record folds one observation into the folder's aggregate. It never panics;
// a failing observation is logged and dropped.
func (r *Recorder) Record(folderID types.FolderID, obs types.Observation, cacheHit bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("dropping performance sample",
				zap.String("folder_id", string(folderID)), zap.Any("panic", p))
		}
	}()

	elapsed := obs.Elapsed()
	errCount := obs.ErrorCount()
	lastErr := obs.LastError()

	s := r.stats(folderID)
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.perf
	p.TotalEvaluations++
	n := float64(p.TotalEvaluations)
	s.avgNanos += (float64(elapsed) - s.avgNanos) / n
	p.AverageEvaluationTime = time.Duration(s.avgNanos)
	p.LastEvaluationTime = elapsed

	if errCount > 0 {
		p.ErrorCount++
		if lastErr != "" {
			p.LastError = lastErr
		}
	} else {
		s.successes++
	}
	if cacheHit {
		s.hits++
	}
	p.SuccessRate = float64(s.successes) / n
	p.CacheHitRate = float64(s.hits) / n
}

// SetIndexUtilization stores the share of indexed rules for a folder,
// computed when its rule set is compiled.
func (r *Recorder) SetIndexUtilization(folderID types.FolderID, ratio float64) {
	s := r.stats(folderID)
	s.mu.Lock()
	s.perf.IndexUtilization = ratio
	s.mu.Unlock()
}

// Snapshot returns a copy of the folder's aggregate. ok is false when
// nothing was recorded for the folder.
func (r *Recorder) Snapshot(folderID types.FolderID) (types.FolderPerformance, bool) {
	v, ok := r.folders.Load(folderID)
	if !ok {
		return types.FolderPerformance{}, false
	}
	s := v.(*folderStats)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perf, true
}

// Snapshots returns copies of every folder's aggregate.
func (r *Recorder) Snapshots() map[types.FolderID]types.FolderPerformance {
	out := make(map[types.FolderID]types.FolderPerformance)
	r.folders.Range(func(k, _ any) bool {
		if p, ok := r.Snapshot(k.(types.FolderID)); ok {
			out[k.(types.FolderID)] = p
		}
		return true
	})
	return out
}

// Forget drops the aggregate of a deleted folder.
func (r *Recorder) Forget(folderID types.FolderID) {
	r.folders.Delete(folderID)
}
