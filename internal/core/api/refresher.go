package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/smartfolder/internal/types"
)

// Refresher re-evaluates active folders whose auto refresh interval has
// elapsed, so cached results stay warm.
type Refresher struct {
	service     *FolderService
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	lastRun map[types.FolderID]time.Time
}

// NewRefresher creates a refresher that checks folders every interval and
// evaluates at most concurrency folders at once.
func NewRefresher(service *FolderService, interval time.Duration, concurrency int, logger *zap.Logger) *Refresher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		service:     service,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
		lastRun:     make(map[types.FolderID]time.Time),
	}
}

// Run refreshes due folders on every tick until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RefreshDue(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("refresh pass failed", zap.Error(err))
			}
		}
	}
}

// due returns the active folders whose refresh interval elapsed since their
// last run. Folders never run before are due immediately.
func (r *Refresher) due(folders []*types.SmartFolder) []types.FolderID {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []types.FolderID
	seen := make(map[types.FolderID]bool, len(folders))
	for _, f := range folders {
		seen[f.ID] = true
		every := f.Settings.RefreshEvery()
		if !f.IsActive || every == 0 {
			continue
		}
		if last, ok := r.lastRun[f.ID]; ok && now.Sub(last) < every {
			continue
		}
		r.lastRun[f.ID] = now
		ids = append(ids, f.ID)
	}
	for id := range r.lastRun {
		if !seen[id] {
			delete(r.lastRun, id)
		}
	}
	return ids
}

// RefreshDue evaluates every due folder and returns how many succeeded.
// A failing folder is logged and does not stop the others.
func (r *Refresher) RefreshDue(ctx context.Context) (int, error) {
	folders, err := r.service.ListFolders(ctx)
	if err != nil {
		return 0, err
	}
	ids := r.due(folders)
	if len(ids) == 0 {
		return 0, nil
	}

	var (
		mu        sync.Mutex
		refreshed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			result, err := r.service.EvaluateFolder(gctx, id, types.Query{})
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				r.logger.Warn("folder refresh failed", zap.String("folder_id", string(id)), zap.Error(err))
				return nil
			}
			r.logger.Debug("refreshed folder",
				zap.String("folder_id", string(id)),
				zap.Int("matches", result.TotalCount),
				zap.Bool("cache_used", result.CacheUsed),
				zap.Duration("elapsed", result.EvaluationTime))
			mu.Lock()
			refreshed++
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return refreshed, err
}
