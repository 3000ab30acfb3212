package api

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/solatis/smartfolder/internal/cache"
	"github.com/solatis/smartfolder/internal/core/config"
	"github.com/solatis/smartfolder/internal/core/db"
	"github.com/solatis/smartfolder/internal/perf"
	"github.com/solatis/smartfolder/internal/rules"
	"github.com/solatis/smartfolder/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEnv struct {
	store    *db.Store
	cache    *cache.ResultCache
	recorder *perf.Recorder
	service  *FolderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if _, err := db.MigrateUp(ctx, database, zap.NewNop()); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	opts := rules.CompileOptions{Registry: rules.DefaultFieldRegistry()}
	store, err := db.NewStore(database, opts)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	results := cache.New()
	recorder := perf.NewRecorder(zap.NewNop())
	engine := rules.NewEngine(rules.WithCache(results), rules.WithRecorder(recorder))
	cfg := config.DefaultServiceConfig()

	service, err := NewFolderService(store, engine, recorder, opts, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFolderService failed: %v", err)
	}
	return &testEnv{store: store, cache: results, recorder: recorder, service: service}
}

func approvedFolder() types.SmartFolder {
	return types.SmartFolder{
		Name:     "Approved",
		IsActive: true,
		Settings: types.FolderSettings{
			CacheResults:  true,
			CacheDuration: 5,
			MaxDocuments:  100,
			SortBy:        "documentCount",
			SortOrder:     types.SortDesc,
		},
		RuleSet: types.RuleGroup{
			ID:    "root",
			Logic: types.LogicAnd,
			Rules: []types.Rule{
				{ID: "r1", Field: "status", Operator: types.OpEquals, Value: "approved", IsActive: true},
			},
		},
	}
}

func (e *testEnv) putDocuments(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		status := "approved"
		if i%2 == 1 {
			status = "draft"
		}
		err := e.store.PutDocument(context.Background(), types.DocumentID(fmt.Sprintf("doc-%02d", i)), map[string]any{
			"status":        status,
			"documentCount": i,
		})
		if err != nil {
			t.Fatalf("PutDocument failed: %v", err)
		}
	}
}

func TestNewFolderService_NilArguments(t *testing.T) {
	env := newTestEnv(t)
	engine := rules.NewEngine()
	cfg := config.DefaultServiceConfig()

	if _, err := NewFolderService(nil, engine, env.recorder, rules.CompileOptions{}, cfg, nil); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewFolderService(env.store, nil, env.recorder, rules.CompileOptions{}, cfg, nil); err == nil {
		t.Error("expected error for nil engine")
	}
	if _, err := NewFolderService(env.store, engine, nil, rules.CompileOptions{}, cfg, nil); err == nil {
		t.Error("expected error for nil recorder")
	}
	if _, err := NewFolderService(env.store, engine, env.recorder, rules.CompileOptions{}, nil, nil); err == nil {
		t.Error("expected error for nil cfg")
	}
}

func TestFolderService_EvaluateFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.putDocuments(t, 10)

	saved, err := env.service.SaveFolder(ctx, approvedFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}

	result, err := env.service.EvaluateFolder(ctx, saved.ID, types.Query{Limit: 3})
	if err != nil {
		t.Fatalf("EvaluateFolder failed: %v", err)
	}
	if result.TotalCount != 5 || result.EvaluatedCount != 10 {
		t.Errorf("got total=%d evaluated=%d, want 5 and 10", result.TotalCount, result.EvaluatedCount)
	}
	var ids []types.DocumentID
	for _, d := range result.Documents {
		ids = append(ids, d.DocumentID)
	}
	want := []types.DocumentID{"doc-08", "doc-06", "doc-04"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("documents = %v, want %v", ids, want)
	}
	if result.CacheUsed {
		t.Error("first evaluation should not use the cache")
	}

	again, err := env.service.EvaluateFolder(ctx, saved.ID, types.Query{Limit: 3})
	if err != nil {
		t.Fatalf("second EvaluateFolder failed: %v", err)
	}
	if !again.CacheUsed {
		t.Error("second evaluation should be served from the cache")
	}

	stats, err := env.service.Performance(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Performance failed: %v", err)
	}
	if stats.TotalEvaluations != 2 || stats.CacheHitRate != 0.5 {
		t.Errorf("performance = %+v, want 2 evaluations and hit rate 0.5", stats)
	}
	if stats.IndexUtilization != 1 {
		t.Errorf("IndexUtilization = %v, want 1 (status is indexed)", stats.IndexUtilization)
	}
}

func TestFolderService_SaveInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.putDocuments(t, 4)

	saved, err := env.service.SaveFolder(ctx, approvedFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	if _, err := env.service.EvaluateFolder(ctx, saved.ID, types.Query{}); err != nil {
		t.Fatalf("EvaluateFolder failed: %v", err)
	}
	if env.cache.Len() != 1 {
		t.Fatalf("cache entries = %d, want 1", env.cache.Len())
	}

	edited := *saved
	edited.RuleSet.Rules[0].Value = "draft"
	updated, err := env.service.SaveFolder(ctx, edited)
	if err != nil {
		t.Fatalf("SaveFolder (update) failed: %v", err)
	}
	if updated.Generation != saved.Generation+1 {
		t.Errorf("generation = %d, want %d", updated.Generation, saved.Generation+1)
	}
	if env.cache.Len() != 0 {
		t.Errorf("cache entries after save = %d, want 0", env.cache.Len())
	}

	result, err := env.service.EvaluateFolder(ctx, saved.ID, types.Query{})
	if err != nil {
		t.Fatalf("EvaluateFolder failed: %v", err)
	}
	if result.CacheUsed || result.Generation != updated.Generation {
		t.Errorf("got cacheUsed=%v generation=%d, want fresh result at generation %d",
			result.CacheUsed, result.Generation, updated.Generation)
	}
	for _, d := range result.Documents {
		if !d.Evaluation.RuleResults[0].Matches {
			t.Errorf("document %s listed without matching", d.DocumentID)
		}
	}
	if result.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2 drafts", result.TotalCount)
	}
}

func TestFolderService_SaveAppliesDefaults(t *testing.T) {
	env := newTestEnv(t)
	f := approvedFolder()
	f.Settings = types.FolderSettings{}

	saved, err := env.service.SaveFolder(context.Background(), f)
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	want := types.DefaultFolderSettings()
	if saved.Settings != want {
		t.Errorf("settings = %+v, want %+v", saved.Settings, want)
	}
}

func TestFolderService_SaveCapsMaxDocuments(t *testing.T) {
	env := newTestEnv(t)
	f := approvedFolder()
	f.Settings.MaxDocuments = 50000

	saved, err := env.service.SaveFolder(context.Background(), f)
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	if saved.Settings.MaxDocuments != 1000 {
		t.Errorf("MaxDocuments = %d, want 1000", saved.Settings.MaxDocuments)
	}
}

func TestFolderService_SaveRejectsInvalidRules(t *testing.T) {
	env := newTestEnv(t)
	f := approvedFolder()
	f.RuleSet.Rules[0].Field = "nonexistent"

	_, err := env.service.SaveFolder(context.Background(), f)
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestFolderService_DeleteFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.putDocuments(t, 2)

	saved, err := env.service.SaveFolder(ctx, approvedFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	if _, err := env.service.EvaluateFolder(ctx, saved.ID, types.Query{}); err != nil {
		t.Fatalf("EvaluateFolder failed: %v", err)
	}

	if err := env.service.DeleteFolder(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteFolder failed: %v", err)
	}
	if _, ok := env.recorder.Snapshot(saved.ID); ok {
		t.Error("recorder still holds stats for deleted folder")
	}
	if env.cache.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", env.cache.Len())
	}
	if _, err := env.service.EvaluateFolder(ctx, saved.ID, types.Query{}); !errors.Is(err, types.ErrFolderNotFound) {
		t.Errorf("expected ErrFolderNotFound after delete, got %v", err)
	}
}

func TestFolderService_DeleteKeepsFolderMutex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	saved, err := env.service.SaveFolder(ctx, approvedFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	before := env.service.folderMutex(saved.ID)

	// A save queued behind the delete holds the same mutex as any caller
	// arriving afterwards.
	before.Lock()
	deleted := make(chan error, 1)
	go func() { deleted <- env.service.DeleteFolder(ctx, saved.ID) }()
	queued := make(chan error, 1)
	go func() {
		_, err := env.service.SaveFolder(ctx, *saved)
		queued <- err
	}()
	before.Unlock()

	if err := <-deleted; err != nil {
		t.Fatalf("DeleteFolder failed: %v", err)
	}
	if err := <-queued; err != nil {
		t.Fatalf("queued SaveFolder failed: %v", err)
	}
	if after := env.service.folderMutex(saved.ID); after != before {
		t.Error("folder mutex replaced after delete")
	}
}

func TestFolderService_DeleteReferencedFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	saved, err := env.service.SaveFolder(ctx, approvedFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	node, err := env.store.SaveNode(ctx, types.HierarchyNode{Name: "Finance"})
	if err != nil {
		t.Fatalf("SaveNode failed: %v", err)
	}
	if err := env.store.AttachFolder(ctx, node.ID, saved.ID); err != nil {
		t.Fatalf("AttachFolder failed: %v", err)
	}

	if err := env.service.DeleteFolder(ctx, saved.ID); !errors.Is(err, types.ErrFolderReferenced) {
		t.Errorf("expected ErrFolderReferenced, got %v", err)
	}
}

func TestFolderService_EvaluateDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	saved, err := env.service.SaveFolder(ctx, approvedFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}

	ev, err := env.service.EvaluateDocument(ctx, saved.ID, rules.NewMapDocument("d1", map[string]any{"status": "Approved"}))
	if err != nil {
		t.Fatalf("EvaluateDocument failed: %v", err)
	}
	if !ev.Matches || ev.Confidence != 1 {
		t.Errorf("got matches=%v confidence=%v, want true and 1", ev.Matches, ev.Confidence)
	}
	if ev.FolderID != saved.ID {
		t.Errorf("FolderID = %s, want %s", ev.FolderID, saved.ID)
	}
}

func TestFolderService_PerformanceUnknownFolder(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.service.Performance(context.Background(), "missing"); !errors.Is(err, types.ErrFolderNotFound) {
		t.Errorf("expected ErrFolderNotFound, got %v", err)
	}
}

func TestFolderService_ValidateFolder(t *testing.T) {
	env := newTestEnv(t)
	f := approvedFolder()
	f.RuleSet.Rules = append(f.RuleSet.Rules, types.Rule{
		ID: "r2", Field: "pageCount", Operator: types.OpBetween, Value: []any{1.0}, IsActive: true,
	})

	result := env.service.ValidateFolder(f)
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if len(result.Errors) != 1 || result.Errors[0].RuleID != "r2" {
		t.Errorf("errors = %+v, want one issue on r2", result.Errors)
	}
}

func TestFolderService_ConcurrentEvaluations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.putDocuments(t, 6)

	var ids []types.FolderID
	for i := 0; i < 3; i++ {
		f := approvedFolder()
		f.Name = fmt.Sprintf("folder %d", i)
		saved, err := env.service.SaveFolder(ctx, f)
		if err != nil {
			t.Fatalf("SaveFolder failed: %v", err)
		}
		ids = append(ids, saved.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.service.EvaluateFolder(ctx, ids[i%len(ids)], types.Query{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("EvaluateFolder failed: %v", err)
	}

	for _, id := range ids {
		p, ok := env.recorder.Snapshot(id)
		if !ok || p.TotalEvaluations != 10 {
			t.Errorf("folder %s: evaluations = %d, want 10", id, p.TotalEvaluations)
		}
	}
}

func TestFolderService_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	env.putDocuments(t, 2)
	saved, err := env.service.SaveFolder(context.Background(), approvedFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if _, err := env.service.EvaluateFolder(ctx, saved.ID, types.Query{}); err == nil {
		t.Error("expected error for expired context")
	}
}
