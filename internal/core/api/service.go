// Package api provides the smart folder service and its gRPC surface.
package api

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/solatis/smartfolder/internal/core/config"
	"github.com/solatis/smartfolder/internal/perf"
	"github.com/solatis/smartfolder/internal/rules"
	"github.com/solatis/smartfolder/internal/types"
)

// FolderStore is the persistence the service needs. Implemented by *db.Store.
type FolderStore interface {
	SaveFolder(ctx context.Context, f types.SmartFolder) (*types.SmartFolder, error)
	GetFolder(ctx context.Context, id types.FolderID) (*types.SmartFolder, error)
	ListFolders(ctx context.Context) ([]*types.SmartFolder, error)
	DeleteFolder(ctx context.Context, id types.FolderID) error
	ListDocuments(ctx context.Context) ([]rules.Document, error)
}

// FolderService coordinates storage, compilation and evaluation of smart
// folders. Evaluations of one folder are serialized; different folders
// evaluate concurrently.
type FolderService struct {
	store    FolderStore
	engine   *rules.Engine
	recorder *perf.Recorder
	compile  rules.CompileOptions
	cfg      *config.ServiceConfig
	logger   *zap.Logger

	folderMutexes map[types.FolderID]*sync.Mutex
	mutexLock     sync.Mutex

	compiled   map[types.FolderID]*rules.Folder
	compiledMu sync.Mutex
}

// NewFolderService creates a service. engine should report to recorder so
// Performance reflects every evaluation.
func NewFolderService(store FolderStore, engine *rules.Engine, recorder *perf.Recorder, opts rules.CompileOptions, cfg *config.ServiceConfig, logger *zap.Logger) (*FolderService, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FolderService{
		store:         store,
		engine:        engine,
		recorder:      recorder,
		compile:       opts,
		cfg:           cfg,
		logger:        logger,
		folderMutexes: make(map[types.FolderID]*sync.Mutex),
		compiled:      make(map[types.FolderID]*rules.Folder),
	}, nil
}

// folderMutex returns the mutex for a folder, creating it if needed.
// Entries outlive deletion: a caller blocked on the old mutex must still
// exclude anyone arriving after the delete.
func (s *FolderService) folderMutex(id types.FolderID) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.folderMutexes[id]; !ok {
		s.folderMutexes[id] = &sync.Mutex{}
	}
	return s.folderMutexes[id]
}

// compiledFolder returns the compiled form of the stored folder, reusing the
// previous compilation while the generation is unchanged.
func (s *FolderService) compiledFolder(ctx context.Context, id types.FolderID) (*rules.Folder, error) {
	f, err := s.store.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}

	s.compiledMu.Lock()
	defer s.compiledMu.Unlock()
	if c, ok := s.compiled[id]; ok && c.Generation == f.Generation {
		return c, nil
	}

	c, err := rules.CompileFolder(f, s.compile)
	if err != nil {
		return nil, err
	}
	s.compiled[id] = c
	s.recorder.SetIndexUtilization(id, c.RuleSet.IndexUtilization())
	s.logger.Debug("compiled folder",
		zap.String("folder_id", string(id)),
		zap.Int64("generation", c.Generation),
		zap.Int("rules", len(c.RuleSet.Rules)))
	return c, nil
}

func (s *FolderService) forget(id types.FolderID) {
	s.engine.Invalidate(id)
	s.compiledMu.Lock()
	delete(s.compiled, id)
	s.compiledMu.Unlock()
}

// ValidateFolder reports structural, value and registry issues without saving.
func (s *FolderService) ValidateFolder(f types.SmartFolder) rules.ValidationResult {
	return rules.Validate(f.RuleSet, s.compile)
}

// SaveFolder validates and stores f, then drops cached results of the
// previous generation. Folders saved without settings get the defaults,
// capped by the configured document limit.
func (s *FolderService) SaveFolder(ctx context.Context, f types.SmartFolder) (*types.SmartFolder, error) {
	if f.Settings == (types.FolderSettings{}) {
		f.Settings = types.DefaultFolderSettings()
	}
	if f.Settings.MaxDocuments <= 0 || f.Settings.MaxDocuments > s.cfg.MaxDocuments {
		f.Settings.MaxDocuments = s.cfg.MaxDocuments
	}

	if f.ID != "" {
		mu := s.folderMutex(f.ID)
		mu.Lock()
		defer mu.Unlock()
	}

	saved, err := s.store.SaveFolder(ctx, f)
	if err != nil {
		return nil, err
	}
	s.forget(saved.ID)

	s.logger.Info("saved folder",
		zap.String("folder_id", string(saved.ID)),
		zap.String("name", saved.Name),
		zap.Int64("generation", saved.Generation))
	return saved, nil
}

// DeleteFolder removes a folder that no hierarchy node references.
func (s *FolderService) DeleteFolder(ctx context.Context, id types.FolderID) error {
	mu := s.folderMutex(id)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.DeleteFolder(ctx, id); err != nil {
		return err
	}
	s.forget(id)
	s.recorder.Forget(id)

	s.logger.Info("deleted folder", zap.String("folder_id", string(id)))
	return nil
}

// EvaluateFolder evaluates the folder over every stored document.
func (s *FolderService) EvaluateFolder(ctx context.Context, id types.FolderID, q types.Query) (*types.SmartFolderResult, error) {
	mu := s.folderMutex(id)
	mu.Lock()
	defer mu.Unlock()

	folder, err := s.compiledFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.EvaluateCollection(ctx, folder, docs, q)
	if err != nil {
		return nil, err
	}
	if result.ErrorCount() > 0 {
		s.logger.Warn("folder evaluated with rule errors",
			zap.String("folder_id", string(id)),
			zap.Int("errors", result.ErrorCount()),
			zap.String("last_error", result.LastError()))
	}
	return result, nil
}

// EvaluateDocument evaluates one document against a stored folder.
func (s *FolderService) EvaluateDocument(ctx context.Context, id types.FolderID, doc rules.Document) (*types.DocumentEvaluation, error) {
	mu := s.folderMutex(id)
	mu.Lock()
	defer mu.Unlock()

	folder, err := s.compiledFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	ev := s.engine.EvaluateDocument(folder, doc)
	return &ev, nil
}

// Performance returns the folder's rolling statistics. A folder that was
// never evaluated reports zero values.
func (s *FolderService) Performance(ctx context.Context, id types.FolderID) (types.FolderPerformance, error) {
	if _, err := s.compiledFolder(ctx, id); err != nil {
		return types.FolderPerformance{}, err
	}
	p, _ := s.recorder.Snapshot(id)
	return p, nil
}

// ListFolders returns every stored folder.
func (s *FolderService) ListFolders(ctx context.Context) ([]*types.SmartFolder, error) {
	return s.store.ListFolders(ctx)
}
