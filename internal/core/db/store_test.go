package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/solatis/smartfolder/internal/rules"
	"github.com/solatis/smartfolder/internal/types"
)

// openTestDB opens a migrated sqlite database in a temp dir.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	database, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if _, err := MigrateUp(ctx, database, zap.NewNop()); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	return database
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(openTestDB(t), rules.CompileOptions{Registry: rules.DefaultFieldRegistry()})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func invoicesFolder() types.SmartFolder {
	return types.SmartFolder{
		Name:     "Approved invoices",
		IsActive: true,
		Settings: types.DefaultFolderSettings(),
		RuleSet: types.RuleGroup{
			ID:    "root",
			Logic: types.LogicAnd,
			Rules: []types.Rule{
				{ID: "r1", Field: "status", Operator: types.OpEquals, Value: "approved", IsActive: true},
				{ID: "r2", Field: "pageCount", Operator: types.OpBetween, Value: []any{1.0, 10.0}, IsActive: true},
			},
		},
	}
}

func TestStore_SaveAndGetFolder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	saved, err := store.SaveFolder(ctx, invoicesFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	if saved.ID == "" || saved.Generation != 1 {
		t.Fatalf("expected new folder at generation 1, got id=%q generation=%d", saved.ID, saved.Generation)
	}

	got, err := store.GetFolder(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetFolder failed: %v", err)
	}
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Errorf("folder mismatch (-saved +got):\n%s", diff)
	}
	if got.RuleSet.Rules[1].Value.([]any)[1] != 10.0 {
		t.Errorf("rule value not preserved: %#v", got.RuleSet.Rules[1].Value)
	}
}

func TestStore_SaveFolderBumpsGeneration(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.SaveFolder(ctx, invoicesFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}

	edit := *first
	edit.Settings.CacheDuration = 15
	second, err := store.SaveFolder(ctx, edit)
	if err != nil {
		t.Fatalf("SaveFolder (update) failed: %v", err)
	}
	if second.Generation != 2 {
		t.Errorf("expected generation 2 after update, got %d", second.Generation)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed on update: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Settings.CacheDuration != 15 {
		t.Errorf("settings not updated: %+v", second.Settings)
	}
}

func TestStore_SaveFolderRejectsInvalidRules(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	folder := invoicesFolder()
	folder.RuleSet.Rules = append(folder.RuleSet.Rules, types.Rule{
		ID: "r3", Field: "barcode", Operator: types.OpRegex, Value: "([", IsActive: true,
	})

	_, err := store.SaveFolder(ctx, folder)
	if !errors.Is(err, types.ErrValidation) || !errors.Is(err, types.ErrInvalidPattern) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *rules.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *rules.ValidationError, got %T", err)
	}

	folders, err := store.ListFolders(ctx)
	if err != nil {
		t.Fatalf("ListFolders failed: %v", err)
	}
	if len(folders) != 0 {
		t.Errorf("invalid folder was stored: %+v", folders)
	}

	folder = invoicesFolder()
	folder.Name = "  "
	if _, err := store.SaveFolder(ctx, folder); !errors.Is(err, types.ErrValidation) {
		t.Errorf("expected validation error for blank name, got %v", err)
	}
}

func TestStore_SaveFolderAssignsRuleIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	folder := invoicesFolder()
	folder.RuleSet.ID = ""
	folder.RuleSet.Rules[1].ID = ""
	folder.RuleSet.Groups = []types.RuleGroup{{Logic: types.LogicOr, Rules: []types.Rule{
		{Field: "status", Operator: types.OpExists, IsActive: true},
	}}}

	saved, err := store.SaveFolder(ctx, folder)
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	if saved.RuleSet.ID == "" || saved.RuleSet.Groups[0].ID == "" {
		t.Errorf("groups saved without ids: %+v", saved.RuleSet)
	}
	if saved.RuleSet.Rules[0].ID != "r1" {
		t.Errorf("existing rule id changed to %q", saved.RuleSet.Rules[0].ID)
	}
	if saved.RuleSet.Rules[1].ID == "" || saved.RuleSet.Groups[0].Rules[0].ID == "" {
		t.Errorf("rules saved without ids: %+v", saved.RuleSet)
	}
	if folder.RuleSet.Rules[1].ID != "" {
		t.Errorf("caller's rule set was modified")
	}

	// Ids survive a resave unchanged.
	again, err := store.SaveFolder(ctx, *saved)
	if err != nil {
		t.Fatalf("SaveFolder (resave) failed: %v", err)
	}
	if diff := cmp.Diff(saved.RuleSet, again.RuleSet); diff != "" {
		t.Errorf("rule set changed on resave (-first +second):\n%s", diff)
	}
}

func TestStore_SaveFolderRejectsMalformedID(t *testing.T) {
	store := newTestStore(t)

	folder := invoicesFolder()
	folder.ID = "folder-1"
	if _, err := store.SaveFolder(context.Background(), folder); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected validation error for malformed id, got %v", err)
	}

	folder.ID = types.NewFolderID()
	saved, err := store.SaveFolder(context.Background(), folder)
	if err != nil {
		t.Fatalf("SaveFolder with caller id failed: %v", err)
	}
	if saved.ID != folder.ID || saved.Generation != 1 {
		t.Errorf("expected new folder %s at generation 1, got %s at %d", folder.ID, saved.ID, saved.Generation)
	}
}

func TestStore_GetFolderNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetFolder(context.Background(), types.NewFolderID())
	if !errors.Is(err, types.ErrFolderNotFound) {
		t.Errorf("expected ErrFolderNotFound, got %v", err)
	}
}

func TestStore_ListFolders(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		f := invoicesFolder()
		f.Name = name
		if _, err := store.SaveFolder(ctx, f); err != nil {
			t.Fatalf("SaveFolder failed: %v", err)
		}
	}

	folders, err := store.ListFolders(ctx)
	if err != nil {
		t.Fatalf("ListFolders failed: %v", err)
	}
	var names []string
	for _, f := range folders {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"Alpha", "Mid", "Zeta"}, names); diff != "" {
		t.Errorf("folder order mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_DeleteFolderReferenced(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	folder, err := store.SaveFolder(ctx, invoicesFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	node, err := store.SaveNode(ctx, types.HierarchyNode{Name: "Finance"})
	if err != nil {
		t.Fatalf("SaveNode failed: %v", err)
	}
	if err := store.AttachFolder(ctx, node.ID, folder.ID); err != nil {
		t.Fatalf("AttachFolder failed: %v", err)
	}

	if err := store.DeleteFolder(ctx, folder.ID); !errors.Is(err, types.ErrFolderReferenced) {
		t.Fatalf("expected ErrFolderReferenced, got %v", err)
	}

	if err := store.DetachFolder(ctx, node.ID); err != nil {
		t.Fatalf("DetachFolder failed: %v", err)
	}
	if err := store.DeleteFolder(ctx, folder.ID); err != nil {
		t.Fatalf("DeleteFolder failed after detach: %v", err)
	}
	if err := store.DeleteFolder(ctx, folder.ID); !errors.Is(err, types.ErrFolderNotFound) {
		t.Errorf("expected ErrFolderNotFound on second delete, got %v", err)
	}
}

func TestStore_Nodes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.SaveFolder(ctx, invoicesFolder())
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}
	other := invoicesFolder()
	other.Name = "Other"
	second, err := store.SaveFolder(ctx, other)
	if err != nil {
		t.Fatalf("SaveFolder failed: %v", err)
	}

	root, err := store.SaveNode(ctx, types.HierarchyNode{Name: "Root"})
	if err != nil {
		t.Fatalf("SaveNode failed: %v", err)
	}
	child, err := store.SaveNode(ctx, types.HierarchyNode{Name: "Child", ParentID: &root.ID})
	if err != nil {
		t.Fatalf("SaveNode (child) failed: %v", err)
	}

	if err := store.AttachFolder(ctx, child.ID, first.ID); err != nil {
		t.Fatalf("AttachFolder failed: %v", err)
	}
	// Re-attaching the same folder is idempotent
	if err := store.AttachFolder(ctx, child.ID, first.ID); err != nil {
		t.Errorf("re-attach of same folder failed: %v", err)
	}
	if err := store.AttachFolder(ctx, child.ID, second.ID); !errors.Is(err, types.ErrNodeOccupied) {
		t.Errorf("expected ErrNodeOccupied, got %v", err)
	}

	missing := types.NewNodeID()
	if _, err := store.SaveNode(ctx, types.HierarchyNode{Name: "Orphan", ParentID: &missing}); !errors.Is(err, types.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound for missing parent, got %v", err)
	}
	if err := store.DetachFolder(ctx, missing); !errors.Is(err, types.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound on detach, got %v", err)
	}

	nodes, err := store.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes failed: %v", err)
	}
	want := []types.HierarchyNode{
		{ID: child.ID, ParentID: &root.ID, Name: "Child", SmartFolderID: &first.ID},
		{ID: root.ID, Name: "Root"},
	}
	if diff := cmp.Diff(want, nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_Documents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := store.PutDocument(ctx, "doc-2", map[string]any{"status": "draft"}); err != nil {
		t.Fatalf("PutDocument failed: %v", err)
	}
	if err := store.PutDocument(ctx, "doc-1", map[string]any{"status": "draft", "pageCount": 3}); err != nil {
		t.Fatalf("PutDocument failed: %v", err)
	}
	if err := store.PutDocument(ctx, "doc-1", map[string]any{"status": "approved", "pageCount": 3}); err != nil {
		t.Fatalf("PutDocument (replace) failed: %v", err)
	}

	docs, err := store.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 2 || docs[0].ID() != "doc-1" || docs[1].ID() != "doc-2" {
		t.Fatalf("unexpected documents: %v", docs)
	}
	status, found, err := docs[0].Field("status")
	if err != nil || !found || status != "approved" {
		t.Errorf("doc-1 status = %v, %v, %v; want approved", status, found, err)
	}

	if err := store.DeleteDocument(ctx, "doc-2"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if err := store.DeleteDocument(ctx, "doc-2"); !errors.Is(err, types.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := store.PutDocument(ctx, "", nil); !errors.Is(err, types.ErrValidation) {
		t.Errorf("expected validation error for empty id, got %v", err)
	}
}
