package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/smartfolder/internal/rules"
	"github.com/solatis/smartfolder/internal/types"
)

/*
 * Smart folder persistence.
 *
 * Folders are stored with their rule set and settings as JSON columns. Every
 * save of an existing folder increments its generation in the same UPDATE,
 * so cached results keyed by the old generation can never be served for the
 * new rules.
 *
 * Rule sets are validated before they are written; an invalid rule set
 * returns *rules.ValidationError and nothing is stored.
 */

// Store persists smart folders, the folder hierarchy and document metadata.
type Store struct {
	db      *sqlx.DB
	queries *Queries
	compile rules.CompileOptions
	now     func() time.Time
}

// NewStore wraps an open, migrated database. opts are used to validate rule
// sets on save.
func NewStore(db *sqlx.DB, opts rules.CompileOptions) (*Store, error) {
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, queries: queries, compile: opts, now: time.Now}, nil
}

type folderRow struct {
	FolderID    string    `db:"folder_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	IsActive    bool      `db:"is_active"`
	Generation  int64     `db:"generation"`
	RuleSet     string    `db:"rule_set"`
	Settings    string    `db:"settings"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *folderRow) folder() (*types.SmartFolder, error) {
	f := &types.SmartFolder{
		ID:          types.FolderID(r.FolderID),
		Name:        r.Name,
		Description: r.Description,
		IsActive:    r.IsActive,
		Generation:  r.Generation,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.RuleSet), &f.RuleSet); err != nil {
		return nil, fmt.Errorf("decode rule set of folder %s: %w", r.FolderID, err)
	}
	if err := json.Unmarshal([]byte(r.Settings), &f.Settings); err != nil {
		return nil, fmt.Errorf("decode settings of folder %s: %w", r.FolderID, err)
	}
	return f, nil
}

// inTx runs fn with queries bound to a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(s.queries.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SaveFolder validates and stores f. A folder without an id, or with an id
// not yet stored, is created at generation 1; an existing folder is updated
// and its generation incremented. Caller-supplied folder ids must be UUIDs.
// Groups and rules saved without ids get generated ones so their ids stay
// stable across later edits. Returns the stored folder.
func (s *Store) SaveFolder(ctx context.Context, f types.SmartFolder) (*types.SmartFolder, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("%w: folder name is required", types.ErrValidation)
	}
	if f.ID == "" {
		f.ID = types.NewFolderID()
	} else if _, err := types.ParseFolderID(string(f.ID)); err != nil {
		return nil, fmt.Errorf("%w: folder id %q: %v", types.ErrValidation, f.ID, err)
	}
	f.RuleSet = f.RuleSet.WithIDs()
	if err := rules.Validate(f.RuleSet, s.compile).Err(); err != nil {
		return nil, err
	}

	ruleSet, err := json.Marshal(f.RuleSet)
	if err != nil {
		return nil, fmt.Errorf("encode rule set: %w", err)
	}
	settings, err := json.Marshal(f.Settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	now := s.now().UTC()
	var saved *types.SmartFolder
	err = s.inTx(ctx, func(q *Queries) error {
		res, err := q.Exec(ctx, "update-folder",
			f.Name, f.Description, f.IsActive, string(ruleSet), string(settings), now, f.ID)
		if err != nil {
			return fmt.Errorf("update folder %s: %w", f.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			if _, err := q.Exec(ctx, "insert-folder",
				f.ID, f.Name, f.Description, f.IsActive, string(ruleSet), string(settings), now, now); err != nil {
				return fmt.Errorf("insert folder %s: %w", f.ID, err)
			}
		}
		saved, err = getFolder(ctx, q, f.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func getFolder(ctx context.Context, q *Queries, id types.FolderID) (*types.SmartFolder, error) {
	var row folderRow
	if err := q.Get(ctx, "get-folder", &row, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrFolderNotFound, id)
		}
		return nil, fmt.Errorf("get folder %s: %w", id, err)
	}
	return row.folder()
}

// GetFolder returns the folder with id or types.ErrFolderNotFound.
func (s *Store) GetFolder(ctx context.Context, id types.FolderID) (*types.SmartFolder, error) {
	return getFolder(ctx, s.queries, id)
}

// ListFolders returns all folders ordered by name.
func (s *Store) ListFolders(ctx context.Context) ([]*types.SmartFolder, error) {
	var rows []folderRow
	if err := s.queries.Select(ctx, "list-folders", &rows); err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	folders := make([]*types.SmartFolder, 0, len(rows))
	for i := range rows {
		f, err := rows[i].folder()
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, nil
}

// DeleteFolder removes a folder. It refuses with types.ErrFolderReferenced
// while a hierarchy node still references the folder.
func (s *Store) DeleteFolder(ctx context.Context, id types.FolderID) error {
	return s.inTx(ctx, func(q *Queries) error {
		var refs int
		if err := q.Get(ctx, "count-folder-references", &refs, id); err != nil {
			return fmt.Errorf("count references to folder %s: %w", id, err)
		}
		if refs > 0 {
			return fmt.Errorf("%w: %s (%d nodes)", types.ErrFolderReferenced, id, refs)
		}
		res, err := q.Exec(ctx, "delete-folder", id)
		if err != nil {
			return fmt.Errorf("delete folder %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: %s", types.ErrFolderNotFound, id)
		}
		return nil
	})
}

// SaveNode creates or updates a hierarchy node. A node without an id gets one.
func (s *Store) SaveNode(ctx context.Context, n types.HierarchyNode) (*types.HierarchyNode, error) {
	if strings.TrimSpace(n.Name) == "" {
		return nil, fmt.Errorf("%w: node name is required", types.ErrValidation)
	}
	if n.ID == "" {
		n.ID = types.NewNodeID()
	}
	if n.ParentID != nil && *n.ParentID == n.ID {
		return nil, fmt.Errorf("%w: node %s cannot be its own parent", types.ErrValidation, n.ID)
	}

	err := s.inTx(ctx, func(q *Queries) error {
		if n.ParentID != nil {
			if _, err := getNode(ctx, q, *n.ParentID); err != nil {
				return err
			}
		}
		if n.SmartFolderID != nil {
			if _, err := getFolder(ctx, q, *n.SmartFolderID); err != nil {
				return err
			}
		}
		if _, err := q.Exec(ctx, "upsert-node", n.ID, n.ParentID, n.Name, n.SmartFolderID); err != nil {
			return fmt.Errorf("save node %s: %w", n.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func getNode(ctx context.Context, q *Queries, id types.NodeID) (*types.HierarchyNode, error) {
	var n types.HierarchyNode
	if err := q.Get(ctx, "get-node", &n, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, id)
		}
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return &n, nil
}

// AttachFolder makes node reference folder. A node holds at most one folder;
// attaching to a node that holds a different folder returns
// types.ErrNodeOccupied.
func (s *Store) AttachFolder(ctx context.Context, nodeID types.NodeID, folderID types.FolderID) error {
	return s.inTx(ctx, func(q *Queries) error {
		if _, err := getFolder(ctx, q, folderID); err != nil {
			return err
		}
		node, err := getNode(ctx, q, nodeID)
		if err != nil {
			return err
		}
		res, err := q.Exec(ctx, "attach-folder", folderID, nodeID, folderID)
		if err != nil {
			return fmt.Errorf("attach folder %s to node %s: %w", folderID, nodeID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: node %s holds folder %s", types.ErrNodeOccupied, nodeID, *node.SmartFolderID)
		}
		return nil
	})
}

// DetachFolder clears the node's folder reference.
func (s *Store) DetachFolder(ctx context.Context, nodeID types.NodeID) error {
	res, err := s.queries.Exec(ctx, "detach-folder", nodeID)
	if err != nil {
		return fmt.Errorf("detach node %s: %w", nodeID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrNodeNotFound, nodeID)
	}
	return nil
}

// ListNodes returns the hierarchy ordered by name.
func (s *Store) ListNodes(ctx context.Context) ([]types.HierarchyNode, error) {
	var nodes []types.HierarchyNode
	if err := s.queries.Select(ctx, "list-nodes", &nodes); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

// PutDocument stores or replaces the metadata of a document.
func (s *Store) PutDocument(ctx context.Context, id types.DocumentID, fields map[string]any) error {
	if id == "" {
		return fmt.Errorf("%w: document id is required", types.ErrValidation)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}
	if _, err := s.queries.Exec(ctx, "upsert-document", id, string(raw), s.now().UTC()); err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	return nil
}

// DeleteDocument removes a document's metadata.
func (s *Store) DeleteDocument(ctx context.Context, id types.DocumentID) error {
	res, err := s.queries.Exec(ctx, "delete-document", id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	return nil
}

// ListDocuments loads every stored document ready for evaluation.
func (s *Store) ListDocuments(ctx context.Context) ([]rules.Document, error) {
	var rows []struct {
		ID     string `db:"document_id"`
		Fields string `db:"fields"`
	}
	if err := s.queries.Select(ctx, "list-documents", &rows); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]rules.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := rules.NewJSONDocument(types.DocumentID(row.ID), json.RawMessage(row.Fields))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
