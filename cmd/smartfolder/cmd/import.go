package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/smartfolder/internal/core/db"
	"github.com/solatis/smartfolder/internal/types"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Store folder definitions and documents in the database",
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringSlice("folder", nil, "folder definition file (repeatable)")
	importCmd.Flags().String("documents", "", "documents file (YAML or JSON list of {id, fields})")
	importCmd.Flags().String("node", "", "hierarchy node name to attach imported folders under")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	folderPaths, _ := cmd.Flags().GetStringSlice("folder")
	docsPath, _ := cmd.Flags().GetString("documents")
	parentName, _ := cmd.Flags().GetString("node")
	if len(folderPaths) == 0 && docsPath == "" {
		return fmt.Errorf("nothing to import: pass --folder and/or --documents")
	}

	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := requireMigrated(ctx, database); err != nil {
		return err
	}
	store, err := db.NewStore(database, compileOptions())
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	if docsPath != "" {
		entries, err := loadDocumentsFile(docsPath)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := store.PutDocument(ctx, e.ID, e.Fields); err != nil {
				return fmt.Errorf("store document %s: %w", e.ID, err)
			}
		}
		logger.Info("imported documents", zap.Int("count", len(entries)))
	}

	var parent *types.HierarchyNode
	if parentName != "" && len(folderPaths) > 0 {
		parent, err = store.SaveNode(ctx, types.HierarchyNode{Name: parentName})
		if err != nil {
			return fmt.Errorf("create node %q: %w", parentName, err)
		}
	}

	for _, path := range folderPaths {
		f, missing, err := loadFolderFile(path)
		if err != nil {
			return err
		}
		warnMissingIsActive(cmd.ErrOrStderr(), path, missing)
		saved, err := store.SaveFolder(ctx, *f)
		if err != nil {
			return fmt.Errorf("save folder %s: %w", path, err)
		}
		if parent != nil {
			child, err := store.SaveNode(ctx, types.HierarchyNode{Name: saved.Name, ParentID: &parent.ID})
			if err != nil {
				return fmt.Errorf("create node for %s: %w", saved.Name, err)
			}
			if err := store.AttachFolder(ctx, child.ID, saved.ID); err != nil {
				return fmt.Errorf("attach folder %s: %w", saved.Name, err)
			}
		}
		logger.Info("imported folder",
			zap.String("folder_id", string(saved.ID)),
			zap.String("name", saved.Name),
			zap.Int64("generation", saved.Generation))

		line, err := json.Marshal(map[string]any{"id": saved.ID, "name": saved.Name, "generation": saved.Generation})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(line))
	}
	return nil
}
