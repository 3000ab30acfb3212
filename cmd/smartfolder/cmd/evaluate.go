package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/solatis/smartfolder/internal/rules"
	"github.com/solatis/smartfolder/internal/types"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a folder file against a documents file without a database",
	Long: `Evaluate a folder file against a documents file without a database.

Rules take effect only when they set isActive: true. A rule that omits
isActive is loaded as inactive and reported on stderr.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("folder", "", "folder definition file (YAML or JSON)")
	evaluateCmd.Flags().String("documents", "", "documents file (YAML or JSON list of {id, fields})")
	evaluateCmd.Flags().Int("limit", 0, "maximum matches to return (0 uses folder settings)")
	evaluateCmd.Flags().Int("offset", 0, "matches to skip")
	evaluateCmd.Flags().String("sort-by", "", "field to sort matches by")
	evaluateCmd.Flags().String("sort-order", "", "asc or desc")
	_ = evaluateCmd.MarkFlagRequired("folder")
	_ = evaluateCmd.MarkFlagRequired("documents")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	folderPath, _ := cmd.Flags().GetString("folder")
	docsPath, _ := cmd.Flags().GetString("documents")

	var q types.Query
	q.Limit, _ = cmd.Flags().GetInt("limit")
	q.Offset, _ = cmd.Flags().GetInt("offset")
	q.SortBy, _ = cmd.Flags().GetString("sort-by")
	order, _ := cmd.Flags().GetString("sort-order")
	switch types.SortOrder(order) {
	case "", types.SortAsc, types.SortDesc:
		q.SortOrder = types.SortOrder(order)
	default:
		return fmt.Errorf("invalid --sort-order %q (want asc or desc)", order)
	}

	f, missing, err := loadFolderFile(folderPath)
	if err != nil {
		return err
	}
	warnMissingIsActive(cmd.ErrOrStderr(), folderPath, missing)
	entries, err := loadDocumentsFile(docsPath)
	if err != nil {
		return err
	}
	docs, err := toDocuments(entries)
	if err != nil {
		return err
	}

	result, err := evaluateOffline(cmd.Context(), f, docs, q)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

// evaluateOffline compiles f and evaluates it over docs with no cache.
func evaluateOffline(ctx context.Context, f *types.SmartFolder, docs []rules.Document, q types.Query) (*types.SmartFolderResult, error) {
	if f.ID == "" {
		f.ID = "local"
	}
	if f.Generation == 0 {
		f.Generation = 1
	}
	folder, err := rules.CompileFolder(f, compileOptions())
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return rules.NewEngine(rules.WithLogger(logger)).EvaluateCollection(ctx, folder, docs, q)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
