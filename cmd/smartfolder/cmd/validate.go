package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/smartfolder/internal/rules"
	"github.com/solatis/smartfolder/internal/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate <folder-file>",
	Short: "Validate a folder definition file",
	Long: `Validate a folder definition file and print the validation result as JSON.

Rules take effect only when they set isActive: true. A rule that omits
isActive is loaded as inactive; each one is listed as a warning in the
result and on stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	f, missing, err := loadFolderFile(args[0])
	if err != nil {
		return err
	}

	result := rules.Validate(f.RuleSet, compileOptions())
	for _, rule := range missing {
		result.Warnings = append(result.Warnings, rules.ValidationIssue{
			Level:   rules.LevelWarning,
			RuleID:  types.RuleID(rule),
			Message: fmt.Sprintf("rule %s omits isActive and is loaded as inactive; set isActive: true for it to affect matching", rule),
		})
	}
	warnMissingIsActive(cmd.ErrOrStderr(), args[0], missing)
	if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("folder %q has %d validation errors", f.Name, len(result.Errors))
	}
	return nil
}
