package main

import (
	"github.com/spf13/cobra"

	"github.com/raaihank/termswap/internal/importer"
)

var (
	categoryFlag string
	dryRunFlag   bool
	limitFlag    int
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and manage the rule table",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules, optionally filtered by a category substring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return printJSON(cmd.OutOrStdout(), a.engine.Rules(categoryFlag))
		})
	},
}

var rulesCompleteCmd = &cobra.Command{
	Use:   "complete <prefix>",
	Short: "Suggest replacements starting with prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			completions := a.engine.Completions(args[0])
			if limitFlag > 0 && limitFlag < len(completions) {
				completions = completions[:limitFlag]
			}
			return printJSON(cmd.OutOrStdout(), completions)
		})
	},
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge rules from a CSV, JSON Lines or Parquet file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			cfg := a.cfg.Import
			if cfg.MetadataPrefix == "" {
				cfg.MetadataPrefix = a.cfg.Workspace.MetadataPrefix
			}
			if dryRunFlag {
				cfg.DryRun = true
			}
			result, err := importer.New(a.fs, a.engine, cfg, a.log.Logger).ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report rule table problems such as shared replacements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			violations := a.engine.ValidateConfig()
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"valid":      len(violations) == 0,
				"violations": violations,
			})
		})
	},
}

func init() {
	rulesListCmd.Flags().StringVar(&categoryFlag, "category", "", "Only rules whose term or replacement contains this text")
	rulesCompleteCmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum number of suggestions")
	rulesImportCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Read and validate the file without merging")

	rulesCmd.AddCommand(rulesListCmd, rulesCompleteCmd, rulesImportCmd)
	rootCmd.AddCommand(rulesCmd, validateCmd)
}
