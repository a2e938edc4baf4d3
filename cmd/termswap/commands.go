package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raaihank/termswap/internal/engine"
)

var (
	previewFlag   bool
	textFlag      string
	directionFlag string
)

func init() {
	for _, cmd := range []*cobra.Command{encodeCmd, decodeCmd, obfuscateCmd} {
		cmd.Flags().BoolVar(&previewFlag, "preview", false, "Compute the result without writing anything")
	}
	for _, cmd := range []*cobra.Command{checkCmd, findCmd} {
		cmd.Flags().StringVar(&textFlag, "text", "", "Inspect this text instead of the working file")
	}
	translateFileCmd.Flags().StringVar(&directionFlag, "direction", string(engine.Forward), "encode or decode")

	rootCmd.AddCommand(encodeCmd, decodeCmd, previewCmd, obfuscateCmd, deobfuscateCmd, fullCmd,
		undoCmd, historyCmd, statsCmd, checkCmd, findCmd, sanitizeCmd, restoreCmd, translateFileCmd)
}

// operationCmd builds a command that runs one engine operation on the
// working text and prints its result
func operationCmd(use, short string, run func(ctx context.Context, e *engine.Engine) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				result, err := run(cmd.Context(), a.engine)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

var encodeCmd = operationCmd("encode", "Replace sensitive terms in the working file", func(ctx context.Context, e *engine.Engine) (interface{}, error) {
	return e.Encode(ctx, engine.Options{Preview: previewFlag})
})

var decodeCmd = operationCmd("decode", "Restore sensitive terms in the working file", func(ctx context.Context, e *engine.Engine) (interface{}, error) {
	return e.Decode(ctx, engine.Options{Preview: previewFlag})
})

var obfuscateCmd = operationCmd("obfuscate", "Replace sensitive variable names with generated identifiers", func(ctx context.Context, e *engine.Engine) (interface{}, error) {
	return e.Obfuscate(ctx, engine.Options{Preview: previewFlag})
})

var deobfuscateCmd = operationCmd("deobfuscate", "Restore the names replaced by the last obfuscate", func(ctx context.Context, e *engine.Engine) (interface{}, error) {
	return e.Deobfuscate(ctx)
})

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Encode, then obfuscate the working file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			full, err := a.engine.Full(cmd.Context())
			return writeFull(cmd.OutOrStdout(), full, err)
		})
	},
}

// writeFull prints the passes that were committed, even when a later pass
// failed, and then returns the failure.
func writeFull(w io.Writer, full engine.FullResult, err error) error {
	if full.Committed() {
		if perr := printJSON(w, full); perr != nil {
			return perr
		}
	}
	return err
}

var undoCmd = operationCmd("undo", "Revert the most recent operation", func(ctx context.Context, e *engine.Engine) (interface{}, error) {
	return e.Undo(ctx)
})

var historyCmd = operationCmd("history", "List recorded operations, oldest first", func(ctx context.Context, e *engine.Engine) (interface{}, error) {
	return e.History(ctx)
})

var statsCmd = operationCmd("stats", "Show working file and engine statistics", func(ctx context.Context, e *engine.Engine) (interface{}, error) {
	return e.Stats(ctx)
})

var previewCmd = &cobra.Command{
	Use:       "preview [encode|decode|obfuscate]",
	Short:     "Show what an operation would change without writing",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"encode", "decode", "obfuscate"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := "encode"
		if len(args) == 1 {
			mode = args[0]
		}
		return withApp(func(a *app) error {
			opts := engine.Options{Preview: true}
			var (
				result engine.Result
				err    error
			)
			switch engine.Mode(mode) {
			case engine.ModeEncode:
				result, err = a.engine.Encode(cmd.Context(), opts)
			case engine.ModeDecode:
				result, err = a.engine.Decode(cmd.Context(), opts)
			case engine.ModeObfuscate:
				result, err = a.engine.Obfuscate(cmd.Context(), opts)
			default:
				return fmt.Errorf("cannot preview %q", mode)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report sensitive terms left in the working file; exits 1 if any",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			var result engine.CheckResult
			if cmd.Flags().Changed("text") {
				result = a.engine.CheckText(textFlag)
			} else {
				var err error
				if result, err = a.engine.IsClean(cmd.Context()); err != nil {
					return err
				}
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Clean {
				return errNotClean
			}
			return nil
		})
	},
}

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "List every sensitive term occurrence with its position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if cmd.Flags().Changed("text") {
				return printJSON(cmd.OutOrStdout(), a.engine.FindTerms(textFlag))
			}
			findings, err := a.engine.FindTermsInWork(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), findings)
		})
	},
}

// textFilterCmd rewrites stdin to stdout without touching the workspace
func textFilterCmd(use, short string, dir engine.Direction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(func(a *app) error {
				_, err := io.WriteString(cmd.OutOrStdout(), a.engine.Translate(string(input), dir).Content)
				return err
			})
		},
	}
}

var sanitizeCmd = textFilterCmd("sanitize", "Replace sensitive terms in stdin and write to stdout", engine.Forward)

var restoreCmd = textFilterCmd("restore", "Restore sensitive terms in stdin and write to stdout", engine.Reverse)

var translateFileCmd = &cobra.Command{
	Use:   "translate-file <path>",
	Short: "Rewrite a file other than the working file in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := engine.ParseDirection(directionFlag)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			result, err := a.engine.TranslateFile(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}
