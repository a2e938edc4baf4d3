package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "0.1.0"
	buildCommit  = "dev"
	buildDate    = "unknown"
)

// errNotClean makes check exit with status 1 without printing an error
var errNotClean = errors.New("working text still contains sensitive terms")

var configPath string

var rootCmd = &cobra.Command{
	Use:           "termswap",
	Short:         "Swap sensitive terms for neutral replacements and back",
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", buildVersion, buildCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errNotClean) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

// printJSON writes v to the command output as indented JSON
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
