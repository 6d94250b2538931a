// Command depotd is the depot's CLI and HTTP service entry point,
// grounded on cmd/ome-agent's cobra root-command shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:     "depotd",
	Short:   "Run the model depot",
	Long:    "depotd downloads, catalogs, loads, and serves local models over HTTP and the command line.",
	Version: fmt.Sprintf("gitVersion=%s, gitCommit=%s", version.GitVersion, version.GitCommit),
}

var configFilePath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newDownloadCommand())
	rootCmd.AddCommand(newModelsCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the process exit codes spec.md §6.6
// names for the command line.
func exitCodeFor(err error) int {
	kind, ok := apperrors.ErrorKind(err)
	if !ok {
		return 1
	}
	switch kind {
	case apperrors.KindInvalidRequest, apperrors.KindInvalidIdentifier:
		return 2
	case apperrors.KindNotFound, apperrors.KindModelSourceNotFound:
		return 3
	case apperrors.KindAuthRequired:
		return 4
	case apperrors.KindInsufficientDisk:
		return 5
	case apperrors.KindCancelled:
		return 6
	default:
		return 1
	}
}
