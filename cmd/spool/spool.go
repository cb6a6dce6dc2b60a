// Package spoolcmder
package spoolcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/spoolworks/spool/cmd/spool/config"
	runcmder "github.com/spoolworks/spool/cmd/spool/run"
	servecmder "github.com/spoolworks/spool/cmd/spool/serve"
	statuscmder "github.com/spoolworks/spool/cmd/spool/status"
	versioncmder "github.com/spoolworks/spool/cmd/version"
)

const spoolLongDesc string = `Spool ingests streamed code-generation output: it classifies, cleans,
deduplicates, and batches chunks, and tracks the session from start to
completion.

Common commands:
  spool run       Consume a chunk stream from stdin or an SSE upstream
  spool serve     Run the HTTP ingest server
  spool status    Show the last session and the running server's state`

const spoolShortDesc string = "Spool - streaming ingestion for generated code"

func NewSpoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spool",
		Short: spoolShortDesc,
		Long:  spoolLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .spool/ config directory")

	// Add subcommands
	cmd.AddCommand(runcmder.NewRunCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
