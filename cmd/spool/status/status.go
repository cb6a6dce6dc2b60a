// Package statuscmder provides the status command for displaying the
// running server's session state and the last recorded session.
package statuscmder

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spoolworks/spool/engine"
	"github.com/spoolworks/spool/pkg/cliui"
	"github.com/spoolworks/spool/pkg/config"
	"github.com/spoolworks/spool/pkg/dotdir"
)

const statusLongDesc string = `Show spool status.

Queries the configured server target for the current session snapshot and
reads the local .spool/ directory for the last recorded session.

Examples:
  spool status
  spool status --server-target http://localhost:8090`

const statusShortDesc string = "Show server and last-session status"

var statusFlags = config.FlagSet{
	config.FlagServerTarget: {
		Name:        "server-target",
		ViperKey:    "client.server_target",
		Description: "URL of the running spool server",
	},
}

func NewStatusCmd() *cobra.Command {
	var serverTarget string

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, statusFlags, []string{config.FlagServerTarget})

			return runStatus(v.GetString("client.server_target"), configDir)
		},
	}

	config.AddStringFlag(cmd, statusFlags, config.FlagServerTarget, &serverTarget)

	return cmd
}

func runStatus(serverTarget, configDir string) error {
	printServerStatus(serverTarget)
	return printLastSession(configDir)
}

func printServerStatus(serverTarget string) {
	var snap *engine.Snapshot

	fmt.Println()
	err := cliui.Step(os.Stdout, "querying "+serverTarget, func() error {
		var ferr error
		snap, ferr = fetchSnapshot(serverTarget)
		return ferr
	})
	if err != nil {
		fmt.Printf("  %s\n", cliui.Dim("no server at "+serverTarget))
		return
	}

	fmt.Printf("\n  %s %s\n", cliui.KeyStyle.Render("Server:"), cliui.ValueStyle.Render(serverTarget))
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("State: "), cliui.ValueStyle.Render(snap.State))

	if snap.SessionID != "" {
		fmt.Printf("  %s %s %s\n",
			cliui.KeyStyle.Render("Session:"),
			cliui.ValueStyle.Render(snap.SessionID),
			cliui.Dim(fmt.Sprintf("(%d chunks, %d bytes buffered)",
				snap.Stats.TotalProcessed, snap.BufferLen)),
		)
	}
}

func fetchSnapshot(serverTarget string) (*engine.Snapshot, error) {
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(strings.TrimSuffix(serverTarget, "/") + "/v1/sessions/current")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}

	snap := &engine.Snapshot{}
	if err := json.NewDecoder(resp.Body).Decode(snap); err != nil {
		return nil, err
	}

	return snap, nil
}

func printLastSession(configDir string) error {
	rec, err := dotdir.NewManager().LoadLastSession(configDir)
	if err != nil {
		return fmt.Errorf("loading last session: %w", err)
	}

	if rec == nil {
		fmt.Printf("\n  %s No recorded sessions yet.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	mark := cliui.SuccessMark
	if rec.Outcome != "completed" {
		mark = cliui.FailMark
	}

	fmt.Printf("\n  %s %s %s\n",
		cliui.KeyStyle.Render("Last session:"),
		cliui.ValueStyle.Render(rec.SessionID),
		mark,
	)
	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render("Finished:    "),
		cliui.ValueStyle.Render(rec.FinishedAt.Local().Format(time.RFC822)),
	)
	if len(rec.Reasons) > 0 {
		fmt.Printf("  %s %s\n",
			cliui.KeyStyle.Render("Reasons:     "),
			cliui.ValueStyle.Render(strings.Join(rec.Reasons, ", ")),
		)
	}
	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Content:     "),
		cliui.Dim(fmt.Sprintf("%d bytes from %d chunks", rec.ContentBytes, rec.Chunks)),
	)

	return nil
}
