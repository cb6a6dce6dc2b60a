// Package configcmder provides the config command for managing persistent
// spool configuration stored in the .spool/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent spool configuration.

Configuration is stored as config.toml in the .spool/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  engine.warning_threshold, engine.max_chunks, engine.emergency_threshold,
  engine.hard_limit, engine.max_bytes, engine.max_processing_time,
  engine.health_interval,
  batch.debounce_fast, batch.debounce_slow, batch.immediate_gap,
  dedupe.ttl, dedupe.capacity,
  server.listen, client.server_target,
  source.upstream, source.tee_path

Use subcommands to get, set, or list configuration values:
  spool config set <key> <value>    Set a configuration value
  spool config get <key>            Get a configuration value
  spool config list                 List all configuration values

Examples:
  spool config set engine.hard_limit 200
  spool config set dedupe.ttl 10s
  spool config get server.listen
  spool config list`

const configShortDesc string = "Manage persistent spool configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
