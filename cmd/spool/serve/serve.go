// Package servecmder provides the serve command for running the HTTP
// ingest server.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spoolworks/spool/engine"
	"github.com/spoolworks/spool/pkg/config"
	"github.com/spoolworks/spool/pkg/logger"
	"github.com/spoolworks/spool/server"
)

type ServeCommander struct {
	listen    string
	configDir string
	debug     bool
	logger    *zap.Logger
}

const serveLongDesc string = `Run the spool ingest server.

The server accepts session lifecycle signals and raw chunk payloads over
HTTP and relays engine notifications to consumers as an SSE feed:

  POST /v1/sessions                  open a session
  POST /v1/sessions/current/events   submit one chunk payload
  POST /v1/sessions/current/complete signal end of stream
  POST /v1/sessions/current/error    fail the session
  GET  /v1/sessions/current          state snapshot
  GET  /v1/notifications             SSE notification feed`

const serveShortDesc string = "Run the HTTP ingest server"

var serveFlags = config.FlagSet{
	config.FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "server.listen",
		Description: "Address for the ingest server to listen on",
	},
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, []string{config.FlagListen})

			return cmder.run(config.LoadFromViper(v))
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagListen, &cmder.listen)

	return cmd
}

func (c *ServeCommander) run(cfg *config.Config) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	broadcast := server.NewBroadcaster(c.logger)

	eng := engine.New(engine.Config{
		Limits:         cfg.GovernorLimits(),
		Batching:       cfg.Batching(),
		HealthInterval: cfg.Engine.HealthInterval.Std(),
		DedupeTTL:      cfg.Dedupe.TTL.Std(),
		DedupeCapacity: int(cfg.Dedupe.Capacity),
		Logger:         c.logger,
		Sink:           broadcast,
	})
	defer eng.Close()

	srv := server.NewServer(server.Config{ListenAddr: cfg.Server.Listen}, eng, broadcast, c.logger)

	c.logger.Info("starting spool server",
		zap.String("listen", cfg.Server.Listen),
		zap.Int("hard_limit", int(cfg.Engine.HardLimit)),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return srv.Shutdown()
	}
}
