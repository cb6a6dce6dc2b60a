// Package runcmder provides the run command: consume a chunk stream from
// stdin or an SSE upstream and drive it through the ingestion engine.
package runcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spoolworks/spool/engine"
	"github.com/spoolworks/spool/pkg/cliui"
	"github.com/spoolworks/spool/pkg/config"
	"github.com/spoolworks/spool/pkg/dotdir"
	"github.com/spoolworks/spool/pkg/logger"
	"github.com/spoolworks/spool/pkg/sse"
	"github.com/spoolworks/spool/pkg/utils"
)

type RunCommander struct {
	from      string
	teePath   string
	maxChunks uint
	hardLimit uint
	configDir string
	debug     bool
	logger    *zap.Logger
	out       io.Writer
}

const runLongDesc string = `Consume a chunk stream and print the assembled result.

Without --from, chunk payloads are read from stdin, one JSON object per
line. With --from, the given URL is consumed as an SSE stream and each
event's data field is treated as one chunk payload; a "[DONE]" data line
ends the stream.

The stream is cleaned, deduplicated, and batched by the ingestion engine;
the final content (or the explanation and code channels, when the stream
is structured) is printed at completion.

Examples:
  some-generator | spool run "add a retry helper"
  spool run --from http://localhost:4000/stream
  spool run --from http://localhost:4000/stream --tee capture.sse`

const runShortDesc string = "Consume a chunk stream"

var runFlags = config.FlagSet{
	config.FlagFrom: {
		Name:        "from",
		Shorthand:   "f",
		ViperKey:    "source.upstream",
		Description: "SSE upstream URL to consume (default: read stdin)",
	},
	config.FlagTee: {
		Name:        "tee",
		ViperKey:    "source.tee_path",
		Description: "Write a verbatim copy of the raw stream to this file",
	},
	config.FlagMaxChunks: {
		Name:        "max-chunks",
		ViperKey:    "engine.max_chunks",
		Description: "Chunk count that forces an early successful completion",
	},
	config.FlagHardLimit: {
		Name:        "hard-limit",
		ViperKey:    "engine.hard_limit",
		Description: "Chunk count that aborts the session",
	},
}

func NewRunCmd() *cobra.Command {
	cmder := &RunCommander{out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "run [hint]",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			config.BindRegisteredFlags(v, cmd, runFlags, []string{
				config.FlagFrom, config.FlagTee,
				config.FlagMaxChunks, config.FlagHardLimit,
			})

			hint := ""
			if len(args) == 1 {
				hint = args[0]
			}

			return cmder.run(config.LoadFromViper(v), hint)
		},
	}

	config.AddStringFlag(cmd, runFlags, config.FlagFrom, &cmder.from)
	config.AddStringFlag(cmd, runFlags, config.FlagTee, &cmder.teePath)
	config.AddUintFlag(cmd, runFlags, config.FlagMaxChunks, &cmder.maxChunks)
	config.AddUintFlag(cmd, runFlags, config.FlagHardLimit, &cmder.hardLimit)

	return cmd
}

func (c *RunCommander) run(cfg *config.Config, hint string) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	sink := newTerminalSink(c.out)

	eng := engine.New(engine.Config{
		Limits:         cfg.GovernorLimits(),
		Batching:       cfg.Batching(),
		HealthInterval: cfg.Engine.HealthInterval.Std(),
		DedupeTTL:      cfg.Dedupe.TTL.Std(),
		DedupeCapacity: int(cfg.Dedupe.Capacity),
		Logger:         c.logger,
		Sink:           sink,
	})
	defer eng.Close()

	if !eng.StartSession(hint) {
		return fmt.Errorf("could not start session")
	}

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- c.feed(eng, cfg.Source.Upstream)
	}()

	outcome := <-sink.done

	// The reader normally finishes right after the terminal notification.
	// A stdin reader blocked on a silent pipe is abandoned instead of
	// holding the command open.
	select {
	case err := <-feedErr:
		if err != nil {
			c.logger.Warn("stream reader stopped", zap.Error(err))
		}
	case <-time.After(250 * time.Millisecond):
	}

	c.saveLastSession(outcome)

	if failed, ok := outcome.(engine.Failed); ok {
		return fmt.Errorf("session failed: %s", failed.Reason)
	}

	return nil
}

// feed pushes the source stream into the engine: stdin NDJSON by default,
// an SSE upstream when a URL is configured. The engine's session context
// aborts in-flight reads when the session terminates early.
func (c *RunCommander) feed(eng *engine.Engine, upstream string) error {
	ctx := eng.SessionContext()

	var tee io.Writer
	if c.teePath != "" {
		f, err := os.Create(c.teePath)
		if err != nil {
			return fmt.Errorf("creating tee file: %w", err)
		}
		defer f.Close()
		tee = f
	}

	if upstream == "" {
		return c.feedLines(ctx, eng, os.Stdin, tee)
	}

	return c.feedSSE(ctx, eng, upstream, tee)
}

// feedLines reads newline-delimited JSON payloads.
func (c *RunCommander) feedLines(ctx context.Context, eng *engine.Engine, r io.Reader, tee io.Writer) error {
	if tee != nil {
		r = io.TeeReader(r, tee)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		eng.PushChunk([]byte(line))
	}

	if err := scanner.Err(); err != nil {
		eng.FailSession("stream read error: " + err.Error())
		return err
	}

	eng.CompleteSession("")
	return nil
}

// feedSSE consumes an SSE upstream; each event's data is one chunk payload.
func (c *RunCommander) feedSSE(ctx context.Context, eng *engine.Engine, upstream string, tee io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream, nil)
	if err != nil {
		eng.FailSession("invalid upstream URL: " + err.Error())
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		eng.FailSession("upstream connection failed: " + err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reason := fmt.Sprintf("upstream returned %s", resp.Status)
		eng.FailSession(reason)
		return fmt.Errorf("%s", reason)
	}

	var reader *sse.Reader
	if tee != nil {
		reader = sse.NewTeeReader(resp.Body, tee)
	} else {
		reader = sse.NewReader(resp.Body)
	}

	for {
		ev, err := reader.Next()
		if err != nil {
			// A canceled session context surfaces as a read error on the
			// response body; that is the engine ending the session, not a
			// stream failure.
			if ctx.Err() != nil {
				return nil
			}
			eng.FailSession("stream read error: " + err.Error())
			return err
		}
		if ev == nil {
			eng.CompleteSession("")
			return nil
		}

		if ev.Data == "[DONE]" {
			eng.CompleteSession("")
			return nil
		}

		eng.PushChunk([]byte(ev.Data))
	}
}

func (c *RunCommander) saveLastSession(outcome engine.Notification) {
	rec := &dotdir.LastSession{FinishedAt: time.Now().UTC()}

	switch n := outcome.(type) {
	case engine.Completed:
		rec.SessionID = n.SessionID
		rec.Outcome = "completed"
		rec.Reasons = n.Reasons
		rec.ContentBytes = len(n.FinalContent)
		rec.Chunks = n.Stats.TotalProcessed
	case engine.Failed:
		rec.SessionID = n.SessionID
		rec.Outcome = "failed"
		rec.Reasons = []string{n.Reason}
		rec.ContentBytes = len(n.Partial)
	default:
		return
	}

	if err := dotdir.NewManager().SaveLastSession(rec, c.configDir); err != nil {
		c.logger.Warn("could not record last session", zap.Error(err))
	}
}

// terminalSink renders engine notifications for an interactive run. The
// final notification is also delivered on done so the command knows when
// to exit.
type terminalSink struct {
	out  io.Writer
	done chan engine.Notification
}

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{
		out:  out,
		done: make(chan engine.Notification, 1),
	}
}

func (s *terminalSink) Notify(n engine.Notification) {
	switch n := n.(type) {
	case engine.Started:
		fmt.Fprintf(s.out, "  %s %s\n", cliui.Dim("session"), cliui.Dim(n.SessionID))

	case engine.Warning:
		fmt.Fprintf(s.out, "  %s\n", cliui.Warn(fmt.Sprintf("%s (%d chunks)", n.Reason, n.Processed)))

	case engine.Completed:
		s.renderCompleted(n)
		s.finish(n)

	case engine.Failed:
		fmt.Fprintf(s.out, "\n  %s session failed: %s\n", cliui.FailMark, n.Reason)
		if n.Partial != "" {
			fmt.Fprintf(s.out, "\n%s\n", cliui.CodeBlock(n.Partial))
		}
		s.finish(n)
	}
}

// finish hands the terminal notification to the waiting command. Only the
// first one counts; the send never blocks the engine.
func (s *terminalSink) finish(n engine.Notification) {
	select {
	case s.done <- n:
	default:
	}
}

func (s *terminalSink) renderCompleted(n engine.Completed) {
	if n.Structured != nil {
		fmt.Fprintf(s.out, "\n%s\n", cliui.Header("Explanation"))
		if rendered, err := cliui.RenderMarkdown(n.Structured.Explanation.Content); err == nil {
			fmt.Fprint(s.out, rendered)
		} else {
			fmt.Fprintln(s.out, n.Structured.Explanation.Content)
		}

		fmt.Fprintf(s.out, "\n%s\n%s", cliui.Header("Code"), cliui.CodeBlock(n.Structured.Code.Content))
	} else if n.FinalContent != "" {
		fmt.Fprintf(s.out, "\n%s\n%s", cliui.Header("Result"), cliui.CodeBlock(n.FinalContent))
	}

	reasons := strings.Join(n.Reasons, ", ")
	if reasons == "" {
		reasons = "complete"
	}

	fmt.Fprintf(s.out, "\n  %s %s %s\n",
		cliui.SuccessMark,
		utils.Truncate(reasons, 72),
		cliui.Dim(fmt.Sprintf("(%d chunks, %d bytes)", n.Stats.TotalProcessed, n.Stats.TotalBytes)),
	)
}
