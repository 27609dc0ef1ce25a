package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-stream-go/internal/tracer"
)

// app carries what every subcommand shares.
type app struct {
	logger   *slog.Logger
	shutdown func(context.Context) error

	logLevel  string
	logFormat string
	trace     bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "chunkreplay",
		Short: "Replay vendor streams as generic chunks",
		Long: `chunkreplay feeds recorded raw vendor chunks through the matching
transformer and prints the generic chunks as JSON lines. The demo command
runs the whole engine against the lorem vendor with local tools.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.shutdown != nil {
				return a.shutdown(context.Background())
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "log format: text or json")
	cmd.PersistentFlags().BoolVar(&a.trace, "trace", false, "print OpenTelemetry spans to stderr")

	cmd.AddCommand(newReplayCmd(a), newDemoCmd(a))
	return cmd
}

// setup builds the logger and, with --trace, the stdout span exporter.
// Logs and spans go to stderr so stdout stays one chunk per line.
func (a *app) setup(stderr io.Writer) error {
	opts := &slog.HandlerOptions{Level: parseLevel(a.logLevel)}
	switch strings.ToLower(a.logFormat) {
	case "json":
		a.logger = slog.New(slog.NewJSONHandler(stderr, opts))
	case "text", "":
		a.logger = slog.New(slog.NewTextHandler(stderr, opts))
	default:
		return fmt.Errorf("unsupported log format %q", a.logFormat)
	}

	exporter := tracer.ExporterNone
	if a.trace {
		exporter = tracer.ExporterStdout
	}
	shutdown, err := tracer.Setup(exporter, stderr)
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
