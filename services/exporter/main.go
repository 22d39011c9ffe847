package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/diary-app/waiting-times/services/exporter/internal/config"
	"github.com/diary-app/waiting-times/services/exporter/internal/db"
	"github.com/diary-app/waiting-times/services/exporter/internal/export"
	"github.com/diary-app/waiting-times/services/exporter/internal/output"
	"github.com/diary-app/waiting-times/services/exporter/internal/utils"
)

const (
	exitOK              = 0
	exitFailure         = 1
	exitInvalidArgument = 2
)

// errInvalidArgument covers bad flags and dates.
var errInvalidArgument = errors.New("invalid argument")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := exportDay(ctx, args, stdout, stderr)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInvalidArgument), errors.Is(err, utils.ErrInvalidDate):
		return exitInvalidArgument
	default:
		return exitFailure
	}
}

func exportDay(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("exporter", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dateFlag := fs.String("date", "", "target date (YYYY-MM-DD); defaults to today")
	outputDir := fs.String("output-dir", "", "output directory; overrides EXPORT_OUTPUT_DIR")
	configPath := fs.String("config", "", "optional YAML config file; overrides EXPORTER_CONFIG")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArgument, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments: %s", errInvalidArgument, strings.Join(fs.Args(), " "))
	}

	// Reject a malformed date before touching config or the store.
	if *dateFlag != "" {
		if _, err := time.Parse(utils.DateLayout, *dateFlag); err != nil {
			return fmt.Errorf("%w %q: expected YYYY-MM-DD, e.g. 2024-01-15", utils.ErrInvalidDate, *dateFlag)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}

	logger := newLogger(stderr, cfg.LogLevel).With(slog.String("run_id", uuid.NewString()))
	slog.SetDefault(logger)

	now := time.Now()
	date, err := utils.ParseTargetDate(*dateFlag, now, cfg.Location)
	if err != nil {
		return err
	}

	store, err := db.Open(ctx, cfg.DatabaseURL, cfg.Table, cfg.Location)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = export.Run(ctx, store, export.Options{
		Date:         date,
		Paths:        output.Paths{BaseDir: cfg.OutputDir},
		QueryTimeout: cfg.QueryTimeout,
		DryRun:       cfg.DryRun,
		Now:          now,
		Out:          stdout,
		Logger:       logger,
	})
	return err
}

// newLogger builds a text slog logger at the given level, defaulting to info.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
