// Package export runs one waiting-times export: it reads a day of sampled
// observations, reshapes them into per-attraction series and writes the
// nested and flat JSON files.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/diary-app/waiting-times/services/exporter/internal/models"
	"github.com/diary-app/waiting-times/services/exporter/internal/output"
	"github.com/diary-app/waiting-times/services/exporter/internal/utils"
)

const banner = "=================="

// Source is the part of the store an export reads from.
type Source interface {
	CountObservations(ctx context.Context, start, end time.Time) (int, error)
	FetchSampled(ctx context.Context, start, end time.Time) ([]models.WaitRecord, error)
}

// Options configures a single run.
type Options struct {
	Date         time.Time
	Paths        output.Paths
	QueryTimeout time.Duration
	DryRun       bool
	Now          time.Time
	Out          io.Writer
	Logger       *slog.Logger
}

// Summary reports what a run produced.
type Summary struct {
	WindowStart  time.Time
	WindowEnd    time.Time
	RawCount     int
	SampledCount int
	Series       []models.AttractionSeries
	Flat         []models.FlatRecord
	SeriesFile   string
	FlatFile     string
	FilesWritten bool
}

// Run exports the day of opts.Date from src.
func Run(ctx context.Context, src Source, opts Options) (Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	start, end := utils.DayWindow(opts.Date)
	sum := Summary{
		WindowStart: start,
		WindowEnd:   end,
		SeriesFile:  opts.Paths.SeriesFile(),
		FlatFile:    opts.Paths.FlatFile(start),
	}

	fmt.Fprintln(out, "=== batch run ===")
	fmt.Fprintf(out, "run at:      %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "target date: %s\n", start.Format(utils.DateLayout))
	fmt.Fprintf(out, "output dir:  %s\n", displayDir(opts.Paths.BaseDir))
	fmt.Fprintf(out, "%s\n\n", banner)

	queryCtx := ctx
	if opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, opts.QueryTimeout)
		defer cancel()
	}

	count, err := src.CountObservations(queryCtx, start, end)
	if err != nil {
		return sum, err
	}
	sum.RawCount = count
	fmt.Fprintf(out, "rows on %s: %d\n", start.Format(utils.DateLayout), count)

	records, err := src.FetchSampled(queryCtx, start, end)
	if err != nil {
		return sum, err
	}
	fmt.Fprintf(out, "query returned %d records\n", len(records))
	logger.Debug("fetched sampled observations",
		slog.Int("records", len(records)),
		slog.Time("window_start", start),
		slog.Time("window_end", end))

	sampled := utils.Downsample(records)
	if dropped := len(records) - len(sampled); dropped > 0 {
		logger.Warn("store returned more than one row per bucket", slog.Int("dropped", dropped))
	}
	sum.SampledCount = len(sampled)
	sum.Series = utils.BuildSeries(sampled)
	sum.Flat = utils.Flatten(sum.Series)

	if opts.DryRun {
		fmt.Fprintf(out, "\ndry run: skipping %s (%d attractions, %d records)\n",
			sum.SeriesFile, len(sum.Series), utils.CountPoints(sum.Series))
		fmt.Fprintf(out, "dry run: skipping %s (%d records)\n", sum.FlatFile, len(sum.Flat))
		return sum, nil
	}

	if err := output.WriteJSON(sum.SeriesFile, sum.Series); err != nil {
		return sum, err
	}
	fmt.Fprintf(out, "\n✓ saved %s\n", sum.SeriesFile)
	fmt.Fprintf(out, "  %d attractions, %d wait-time records\n", len(sum.Series), utils.CountPoints(sum.Series))

	if err := output.WriteJSON(sum.FlatFile, sum.Flat); err != nil {
		return sum, err
	}
	sum.FilesWritten = true
	fmt.Fprintf(out, "\n✓ saved %s\n", sum.FlatFile)
	fmt.Fprintf(out, "  %d wait-time records\n", len(sum.Flat))

	fmt.Fprintf(out, "\n%s\n", banner)
	fmt.Fprintln(out, "batch run complete.")
	fmt.Fprintln(out, "\nnext steps:")
	fmt.Fprintln(out, "1. run `firebase deploy` to publish to Firebase Hosting")
	fmt.Fprintln(out, "2. route-optimizer.html and waiting-dashboard.html will pick up the new data")
	fmt.Fprintf(out, "%s\n", banner)

	logger.Info("export finished",
		slog.String("date", start.Format(utils.DateLayout)),
		slog.Int("attractions", len(sum.Series)),
		slog.Int("records", len(sum.Flat)))
	return sum, nil
}

// displayDir resolves dir against the working directory for the banner.
func displayDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}
