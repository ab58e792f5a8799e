package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-restaurants/config"
	"github.com/aluiziolira/go-scrape-restaurants/geocode"
	"github.com/aluiziolira/go-scrape-restaurants/metrics"
	"github.com/aluiziolira/go-scrape-restaurants/models"
	"github.com/aluiziolira/go-scrape-restaurants/pipeline"
	"github.com/aluiziolira/go-scrape-restaurants/scraper"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dinercadeau-restaurants",
		Short: "Build a CSV index of Diner Cadeau restaurants",
		Long: "Crawls the Diner Cadeau restaurant listing, extracts each restaurant from embedded " +
			"structured data, optionally geocodes addresses through Nominatim, computes the distance " +
			"to Utrecht centre and writes one table row per restaurant.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	runID := uuid.NewString()
	slog.Info("starting scrape",
		slog.String("run_id", runID),
		slog.String("base_url", cfg.Fetch.BaseURL),
		slog.String("city", cfg.Fetch.City),
		slog.Int("pages", cfg.Fetch.MaxPages),
		slog.Bool("geocoding", cfg.GeocodingEnabled),
	)

	m := metrics.New()
	fetcher, err := scraper.NewFetcher(cfg.Fetch, m)
	if err != nil {
		return fmt.Errorf("initialise fetcher: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithBaseURL(cfg.Fetch.BaseURL),
		pipeline.WithRunID(runID),
		pipeline.WithMetrics(m),
	}
	if cfg.GeocodingEnabled {
		g, err := geocode.New(cfg.Geocode, m)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithGeocoder(g))
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return err
	}

	p := pipeline.NewPipeline(fetcher, writer, opts...)
	reportCtx, stopReporting := context.WithCancel(ctx)
	defer stopReporting()
	if cfg.Verbose {
		p.StartMetricsReporting(reportCtx, 10*time.Second)
	}

	startTime := time.Now()
	result, runErr := p.Run(ctx)
	stopReporting()
	if runErr != nil {
		if err := writer.Discard(); err != nil {
			slog.Error("discard output", slog.Any("error", err))
		}
		writeMetrics(cfg.MetricsFile, m)
		return runErr
	}

	if err := writer.Validate(); err != nil {
		writer.Discard()
		return fmt.Errorf("output validation failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return err
	}
	writeMetrics(cfg.MetricsFile, m)

	printSummary(out, result, time.Since(startTime), cfg, p.GetMetrics())
	return nil
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		return pipeline.NewDualWriter(filename, pipeline.JSONCompanion(filename))
	case "xlsx":
		return pipeline.NewXLSXWriter(filename)
	default:
		return nil, &config.ConfigError{Field: "format", Err: fmt.Errorf("unsupported format: %s", format)}
	}
}

func writeMetrics(path string, m *metrics.Metrics) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		slog.Error("write metrics textfile", slog.String("path", path), slog.Any("error", err))
		return
	}
	slog.Debug("metrics written", slog.String("path", path))
}

func printSummary(w io.Writer, result *models.RunResult, duration time.Duration, cfg *config.Config, snapshot pipeline.Snapshot) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")
	fmt.Fprintf(w, "  Run ID:        %s\n", result.RunID)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Parsed:        %d\n", result.ParsedCount)
	fmt.Fprintf(w, "  Restaurants:   %d\n", len(result.Restaurants))
	fmt.Fprintf(w, "  Duplicates:    %d\n", result.DuplicateCount)
	if len(result.ParseErrors) > 0 {
		fmt.Fprintf(w, "  Skipped pages: %d\n", len(result.ParseErrors))
	}
	if len(snapshot.Validation) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", snapshot.Validation)
	}
	if cfg.GeocodingEnabled {
		fmt.Fprintf(w, "  Geocoded:      %d/%d\n", result.Geocoded, result.GeocodeAttempts)
	}
	fmt.Fprintf(w, "  With distance: %d\n", result.WithDistance)
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Output file:   %s\n", cfg.OutputFile)
	fmt.Fprintln(w, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
