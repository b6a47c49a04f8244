package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/config"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/exporter"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/pipeline"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
)

func main() {
	inPath := flag.String("in", "", "query file (.csv or .xlsx, one query per row)")
	months := flag.Int("months", 12, "timeframe in months (12 or 24)")
	outDir := flag.String("out", "", "output directory (defaults to the configured exports directory)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: trendfetch -in queries.csv [-months 12|24] [-out dir]")
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *inPath, *months, *outDir); err != nil {
		logger.Error("fetch failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, inPath string, months int, outDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeframe := trends.TimeframeFromMonths(months)
	if timeframe.Months() != months {
		logger.Warn("unsupported months value, using 12",
			slog.Int("months", months))
	}

	file, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open query file: %w", err)
	}
	defer file.Close()

	queries, err := pipeline.LoadQueries(inPath, file)
	if err != nil {
		return fmt.Errorf("load queries: %w", err)
	}
	logger.Info("queries loaded",
		slog.String("file", inPath),
		slog.Int("count", len(queries)))

	cfg := config.Default()
	if outDir == "" {
		outDir = cfg.Paths.ExportsDir
	}

	client, err := trends.NewHTTPClient(trends.ClientConfig{
		BaseURL:           cfg.Trends.BaseURL,
		HostLanguage:      cfg.Trends.HostLanguage,
		TimezoneOffset:    cfg.Trends.TimezoneOffset,
		Timeout:           cfg.Trends.RequestTimeout,
		RequestsPerSecond: cfg.Trends.RPS,
		Burst:             cfg.Trends.Burst,
	}, logger)
	if err != nil {
		return fmt.Errorf("create trends client: %w", err)
	}

	runner := pipeline.NewRunner(client, cfg.Trends.BatchSize, logger, nil)
	result, err := runner.Run(ctx, queries, timeframe, pipeline.LogReporter{Logger: logger})
	if err != nil {
		return err
	}

	for _, batchErr := range result.BatchErrors {
		logger.Warn("batch skipped", slog.String("error", batchErr.Error()))
	}
	if len(result.Omitted) > 0 {
		logger.Warn("queries omitted from output",
			slog.Any("queries", result.Omitted))
	}

	csvExporter := exporter.NewCSVExporter(outDir, logger)
	filename, err := csvExporter.Export(result.Table, timeframe.Months())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	logger.Info("export written",
		slog.String("path", csvExporter.Path(filename)),
		slog.Int("columns", len(result.Table.Columns)),
		slog.Int("rows", len(result.Table.Dates)))
	return nil
}
