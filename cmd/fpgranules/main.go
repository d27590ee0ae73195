package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fpgranules/internal/logger"
	"fpgranules/pkg/config"
	"fpgranules/pkg/pipeline"
	"fpgranules/pkg/preprocess"
	"fpgranules/pkg/segment"
	"fpgranules/pkg/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fpgranules", flag.ContinueOnError)
	configPath := fs.String("config", "fpgranules.yaml", "YAML configuration file")
	initConfig := fs.Bool("init-config", false, "Write a default configuration file to -config and exit")
	date := fs.String("date", "", "Run date label, e.g. 230603")
	proms := fs.String("prominences", "", "Comma separated prominences (up to 3, 0 skips a slot)")
	sourceDir := fs.String("source", "", "Directory containing the two-channel images (single plane; project z-stacks beforehand)")
	destDir := fs.String("dest", "", "Directory receiving the output folders")
	ext := fs.String("ext", "", "Input file extension")
	workers := fs.Int("workers", 0, "Images analysed concurrently")
	sqlitePath := fs.String("sqlite", "", "Also store the tables in this SQLite database")
	plot := fs.Bool("plot", false, "Save a pct_foci_cell bar chart per prominence")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	jsonLogs := fs.Bool("json-logs", false, "Log JSON to stderr instead of console output")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			return 1
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// flags given on the command line override the file
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "date":
			cfg.Run.Date = *date
		case "prominences":
			cfg.Run.Prominences, flagErr = config.ParseProminences(*proms)
		case "source":
			cfg.Run.SourceDir = *sourceDir
		case "dest":
			cfg.Run.DestDir = *destDir
		case "ext":
			cfg.Run.Extension = *ext
		case "workers":
			cfg.Run.Workers = *workers
		case "sqlite":
			cfg.Output.SQLitePath = *sqlitePath
		case "plot":
			cfg.Output.Plot = *plot
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "json-logs":
			cfg.Logging.Console = !*jsonLogs
		}
	})

	level := logger.ParseLevel(cfg.Logging.Level)
	var log zerolog.Logger
	if cfg.Logging.Console {
		log = logger.NewConsole(level)
	} else {
		log = logger.New(os.Stderr, level)
	}

	if flagErr != nil {
		log.Error().Err(flagErr).Msg("invalid flags")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	params := pipeline.Params{
		Date:        cfg.Run.Date,
		Prominences: cfg.Run.Prominences,
		SourceDir:   cfg.Run.SourceDir,
		DestDir:     cfg.Run.DestDir,
		Extension:   cfg.Run.Extension,
		Workers:     cfg.Run.Workers,
		Preprocess: preprocess.Options{
			Sigma:              cfg.Preprocess.Sigma,
			Accuracy:           cfg.Preprocess.Accuracy,
			BoundaryBallRadius: cfg.Preprocess.BoundaryBallRadius,
			SignalBallRadius:   cfg.Preprocess.SignalBallRadius,
		},
		Segment: segment.Options{
			MinArea: cfg.Segmentation.MinArea,
			MaxArea: cfg.Segmentation.MaxArea,
		},
		DateGuard: cfg.Output.SpreadsheetDateGuard,
		Plot:      cfg.Output.Plot,
	}
	deps := pipeline.Deps{Logger: log}

	if cfg.Output.SQLitePath != "" {
		s, err := store.Open(cfg.Output.SQLitePath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.Output.SQLitePath).Msg("failed to open database")
			return 1
		}
		defer s.Close()
		deps.Store = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("date", params.Date).
		Ints("prominences", params.Prominences).
		Str("source", params.SourceDir).
		Str("dest", params.DestDir).
		Int("workers", params.Workers).
		Msg("starting granule quantification")

	start := time.Now()
	driver := pipeline.NewDriver(params, deps)
	err = driver.Process(ctx)

	for _, r := range driver.Runs() {
		if r.Err != nil {
			continue
		}
		fmt.Printf("prominence %d: %d images, %d cells, %d with granules, %d granules -> %s\n",
			r.Prominence, r.Images, r.Stats.Cells, r.Stats.FociCells, r.Stats.Granules, r.Dir)
	}
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("granule quantification failed")
		return 1
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("done")
	return 0
}
