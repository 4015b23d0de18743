package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/source-aware-retrieval/internal/bootstrap"
	"github.com/kirillkom/source-aware-retrieval/internal/config"
	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/observability/logging"
)

const loggerKey = "logger"

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "retrieval",
		Usage:     "Ingest source-attributed chunks and query them with relevance scoring and fallback",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the retrieval tuning YAML file",
				EnvVars: []string{"RETRIEVAL_CONFIG_PATH"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Enrich, embed and index chunks from a JSONL batch file or a plain-text document",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "JSONL file, one ingest batch per line",
					},
					&cli.StringFlag{
						Name:    "document",
						Aliases: []string{"d"},
						Usage:   "Plain-text document to split and ingest",
					},
					&cli.StringFlag{Name: "doc-id", Usage: "Document id (defaults to the file name)"},
					&cli.StringFlag{Name: "title", Usage: "Document title"},
					&cli.StringFlag{Name: "source-type", Usage: "Source type, e.g. manual_upload or api_sync", Value: "manual_upload"},
					&cli.StringFlag{Name: "source-url", Usage: "Source URL of the document"},
					&cli.StringFlag{Name: "category", Usage: "Category path, e.g. Support/Returns"},
					&cli.IntFlag{Name: "priority", Usage: "Document priority"},
				},
			},
			{
				Name:   "query",
				Usage:  "Run a query through filtering, scoring and fallback and print the JSON result",
				Action: queryCommand,
				Flags:  queryFlags(),
			},
			{
				Name:   "explain",
				Usage:  "Run a query and print the score breakdown of every result",
				Action: explainCommand,
				Flags:  queryFlags(),
			},
			{
				Name:   "escalations",
				Usage:  "List stored escalations",
				Action: escalationsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "priority", Usage: "Only list one priority (low, medium, high)"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of records", Value: 20},
				},
			},
		},
	}
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "text",
			Aliases:  []string{"q"},
			Usage:    "Query text",
			Required: true,
		},
		&cli.StringFlag{Name: "category", Usage: "Category context of the query"},
		&cli.StringSliceFlag{Name: "filter", Usage: "Filter categories, applied with --filter-strategy"},
		&cli.StringFlag{
			Name:  "filter-strategy",
			Usage: "Category filter strategy: include, exclude, hierarchical or weighted",
			Value: string(domain.FilterHierarchical),
		},
		&cli.BoolFlag{Name: "strict", Usage: "Match the chunk category only, ignoring tags (include strategy)"},
		&cli.StringSliceFlag{Name: "weight", Usage: "Category weight as Category=1.5 (weighted strategy)"},
		&cli.IntFlag{Name: "limit", Usage: "Maximum number of results"},
		&cli.BoolFlag{Name: "diversity", Usage: "Penalise repeated sources in the ranking"},
	}
}

func setupLogger(c *cli.Context) error {
	logger := logging.NewJSONLoggerTo(c.App.ErrWriter, "retrieval", c.String("log-level"))
	slog.SetDefault(logger)
	c.App.Metadata = map[string]any{loggerKey: logger}
	return nil
}

// withApp bootstraps the application for one command and tears it down afterwards.
func withApp(c *cli.Context, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	cfg.LogLevel = c.String("log-level")
	if path := c.String("config"); path != "" {
		cfg.RetrievalConfigPath = path
	}

	logger, _ := c.App.Metadata[loggerKey].(*slog.Logger)
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()
	return fn(ctx, app)
}
