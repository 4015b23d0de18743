package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/source-aware-retrieval/internal/bootstrap"
	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

func ingestCommand(c *cli.Context) error {
	file, document := c.String("file"), c.String("document")
	if (file == "") == (document == "") {
		return fmt.Errorf("exactly one of --file or --document is required")
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("open batch file: %w", err)
		}
		defer f.Close()
		batches, err := readBatches(f)
		if err != nil {
			return err
		}
		return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
			total := 0
			for i, batch := range batches {
				metas, err := app.IngestUC.IngestChunks(ctx, batch)
				if err != nil {
					return fmt.Errorf("batch %d: %w", i+1, err)
				}
				total += len(metas)
			}
			fmt.Fprintf(c.App.Writer, "ingested %d chunks from %d batches\n", total, len(batches))
			return nil
		})
	}

	text, err := os.ReadFile(document)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	raw, attrs := documentAttributes(document, documentFlags{
		DocID:      c.String("doc-id"),
		Title:      c.String("title"),
		SourceType: c.String("source-type"),
		SourceURL:  c.String("source-url"),
		Category:   c.String("category"),
		Priority:   c.Int("priority"),
	}, time.Now().UTC())
	return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
		metas, err := app.IngestUC.IngestText(ctx, raw, attrs, string(text))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "ingested %d chunks from %s\n", len(metas), document)
		return nil
	})
}

func queryCommand(c *cli.Context) error {
	req, err := queryRequest(c)
	if err != nil {
		return err
	}
	return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
		result, err := app.QueryUC.Search(ctx, req)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	})
}

func explainCommand(c *cli.Context) error {
	req, err := queryRequest(c)
	if err != nil {
		return err
	}
	return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
		result, err := app.QueryUC.Search(ctx, req)
		if err != nil {
			return err
		}
		return renderExplain(c.App.Writer, result)
	})
}

func escalationsCommand(c *cli.Context) error {
	priority := domain.EscalationPriority(c.String("priority"))
	return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
		records, err := app.EscalationUC.Pending(ctx, priority, c.Int("limit"))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	})
}

func queryRequest(c *cli.Context) (domain.QueryRequest, error) {
	req := domain.QueryRequest{
		Query:          c.String("text"),
		Limit:          c.Int("limit"),
		Category:       c.String("category"),
		DiversityBoost: c.Bool("diversity"),
	}
	filter, err := filterConfiguration(
		c.StringSlice("filter"),
		c.String("filter-strategy"),
		c.Bool("strict"),
		c.StringSlice("weight"),
	)
	if err != nil {
		return domain.QueryRequest{}, err
	}
	req.Filter = filter
	return req, nil
}

// filterConfiguration builds the request filter from the query flags. Weights use the
// form Category=1.5 and only apply to the weighted strategy.
func filterConfiguration(categories []string, strategy string, strict bool, weights []string) (*domain.FilterConfiguration, error) {
	if len(categories) == 0 && len(weights) == 0 {
		return nil, nil
	}
	s := domain.FilterStrategy(strings.ToLower(strings.TrimSpace(strategy)))
	switch s {
	case "":
		s = domain.FilterHierarchical
	case domain.FilterInclude, domain.FilterExclude, domain.FilterHierarchical, domain.FilterWeighted:
	default:
		return nil, fmt.Errorf("--filter-strategy %q: want include, exclude, hierarchical or weighted", strategy)
	}

	cfg := &domain.FilterConfiguration{
		Strategy:   s,
		Categories: categories,
		StrictMode: strict,
	}
	if len(weights) > 0 {
		if s != domain.FilterWeighted {
			return nil, fmt.Errorf("--weight requires --filter-strategy weighted")
		}
		cfg.Weights = make(map[string]float64, len(weights))
		for _, w := range weights {
			category, value, ok := strings.Cut(w, "=")
			category = strings.TrimSpace(category)
			if !ok || category == "" {
				return nil, fmt.Errorf("--weight %q: want Category=weight", w)
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil || f < 0 {
				return nil, fmt.Errorf("--weight %q: weight must be a non-negative number", w)
			}
			cfg.Weights[category] = f
		}
	}
	return cfg, nil
}
