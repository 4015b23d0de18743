package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/core/enrichment"
)

func renderExplain(w io.Writer, result *domain.QueryResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "query:\t%s\n", result.Query)
	fmt.Fprintf(tw, "confidence:\t%.3f\n", result.Confidence)
	fmt.Fprintf(tw, "strategy:\t%s\n", result.Outcome.Strategy)
	if result.Outcome.Response != "" {
		fmt.Fprintf(tw, "response:\t%s\n", result.Outcome.Response)
	}
	for _, attempt := range result.Outcome.Attempts {
		status := "ok"
		if !attempt.Success {
			status = "miss"
		}
		if attempt.Error != "" {
			status = "error: " + attempt.Error
		}
		fmt.Fprintf(tw, "attempt:\t%s\t%s\t%s\n", attempt.Strategy, status, attempt.Duration)
	}

	for i, hit := range result.Results {
		fmt.Fprintf(tw, "\n#%d\t%.3f\t%s\n", i+1, hit.RelevanceScore, enrichment.Attribution(hit.CandidateHit).CitationText)
		for _, f := range hit.ScoreFactors {
			fmt.Fprintf(tw, "\t%s\tscore=%.3f\tweight=%.2f\tcontribution=%.3f\t%.1f%%\n",
				f.Factor, f.Score, f.Weight, f.Contribution, f.Percentage)
		}
		if hit.CategoryBoost > 0 && hit.CategoryBoost != 1 {
			fmt.Fprintf(tw, "\tcategory boost\tx%.2f\n", hit.CategoryBoost)
		}
		if hit.DiversityPenalty > 0 {
			fmt.Fprintf(tw, "\tdiversity penalty\t%.3f\n", hit.DiversityPenalty)
		}
	}
	return tw.Flush()
}
