package mcpadapter

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"datanav/internal/core/domain"
)

// renderAnswer flattens an answer record into tool output: the answer text
// followed by the cited sources in first-appearance order.
func renderAnswer(record *domain.AnswerRecord) string {
	var b strings.Builder
	b.WriteString(record.AnswerText)

	if sources := citedSources(record.Citations); len(sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for i, id := range sources {
			fmt.Fprintf(&b, "%d. %s\n", i+1, id)
		}
	}
	if record.PartialRetrieval {
		b.WriteString("\nNote: some retrieval stores were unavailable, the answer may be incomplete.\n")
	}
	return b.String()
}

func renderSimulation(result *domain.SimulationResult) string {
	var b strings.Builder
	b.WriteString(result.Narrative)

	if len(result.Projections) > 0 {
		b.WriteString("\n\nProjections:\n")
		w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "period\tvalue\tlow\thigh")
		for _, p := range result.Projections {
			fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\n", p.Period, p.Value, p.Low, p.High)
		}
		_ = w.Flush()
	}
	if len(result.Assumptions) > 0 {
		b.WriteString("\nAssumptions:\n")
		for _, a := range result.Assumptions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	if len(result.UncertaintyFactors) > 0 {
		b.WriteString("\nUncertainty factors:\n")
		for _, u := range result.UncertaintyFactors {
			fmt.Fprintf(&b, "- %s\n", u)
		}
	}
	if sources := citedSources(result.Citations); len(sources) > 0 {
		b.WriteString("\nSources:\n")
		for i, id := range sources {
			fmt.Fprintf(&b, "%d. %s\n", i+1, id)
		}
	}
	return b.String()
}

func citedSources(citations []domain.Citation) []string {
	seen := make(map[string]struct{}, len(citations))
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		out = append(out, c.SourceID)
	}
	return out
}
