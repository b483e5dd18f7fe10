package usecase

import (
	"strings"

	"datanav/internal/core/domain"
)

// Cue phrases per inferable mode. Simulation is never inferred: it is only
// reachable through an explicit mode hint or the simulation entrypoint.
var modeCues = map[domain.Mode][]string{
	domain.ModeAnalyst: {
		"compare", "comparison", "versus", " vs ", "trend", "change over",
		"correlat", "growth", "average", "median", "percentage", "per capita",
		"breakdown", "distribution", "how much", "how many", "rate of",
	},
	domain.ModeResearcher: {
		"methodology", "provenance", "lineage", "source of", "sources",
		"cite", "citation", "collected", "sample size", "raw data",
		"metadata", "reference", "dataset id", "measurement",
	},
	domain.ModeCitizen: {
		"what is", "what are", "who ", "when ", "where ", "why ", "explain",
		"tell me", "in simple", "plain language", "mean for me",
		"my neighborhood", "my city", "should i",
	},
}

// inferencePriority fixes the tie-break order: citizen beats analyst beats
// researcher.
var inferencePriority = []domain.Mode{domain.ModeCitizen, domain.ModeAnalyst, domain.ModeResearcher}

// ClassifyMode picks the answer mode for a query. An explicit hint always
// wins. Otherwise cue phrases are counted per mode and the highest total
// wins; no signal at all falls back to citizen. The scores are returned for
// logging.
func ClassifyMode(q domain.Query) (domain.Mode, map[domain.Mode]int) {
	scores := map[domain.Mode]int{
		domain.ModeCitizen:    0,
		domain.ModeAnalyst:    0,
		domain.ModeResearcher: 0,
	}
	text := " " + strings.ToLower(q.Text) + " "
	for mode, cues := range modeCues {
		for _, cue := range cues {
			scores[mode] += strings.Count(text, cue)
		}
	}

	if q.ExplicitMode != "" {
		return q.ExplicitMode, scores
	}

	best := domain.ModeCitizen
	bestScore := -1
	for _, mode := range inferencePriority {
		if scores[mode] > bestScore {
			best = mode
			bestScore = scores[mode]
		}
	}
	return best, scores
}
