package usecase

import "datanav/internal/core/domain"

var quickQueries = []domain.Suggestion{
	{Text: "How did the city budget change between 2021 and 2023?", Mode: domain.ModeAnalyst},
	{Text: "Compare unemployment across districts over the last five years", Mode: domain.ModeAnalyst},
	{Text: "Which datasets back the air quality index and how are they collected?", Mode: domain.ModeResearcher},
	{Text: "What is the methodology behind the census population estimates?", Mode: domain.ModeResearcher},
	{Text: "What does the new transport budget mean for my commute?", Mode: domain.ModeCitizen},
	{Text: "Where does my neighborhood rank in green space per resident?", Mode: domain.ModeCitizen},
	{Text: "Project school enrollment if current migration continues", Mode: domain.ModeSimulation},
}

// Suggestions returns the curated quick queries, optionally narrowed to one
// mode.
func Suggestions(mode domain.Mode) []domain.Suggestion {
	if mode == "" {
		out := make([]domain.Suggestion, len(quickQueries))
		copy(out, quickQueries)
		return out
	}
	out := make([]domain.Suggestion, 0, len(quickQueries))
	for _, s := range quickQueries {
		if s.Mode == mode {
			out = append(out, s)
		}
	}
	return out
}
