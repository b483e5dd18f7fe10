package domain

import "time"

type Mode string

const (
	ModeAnalyst    Mode = "analyst"
	ModeResearcher Mode = "researcher"
	ModeCitizen    Mode = "citizen"
	ModeSimulation Mode = "simulation"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeAnalyst, ModeResearcher, ModeCitizen, ModeSimulation:
		return Mode(s), true
	}
	return "", false
}

// Filters narrow retrieval to a dataset slice. Zero fields mean no constraint.
type Filters struct {
	Dataset  string `json:"dataset,omitempty"`
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
	YearFrom int    `json:"year_from,omitempty"`
	YearTo   int    `json:"year_to,omitempty"`
}

func (f Filters) IsZero() bool {
	return f == Filters{}
}

type Query struct {
	ID           string
	Text         string
	ExplicitMode Mode // empty when the caller gave no hint
	Filters      Filters
	ReceivedAt   time.Time
}

// Suggestion is a curated quick query offered to first-time users.
type Suggestion struct {
	Text string `json:"text"`
	Mode Mode   `json:"mode"`
}
