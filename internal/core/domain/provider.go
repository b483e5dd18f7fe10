package domain

import "time"

// ProviderConfig describes one entry of the generation fallback chain.
// Providers run strictly in ascending Priority order, one at a time.
type ProviderConfig struct {
	Name       string
	ModelID    string
	Priority   int
	Timeout    time.Duration
	MaxRetries int
}
