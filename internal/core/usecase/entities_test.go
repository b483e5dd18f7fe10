package usecase

import (
	"reflect"
	"testing"
)

func TestExtractEntityTermsQuotedPhraseFirst(t *testing.T) {
	terms := extractEntityTerms(`How is the "air quality index" measured in Riverside County?`)
	if len(terms) == 0 || terms[0] != "air quality index" {
		t.Fatalf("expected quoted phrase first, got %v", terms)
	}
}

func TestExtractEntityTermsCapitalizedRun(t *testing.T) {
	terms := extractEntityTerms("What changed in the Riverside County budget?")
	found := false
	for _, term := range terms {
		if term == "Riverside County" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected capitalized run, got %v", terms)
	}
}

func TestExtractEntityTermsSkipsStopwordsAndShortTokens(t *testing.T) {
	terms := extractEntityTerms("What is the an a it?")
	if len(terms) != 0 {
		t.Fatalf("expected no terms, got %v", terms)
	}
}

func TestExtractEntityTermsLongTokens(t *testing.T) {
	terms := extractEntityTerms("how does unemployment relate to migration")
	want := []string{"unemployment", "migration"}
	if !reflect.DeepEqual(terms, want) {
		t.Fatalf("expected %v, got %v", want, terms)
	}
}

func TestExtractEntityTermsCapped(t *testing.T) {
	terms := extractEntityTerms(`"one thing" "two thing" "three thing" Alpha Beta Gamma Delta unemployment population districts`)
	if len(terms) > maxEntityTerms {
		t.Fatalf("expected at most %d terms, got %d: %v", maxEntityTerms, len(terms), terms)
	}
}
