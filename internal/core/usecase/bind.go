package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"datanav/internal/core/domain"
)

var citationMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// markerConfidence is assigned to citations the model stated itself via a
// [n] marker; lexical fallback citations carry their overlap ratio instead.
const markerConfidence = 0.9

type bindResult struct {
	Text        string
	Citations   []domain.Citation
	Unsupported []domain.Span
	Mismatches  int
}

// BindCitations splits the generated text into sentence-level claim spans
// and associates each with context window items. Inline [n] markers map to
// window positions; a marker pointing outside the window is dropped and
// counted as a mismatch. Spans without a valid marker fall back to lexical
// token overlap against the snippets, and below the threshold a span is
// recorded as unsupported rather than bound to a guessed source. Offsets
// refer to the returned marker-stripped text.
func BindCitations(raw string, window *domain.ContextWindow, threshold float64) bindResult {
	cleaned, refs := stripMarkers(raw)
	result := bindResult{Text: cleaned}

	itemTokens := make([]map[string]struct{}, len(window.Items))
	for i, item := range window.Items {
		itemTokens[i] = toTokenSet(item.Title + " " + item.Snippet)
	}

	for _, span := range splitSentences(cleaned) {
		bound := false
		seenSources := make(map[string]struct{}, 2)
		for _, ref := range refs {
			if ref.pos < span.Start || ref.pos > span.End {
				continue
			}
			if ref.index < 1 || ref.index > len(window.Items) {
				result.Mismatches++
				continue
			}
			sourceID := window.Items[ref.index-1].SourceID
			if _, dup := seenSources[sourceID]; dup {
				continue
			}
			seenSources[sourceID] = struct{}{}
			result.Citations = append(result.Citations, domain.Citation{
				Span:       span,
				SourceID:   sourceID,
				Confidence: markerConfidence,
			})
			bound = true
		}
		if bound {
			continue
		}

		sentenceTokens := toTokenSet(cleaned[span.Start:span.End])
		bestIdx := -1
		bestOverlap := 0.0
		for i, tokens := range itemTokens {
			if overlap := tokenOverlap(sentenceTokens, tokens); overlap > bestOverlap {
				bestOverlap = overlap
				bestIdx = i
			}
		}
		if bestIdx >= 0 && bestOverlap >= threshold {
			result.Citations = append(result.Citations, domain.Citation{
				Span:       span,
				SourceID:   window.Items[bestIdx].SourceID,
				Confidence: bestOverlap,
			})
			continue
		}
		result.Unsupported = append(result.Unsupported, span)
	}
	return result
}

type markerRef struct {
	index int // 1-based context window position
	pos   int // offset in the cleaned text where the marker stood
}

func stripMarkers(raw string) (string, []markerRef) {
	matches := citationMarkerRe.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return raw, nil
	}

	var b strings.Builder
	refs := make([]markerRef, 0, len(matches))
	last := 0
	for _, m := range matches {
		segment := raw[last:m[0]]
		b.WriteString(strings.TrimRight(segment, " "))
		if idx, err := strconv.Atoi(raw[m[2]:m[3]]); err == nil {
			refs = append(refs, markerRef{index: idx, pos: b.Len()})
		}
		last = m[1]
	}
	b.WriteString(raw[last:])
	return b.String(), refs
}

// splitSentences yields trimmed sentence spans. Terminal punctuation only
// closes a sentence when followed by whitespace or the end of text, which
// keeps decimals like 3.5 and dotted abbreviations intact.
func splitSentences(text string) []domain.Span {
	spans := make([]domain.Span, 0, 8)
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		terminal := c == '.' || c == '!' || c == '?' || c == '\n'
		if !terminal {
			continue
		}
		if c != '\n' && i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\n' {
			continue
		}
		if span, ok := trimmedSpan(text, start, i+1); ok {
			spans = append(spans, span)
		}
		start = i + 1
	}
	if span, ok := trimmedSpan(text, start, len(text)); ok {
		spans = append(spans, span)
	}
	return spans
}

func trimmedSpan(text string, start, end int) (domain.Span, bool) {
	for start < end && isSpaceByte(text[start]) {
		start++
	}
	for end > start && isSpaceByte(text[end-1]) {
		end--
	}
	if end-start < 2 {
		return domain.Span{}, false
	}
	return domain.Span{Start: start, End: end}, true
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
