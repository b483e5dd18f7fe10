package usecase

import (
	"fmt"
	"strings"

	"datanav/internal/core/domain"
)

const citeInstruction = `Answer only from the numbered context below.
Cite every factual claim with the bracketed source number, like [1] or [2].
If the context is insufficient, say it directly.`

var modeFramings = map[domain.Mode]string{
	domain.ModeAnalyst:    "You answer for a data analyst. Lead with figures, compare values explicitly and name the direction and size of every change.",
	domain.ModeResearcher: "You answer for a researcher. Name the dataset each claim comes from and mention collection caveats present in the context.",
	domain.ModeCitizen:    "You answer for a resident with no statistics background. Use short plain sentences and avoid jargon.",
	domain.ModeSimulation: "You project a hypothetical scenario. Reason only from the statistical summary and context given, and state every assumption you make.",
}

func buildAnswerPrompt(mode domain.Mode, question string, window *domain.ContextWindow) string {
	framing, ok := modeFramings[mode]
	if !ok {
		framing = modeFramings[domain.ModeCitizen]
	}

	return fmt.Sprintf(`%s
%s

Question:
%s

Context:
%s`, framing, citeInstruction, question, renderContextBlock(window))
}

func buildSimulationPrompt(req domain.SimulationRequest, summary string, window *domain.ContextWindow) string {
	return fmt.Sprintf(`%s
%s

Scenario:
%s

Horizon: %d months

Statistical summary:
%s

Context:
%s`, modeFramings[domain.ModeSimulation], citeInstruction, req.Scenario, req.HorizonMonths, summary, renderContextBlock(window))
}

func renderContextBlock(window *domain.ContextWindow) string {
	var b strings.Builder
	for idx, item := range window.Items {
		b.WriteString(fmt.Sprintf(
			"[%d] source=%s dataset=%s score=%.3f\n%s\n\n",
			idx+1,
			item.SourceID,
			item.Dataset,
			item.Score,
			item.Snippet,
		))
	}
	return b.String()
}
