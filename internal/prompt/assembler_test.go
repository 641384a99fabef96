package prompt

import (
	"strings"
	"testing"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

func TestAssemble(t *testing.T) {
	evidence := []domain.EvidencePassage{
		{Text: "Hybrid immunity lowers reinfection odds.", Score: 0.9},
		{Text: "  ", Score: 0.5},
		{Text: "Older adults with diabetes show higher risk.", Score: 0.4},
	}
	got := Assemble(evidence, "COVID reinfection risk factors for age 65")

	checks := []string{
		"Hybrid immunity lowers reinfection odds.\n\nOlder adults with diabetes show higher risk.",
		"Question:\nCOVID reinfection risk factors for age 65",
		"Start with an empathetic statement",
		"(Low / Moderate / High)",
		"3-5 sentences",
		"do not add unsupported information",
	}
	for _, want := range checks {
		if !strings.Contains(got, want) {
			t.Errorf("Assemble() missing %q", want)
		}
	}

	if strings.Contains(got, contextHole) || strings.Contains(got, questionHole) {
		t.Error("Assemble() left a template hole unfilled")
	}
}

func TestAssemble_PreservesEvidenceOrder(t *testing.T) {
	got := Assemble([]domain.EvidencePassage{{Text: "second"}, {Text: "first"}}, "q")
	if strings.Index(got, "second") > strings.Index(got, "first") {
		t.Error("passages were reordered")
	}
}

func TestAssembleWith_CustomTemplate(t *testing.T) {
	got := AssembleWith("E={context} Q={question}", []domain.EvidencePassage{{Text: "a"}, {Text: "b"}}, "why?")
	if got != "E=a\n\nb Q=why?" {
		t.Errorf("AssembleWith() = %q", got)
	}
}

func TestAssemble_QueryContainingHoleIsNotReexpanded(t *testing.T) {
	got := AssembleWith("{question}|{context}", []domain.EvidencePassage{{Text: "ev"}}, "{context}")
	if got != "{context}|ev" {
		t.Errorf("AssembleWith() = %q", got)
	}
}
