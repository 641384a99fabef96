// Package prompt fills the reinfection instruction template with retrieved
// evidence and the patient query.
package prompt

import (
	"strings"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

// TemplateVersion identifies the wording of Template. Bump it whenever the
// template text changes so logged answers can be traced to their prompt.
const TemplateVersion = "reinfection-v2"

const (
	contextHole  = "{context}"
	questionHole = "{question}"
)

// Template is the instruction sent to the generative backend.
const Template = `You are a medical assistant explaining COVID-19 reinfection risk using research evidence.

Patient details (from the system):
- Age and demographics are included in the question
- Vaccine history and conditions are included in the question

Scientific evidence:
{context}

TASK:
1. Start with an empathetic statement to the patient.
2. Clearly state the risk level for reinfection (Low / Moderate / High).
3. In 3-5 sentences, explain the risk factors and patterns from the evidence
   that match the patient's profile (e.g., age, vaccine, conditions).
Only use the given scientific evidence and do not add unsupported information.

Question:
{question}
`

// Assemble renders Template for the given evidence and query.
func Assemble(evidence []domain.EvidencePassage, q domain.RetrievalQuery) string {
	return AssembleWith(Template, evidence, q)
}

// AssembleWith renders an arbitrary template containing the {context} and
// {question} holes. Passages are joined with a blank line in the order given.
func AssembleWith(tpl string, evidence []domain.EvidencePassage, q domain.RetrievalQuery) string {
	return strings.NewReplacer(
		contextHole, JoinEvidence(evidence),
		questionHole, string(q),
	).Replace(tpl)
}

// JoinEvidence concatenates passage texts, skipping empty ones.
func JoinEvidence(evidence []domain.EvidencePassage) string {
	parts := make([]string, 0, len(evidence))
	for _, p := range evidence {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
