// Package fallback writes the canned answers used when live generation is
// unavailable.
package fallback

import (
	"fmt"
	"strings"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
	"github.com/covid-rag/reinfection-advisor/internal/query"
)

// Marker labels every fallback answer as not backed by literature.
const Marker = "[ General Guidance - Not Evidence-Based ]"

// DefaultRiskLevel is stated when no evidence is available to grade risk.
const DefaultRiskLevel = "Moderate"

// ChatUnavailableNotice is returned by the chat surface when the backend is
// down end to end.
const ChatUnavailableNotice = "I'm sorry, but the advanced medical knowledge system is currently unavailable. " +
	"Please consult with a healthcare professional for specific medical advice about COVID-19. " +
	"I can still try to provide general information, but cannot access the latest research or give personalized insights."

const closing = "This answer was written without access to the research index. " +
	"Please consult a healthcare professional for advice specific to your situation."

// Responder produces deterministic fallback text.
type Responder struct {
	// RiskLevel overrides DefaultRiskLevel when set.
	RiskLevel string
}

// New returns a Responder stating the default risk level.
func New() *Responder {
	return &Responder{RiskLevel: DefaultRiskLevel}
}

func (r *Responder) risk() string {
	if r == nil || strings.TrimSpace(r.RiskLevel) == "" {
		return DefaultRiskLevel
	}
	return r.RiskLevel
}

// Respond restates the patient's question when one was asked, and otherwise
// summarises the known profile fields.
func (r *Responder) Respond(patient domain.PatientContext) string {
	var sb strings.Builder
	sb.WriteString(Marker)
	sb.WriteString("\n")

	if q, ok := patient.Question(); ok {
		fmt.Fprintf(&sb, "You asked: %q\n\n", q)
		fmt.Fprintf(&sb, "Based on general medical knowledge, the risk level is **%s**. ", r.risk())
		sb.WriteString("Reinfection risk generally depends on age, vaccination history, time since the last infection and existing health conditions.\n\n")
		sb.WriteString(closing)
		return sb.String()
	}

	fmt.Fprintf(&sb, "Based on general medical knowledge, the risk level is **%s**.\n\n", r.risk())
	sb.WriteString("Patient profile: ")
	sb.WriteString(strings.Join(profileFacts(query.ResolveProfile(patient)), "; "))
	sb.WriteString(".\n\n")
	sb.WriteString("Staying up to date with recommended vaccine doses and managing existing conditions lowers the chance of a severe reinfection.\n\n")
	sb.WriteString(closing)
	return sb.String()
}

// profileFacts lists the known fields. Unknown fields are named as such so
// the reader sees what the estimate did not consider.
func profileFacts(p query.Profile) []string {
	facts := []string{
		"age " + p.Age,
		"vaccination status " + p.VaccinationStatus,
	}
	if p.Doses != domain.Unknown {
		facts = append(facts, p.Doses+" vaccine doses")
	}
	if p.Vaccine != domain.Unknown {
		facts = append(facts, "vaccine "+p.Vaccine)
	}
	if len(p.Conditions) > 0 {
		facts = append(facts, "preexisting conditions "+strings.Join(p.Conditions, ", "))
	} else {
		facts = append(facts, "no reported preexisting conditions")
	}
	facts = append(facts, "prior infection severity "+p.Severity)
	return facts
}
