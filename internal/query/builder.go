// Package query turns patient records and free-form questions into the single
// text used for evidence retrieval and generation.
package query

import (
	"fmt"
	"strings"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

// Profile is the resolved, display-ready view of a patient record.
type Profile struct {
	Age               string
	Doses             string
	Vaccine           string
	Conditions        []string
	VaccinationStatus string
	Severity          string
	Gender            string
	Strain            string
}

// ConditionText joins conditions for prose, or returns "no" when there are none.
func (p Profile) ConditionText() string {
	if len(p.Conditions) == 0 {
		return "no"
	}
	return strings.Join(p.Conditions, ", ")
}

// ResolveProfile reads every known field through its aliases.
func ResolveProfile(ctx domain.PatientContext) Profile {
	return Profile{
		Age:               ctx.Text(domain.AgeKeys...),
		Doses:             ctx.Text(domain.DoseKeys...),
		Vaccine:           ctx.Text(domain.VaccineKeys...),
		Conditions:        ctx.Strings(domain.ConditionKeys...),
		VaccinationStatus: ctx.Text(domain.VaccinationStatusKeys...),
		Severity:          ctx.Text(domain.SeverityKeys...),
		Gender:            ctx.Text(domain.GenderKeys...),
		Strain:            ctx.Text(domain.StrainKeys...),
	}
}

// Build returns the embedded question unchanged when one is present, and
// otherwise composes a deterministic sentence from the patient profile.
func Build(ctx domain.PatientContext) domain.RetrievalQuery {
	if q, ok := ctx.Question(); ok {
		return domain.RetrievalQuery(q)
	}

	p := ResolveProfile(ctx)

	var sb strings.Builder
	sb.WriteString("COVID reinfection risk factors for age ")
	sb.WriteString(p.Age)
	sb.WriteString(" ")
	sb.WriteString(p.Doses)
	sb.WriteString(" doses ")
	sb.WriteString(p.Vaccine)
	if len(p.Conditions) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(p.Conditions, " "))
	}
	if p.VaccinationStatus != domain.Unknown {
		sb.WriteString(", vaccination status ")
		sb.WriteString(p.VaccinationStatus)
	}
	if p.Severity != domain.Unknown {
		sb.WriteString(", prior infection severity ")
		sb.WriteString(p.Severity)
	}

	return domain.RetrievalQuery(strings.TrimSpace(sb.String()))
}

// PatientSummary is the short prose prefix the chat surface puts in front of
// a user's message when a patient record accompanies it.
func PatientSummary(ctx domain.PatientContext) string {
	p := ResolveProfile(ctx)
	return fmt.Sprintf("Based on a patient with: Age %s, Gender %s, COVID strain %s, and %s preexisting condition, ",
		p.Age, p.Gender, p.Strain, p.ConditionText())
}
