package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unknown is rendered for patient fields that are absent or empty.
const Unknown = "unknown"

// Field alias lists. Producers of patient records never agreed on casing,
// so every concept is looked up under each historical spelling in order.
var (
	AgeKeys               = []string{"age", "Age"}
	DoseKeys              = []string{"doses", "Doses", "dose_count", "Dose_Count"}
	VaccineKeys           = []string{"vaccine", "Vaccine", "vaccine_type", "Vaccine_Type"}
	ConditionKeys         = []string{"conditions", "Conditions", "Preexisting_Condition", "preexisting_condition"}
	VaccinationStatusKeys = []string{"Vaccination_Status", "vaccination_status"}
	SeverityKeys          = []string{"Severity", "severity", "Symptoms", "symptoms"}
	GenderKeys            = []string{"Gender", "gender"}
	StrainKeys            = []string{"COVID_Strain", "covid_strain", "strain"}
	QuestionKeys          = []string{"question", "Question"}
)

// PatientContext is a loosely typed patient record as decoded from JSON.
type PatientContext map[string]any

// Lookup returns the first non-nil value stored under any of keys.
func (p PatientContext) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Text resolves keys to a display string, falling back to Unknown.
func (p PatientContext) Text(keys ...string) string {
	v, ok := p.Lookup(keys...)
	if !ok {
		return Unknown
	}
	s := strings.TrimSpace(FormatValue(v))
	if s == "" {
		return Unknown
	}
	return s
}

// Strings resolves keys to a list. A single string becomes a one-item list
// and any other non-list value becomes an empty list.
func (p PatientContext) Strings(keys ...string) []string {
	v, ok := p.Lookup(keys...)
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return []string{val}
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Question returns the embedded free-form question, if any.
func (p PatientContext) Question() (string, bool) {
	v, ok := p.Lookup(QuestionKeys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// FormatValue renders a decoded JSON scalar the way a person would write it.
// JSON numbers arrive as float64, so whole numbers drop their decimal point.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return FormatValue(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := FormatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// RetrievalQuery is the single text used for both retrieval and generation.
type RetrievalQuery string

func (q RetrievalQuery) String() string { return string(q) }

// EvidencePassage is a literature chunk returned by the evidence store.
type EvidencePassage struct {
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
	Source string  `json:"source,omitempty"`
}

// QnARecord is one logged interaction.
type QnARecord struct {
	Timestamp string `json:"timestamp"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
}

// NewQnARecord stamps a record with the current UTC time.
func NewQnARecord(question, answer string) QnARecord {
	return QnARecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Question:  question,
		Answer:    answer,
	}
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry in a chat session history.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
