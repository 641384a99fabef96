package domain

import (
	"reflect"
	"testing"
)

func TestPatientContext_Text(t *testing.T) {
	tests := []struct {
		name string
		ctx  PatientContext
		keys []string
		want string
	}{
		{"lowercase alias", PatientContext{"age": 65}, AgeKeys, "65"},
		{"capitalised alias", PatientContext{"Age": 65}, AgeKeys, "65"},
		{"json number", PatientContext{"Age": float64(70)}, AgeKeys, "70"},
		{"fractional number", PatientContext{"age": 70.5}, AgeKeys, "70.5"},
		{"missing", PatientContext{}, AgeKeys, Unknown},
		{"nil value", PatientContext{"age": nil}, AgeKeys, Unknown},
		{"blank string", PatientContext{"vaccine": "  "}, VaccineKeys, Unknown},
		{"first alias wins", PatientContext{"age": 40, "Age": 50}, AgeKeys, "40"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.Text(tt.keys...); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPatientContext_Strings(t *testing.T) {
	tests := []struct {
		name string
		ctx  PatientContext
		want []string
	}{
		{"string list", PatientContext{"conditions": []string{"diabetes", "hypertension"}}, []string{"diabetes", "hypertension"}},
		{"decoded json list", PatientContext{"conditions": []any{"asthma", 3, "copd"}}, []string{"asthma", "copd"}},
		{"single string", PatientContext{"Preexisting_Condition": "asthma"}, []string{"asthma"}},
		{"number is dropped", PatientContext{"conditions": 12}, nil},
		{"missing", PatientContext{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ctx.Strings(ConditionKeys...)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Strings() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPatientContext_Question(t *testing.T) {
	if q, ok := (PatientContext{"question": "What is Paxlovid?"}).Question(); !ok || q != "What is Paxlovid?" {
		t.Errorf("Question() = %q, %v", q, ok)
	}
	if _, ok := (PatientContext{"question": "   "}).Question(); ok {
		t.Error("blank question should not count")
	}
	if _, ok := (PatientContext{"question": 42}).Question(); ok {
		t.Error("non-string question should not count")
	}
}

func TestNewQnARecord(t *testing.T) {
	rec := NewQnARecord("q", "a")
	if rec.Question != "q" || rec.Answer != "a" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Timestamp == "" || rec.Timestamp[len(rec.Timestamp)-1] != 'Z' {
		t.Errorf("Timestamp = %q, want UTC RFC3339", rec.Timestamp)
	}
}
