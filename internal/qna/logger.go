// Package qna records every explanation as a question/answer pair.
package qna

import (
	"context"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

// Logger appends one record per explanation. Log never fails the caller;
// sinks report their own errors through slog.
type Logger interface {
	Log(ctx context.Context, question, answer string)
}

// Sink is a destination that can report append failures.
type Sink interface {
	Append(ctx context.Context, rec domain.QnARecord) error
}

// Multi fans a record out to several sinks. Every sink receives the same
// timestamped record; a failing sink does not stop the others.
type Multi struct {
	sinks []Sink
}

// NewMulti returns a Logger writing to each non-nil sink.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Log implements Logger.
func (m *Multi) Log(ctx context.Context, question, answer string) {
	rec := domain.NewQnARecord(question, answer)
	for _, s := range m.sinks {
		_ = s.Append(ctx, rec)
	}
}

// Discard drops every record.
type Discard struct{}

func (Discard) Log(context.Context, string, string) {}
