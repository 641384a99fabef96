// Package explain produces the patient-facing reinfection explanation,
// choosing between live generation and the fallback text.
package explain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
	"github.com/covid-rag/reinfection-advisor/internal/fallback"
	"github.com/covid-rag/reinfection-advisor/internal/qna"
	"github.com/covid-rag/reinfection-advisor/internal/query"
)

// LiteratureMarker prefixes answers produced by (or attempted through) the
// evidence-backed path.
const LiteratureMarker = "[ RAG Medical Literature ]"

// Path identifies which branch produced an answer.
type Path string

const (
	PathLive     Path = "live"
	PathFallback Path = "fallback"
	PathError    Path = "error"
)

// Result is the structured outcome of one explanation.
type Result struct {
	Answer string
	Query  domain.RetrievalQuery
	Path   Path
	// Err is set on the error path, and on the fallback path when the
	// generator reports why it is not ready.
	Err error
}

// Orchestrator runs explanations. All fields are required except Fallback,
// which defaults to fallback.New().
type Orchestrator struct {
	Generator domain.Generator
	Fallback  *fallback.Responder
	Logger    qna.Logger
}

// New returns an Orchestrator.
func New(gen domain.Generator, fb *fallback.Responder, logger qna.Logger) *Orchestrator {
	if fb == nil {
		fb = fallback.New()
	}
	if logger == nil {
		logger = qna.Discard{}
	}
	return &Orchestrator{Generator: gen, Fallback: fb, Logger: logger}
}

// Explain returns the formatted answer for patient. It never fails.
func (o *Orchestrator) Explain(ctx context.Context, patient domain.PatientContext) string {
	return o.Run(ctx, patient).Answer
}

// Run explains patient and logs exactly one interaction record.
func (o *Orchestrator) Run(ctx context.Context, patient domain.PatientContext) Result {
	start := time.Now()
	q := query.Build(patient)

	res := o.answer(ctx, patient, q)
	o.Logger.Log(ctx, string(q), res.Answer)

	attrs := []any{
		slog.String("path", string(res.Path)),
		slog.Duration("elapsed", time.Since(start)),
	}
	if res.Err != nil {
		attrs = append(attrs,
			slog.String("error", res.Err.Error()),
			slog.String("kind", string(domain.KindOf(res.Err))),
		)
	}
	slog.Info("explanation served", attrs...)

	return res
}

func (o *Orchestrator) answer(ctx context.Context, patient domain.PatientContext, q domain.RetrievalQuery) Result {
	if o.Generator == nil || !o.Generator.Ready() {
		res := Result{Answer: o.Fallback.Respond(patient), Query: q, Path: PathFallback}
		if r, ok := o.Generator.(interface{ Err() error }); ok {
			res.Err = r.Err()
		}
		return res
	}

	text, err := o.invoke(ctx, q)
	if err != nil {
		return Result{
			Answer: fmt.Sprintf("%s\nSorry, I'm unable to provide a detailed analysis at the moment due to a technical issue: %s",
				LiteratureMarker, err.Error()),
			Query: q,
			Path:  PathError,
			Err:   err,
		}
	}

	return Result{Answer: LiteratureMarker + "\n" + text, Query: q, Path: PathLive}
}

// invoke calls the generator, turning a panic into a generation error.
func (o *Orchestrator) invoke(ctx context.Context, q domain.RetrievalQuery) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.ErrGeneration("generation backend panicked", fmt.Errorf("%v", r))
		}
	}()
	return o.Generator.Invoke(ctx, q)
}
