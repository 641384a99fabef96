// Package backend gates live, evidence-grounded generation behind a
// readiness check computed once at startup.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
	"github.com/covid-rag/reinfection-advisor/internal/prompt"
	"github.com/covid-rag/reinfection-advisor/internal/telemetry"
	"github.com/covid-rag/reinfection-advisor/internal/tokens"
)

const (
	// DefaultTopK is how many passages are retrieved per query.
	DefaultTopK = 3

	// DefaultTimeout bounds one Invoke call.
	DefaultTimeout = 45 * time.Second
)

// Settings are the credentials and retrieval limits the gate is built from.
type Settings struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string

	TopK             int
	MaxContextTokens int
	Timeout          time.Duration
}

// missing lists unset credentials by configuration key.
func (s Settings) missing() []string {
	var out []string
	for _, f := range []struct{ name, value string }{
		{"api_key", s.APIKey},
		{"endpoint", s.Endpoint},
		{"api_version", s.APIVersion},
		{"deployment", s.Deployment},
	} {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// Deps construct the gate's collaborators. Each is called at most once and
// only after the credentials are known to be present.
type Deps struct {
	NewEmbedder  func(ctx context.Context) (domain.Embedder, error)
	NewStore     func(ctx context.Context) (domain.EvidenceStore, error)
	NewCompleter func(ctx context.Context) (domain.Completer, error)
}

// Gate implements domain.Generator. It is immutable after NewGate returns and
// safe for concurrent use.
type Gate struct {
	settings  Settings
	embedder  domain.Embedder
	store     domain.EvidenceStore
	completer domain.Completer
	counter   *tokens.Counter
	tracer    trace.Tracer

	ready bool
	err   error
}

var _ domain.Generator = (*Gate)(nil)

// NewGate evaluates readiness. It never fails: any missing credential or
// construction error leaves the gate not ready and is kept in Err.
func NewGate(ctx context.Context, settings Settings, deps Deps) *Gate {
	if settings.TopK <= 0 {
		settings.TopK = DefaultTopK
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	g := &Gate{
		settings: settings,
		counter:  tokens.NewCounter(settings.Deployment),
		tracer:   telemetry.Tracer(),
	}

	if err := g.build(ctx, deps); err != nil {
		g.err = err
		g.closeParts()
		slog.Warn("live generation unavailable, answers will use general guidance",
			slog.String("reason", err.Error()),
			slog.String("kind", string(domain.KindOf(err))),
		)
		return g
	}

	g.ready = true
	slog.Info("live generation ready",
		slog.String("deployment", settings.Deployment),
		slog.String("embedder", g.embedder.Name()),
		slog.Int("top_k", settings.TopK),
	)
	return g
}

func (g *Gate) build(ctx context.Context, deps Deps) error {
	if missing := g.settings.missing(); len(missing) > 0 {
		return domain.ErrConfiguration("missing backend settings: " + strings.Join(missing, ", "))
	}
	if deps.NewEmbedder == nil || deps.NewStore == nil || deps.NewCompleter == nil {
		return domain.ErrConfiguration("backend constructors not provided")
	}

	var err error
	if g.embedder, err = deps.NewEmbedder(ctx); err != nil {
		return domain.ErrConstruction("failed to create embedder", err)
	}
	if g.store, err = deps.NewStore(ctx); err != nil {
		return domain.ErrConstruction("failed to open evidence index", err)
	}
	if g.completer, err = deps.NewCompleter(ctx); err != nil {
		return domain.ErrConstruction("failed to create generation client", err)
	}
	return nil
}

// Ready reports whether Invoke may be called.
func (g *Gate) Ready() bool {
	return g.ready
}

// Err returns the reason the gate is not ready, or nil.
func (g *Gate) Err() error {
	return g.err
}

// Reason is Err as text, empty when ready.
func (g *Gate) Reason() string {
	if g.err == nil {
		return ""
	}
	return g.err.Error()
}

// Invoke retrieves evidence for q, assembles the prompt and returns the
// backend's answer. Failures are *domain.AdvisorError values.
func (g *Gate) Invoke(ctx context.Context, q domain.RetrievalQuery) (string, error) {
	if !g.ready {
		return "", domain.ErrConfiguration("generation backend not ready")
	}

	ctx, cancel := context.WithTimeout(ctx, g.settings.Timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "backend.invoke",
		trace.WithAttributes(
			attribute.String("advisor.deployment", g.settings.Deployment),
			attribute.Int("advisor.top_k", g.settings.TopK),
		),
	)
	defer span.End()

	answer, err := g.invoke(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return answer, nil
}

func (g *Gate) invoke(ctx context.Context, q domain.RetrievalQuery) (string, error) {
	start := time.Now()

	vec, err := g.embedder.Embed(ctx, string(q))
	if err != nil {
		return "", classify(domain.ErrorKindRetrieval, "failed to embed query", err)
	}

	passages, err := g.search(ctx, vec)
	if err != nil {
		return "", classify(domain.ErrorKindRetrieval, "failed to search evidence", err)
	}
	if len(passages) == 0 {
		slog.Warn("no evidence retrieved", slog.String("query", string(q)))
	}

	fitted := g.counter.Fit(passages, g.settings.MaxContextTokens)
	text := prompt.Assemble(fitted, q)

	answer, err := g.complete(ctx, text)
	if err != nil {
		return "", classify(domain.ErrorKindGeneration, "failed to generate explanation", err)
	}

	slog.Debug("live generation completed",
		slog.Int("passages", len(fitted)),
		slog.Int("prompt_tokens", g.counter.Count(text)),
		slog.String("template", prompt.TemplateVersion),
		slog.Duration("elapsed", time.Since(start)),
	)
	return answer, nil
}

func (g *Gate) search(ctx context.Context, vec []float32) ([]domain.EvidencePassage, error) {
	ctx, span := g.tracer.Start(ctx, "evidence.search")
	defer span.End()

	passages, err := g.store.Search(ctx, vec, g.settings.TopK)
	span.SetAttributes(attribute.Int("advisor.passages", len(passages)))
	if err != nil {
		span.RecordError(err)
	}
	return passages, err
}

func (g *Gate) complete(ctx context.Context, text string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "backend.complete",
		trace.WithAttributes(attribute.String("advisor.backend", g.completer.Name())),
	)
	defer span.End()

	answer, err := g.completer.Complete(ctx, text)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return "", errors.New("backend returned an empty answer")
	}
	return answer, nil
}

// classify wraps err with kind, reporting deadline expiry as a timeout.
func classify(kind domain.ErrorKind, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.ErrorKindTimeout, fmt.Sprintf("%s: request timed out", message), err)
	}
	return domain.NewError(kind, message, err)
}

func (g *Gate) closeParts() {
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			slog.Warn("failed to close evidence store", slog.String("error", err.Error()))
		}
		g.store = nil
	}
	g.embedder = nil
	g.completer = nil
}

// Close releases the evidence store. The gate must not be used afterwards.
func (g *Gate) Close() error {
	g.ready = false
	if g.store == nil {
		return nil
	}
	err := g.store.Close()
	g.store = nil
	return err
}
