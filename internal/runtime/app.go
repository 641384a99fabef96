// Package runtime assembles the advisor once at startup and tears it down on
// exit. Nothing in here is rebuilt per request.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/covid-rag/reinfection-advisor/internal/api"
	"github.com/covid-rag/reinfection-advisor/internal/backend"
	"github.com/covid-rag/reinfection-advisor/internal/backend/azure"
	"github.com/covid-rag/reinfection-advisor/internal/backend/ollama"
	"github.com/covid-rag/reinfection-advisor/internal/chat"
	"github.com/covid-rag/reinfection-advisor/internal/classifier"
	"github.com/covid-rag/reinfection-advisor/internal/config"
	"github.com/covid-rag/reinfection-advisor/internal/domain"
	"github.com/covid-rag/reinfection-advisor/internal/evidence/pgvector"
	"github.com/covid-rag/reinfection-advisor/internal/evidence/sqlite"
	"github.com/covid-rag/reinfection-advisor/internal/explain"
	"github.com/covid-rag/reinfection-advisor/internal/fallback"
	"github.com/covid-rag/reinfection-advisor/internal/qna"
	"github.com/covid-rag/reinfection-advisor/internal/server"
)

// App is the advisor's explicit context object.
type App struct {
	Config       *config.Config
	Gate         *backend.Gate
	Orchestrator *explain.Orchestrator
	Chat         *chat.Manager
	History      *qna.FileLogger
	Server       *server.Server

	mirror *qna.SQLiteMirror
}

// New builds every component from cfg. Backend failures never fail New:
// they leave the gate not ready and answers take the fallback path. Only a
// broken interaction log mirror is fatal, since logging is required on
// every path.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("runtime: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{Config: cfg}

	app.History = qna.NewFileLogger(cfg.QnA.Path)
	sinks := []qna.Sink{app.History}
	if cfg.QnA.SQLiteMirror != "" {
		mirror, err := qna.NewSQLiteMirror(cfg.QnA.SQLiteMirror)
		if err != nil {
			return nil, fmt.Errorf("open qna mirror: %w", err)
		}
		app.mirror = mirror
		sinks = append(sinks, mirror)
	}

	app.Gate = backend.NewGate(ctx, backend.Settings{
		APIKey:           cfg.Azure.APIKey,
		Endpoint:         cfg.Azure.Endpoint,
		APIVersion:       cfg.Azure.APIVersion,
		Deployment:       cfg.Azure.Deployment,
		TopK:             cfg.Evidence.TopK,
		MaxContextTokens: cfg.Evidence.MaxContextTokens,
		Timeout:          cfg.Generation.Timeout,
	}, Deps(cfg))

	app.Orchestrator = explain.New(app.Gate, fallback.New(), qna.NewMulti(sinks...))
	app.Chat = chat.NewManager(app.Orchestrator, app.Gate.Ready, chat.Options{
		MaxSessions: cfg.Chat.MaxSessions,
		SessionTTL:  cfg.Chat.SessionTTL,
	})

	deps := api.Deps{
		Explainer: app.Orchestrator,
		Chat:      app.Chat,
		Ready:     app.Gate.Ready,
		History:   app.History.History,
	}
	if cfg.Classifier.URL != "" {
		deps.Classifier = classifier.NewHTTPClient(cfg.Classifier.URL, cfg.Classifier.Timeout)
	} else {
		logger.Info("no classifier configured, /predict will return descriptions only")
	}

	app.Server = server.New(server.Options{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)
	api.NewHandler(deps).Mount(app.Server.Router)

	logger.Info("advisor assembled",
		slog.Bool("backend_ready", app.Gate.Ready()),
		slog.String("evidence_backend", cfg.Evidence.Backend),
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.String("qna_path", cfg.QnA.Path),
	)
	return app, nil
}

// Deps maps configuration onto the gate's constructors.
func Deps(cfg *config.Config) backend.Deps {
	creds := azure.Credentials{
		APIKey:     cfg.Azure.APIKey,
		Endpoint:   cfg.Azure.Endpoint,
		APIVersion: cfg.Azure.APIVersion,
		Deployment: cfg.Azure.Deployment,
	}
	temperature := azure.WithTemperature(float32(cfg.Azure.Temperature))

	return backend.Deps{
		NewEmbedder: func(ctx context.Context) (domain.Embedder, error) {
			switch cfg.Embedding.Provider {
			case config.EmbeddingOllama:
				e, err := ollama.New(cfg.Embedding.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Timeout)
				if err != nil {
					return nil, err
				}
				return e, nil
			default:
				if cfg.Azure.EmbeddingDeployment == "" {
					return nil, errors.New("azure.embedding_deployment not configured")
				}
				p, err := azure.New(creds, temperature, azure.WithEmbeddingDeployment(cfg.Azure.EmbeddingDeployment))
				if err != nil {
					return nil, err
				}
				return p, nil
			}
		},
		NewStore: func(ctx context.Context) (domain.EvidenceStore, error) {
			switch cfg.Evidence.Backend {
			case config.EvidencePGVector:
				if cfg.Evidence.PostgresDSN == "" {
					return nil, errors.New("evidence.postgres_dsn not configured")
				}
				store, err := pgvector.Open(ctx, cfg.Evidence.PostgresDSN, cfg.Evidence.PostgresTable)
				if err != nil {
					return nil, err
				}
				return store, nil
			default:
				store, err := sqlite.Open(ctx, cfg.Evidence.SQLitePath)
				if err != nil {
					return nil, err
				}
				return store, nil
			}
		},
		NewCompleter: func(ctx context.Context) (domain.Completer, error) {
			p, err := azure.New(creds, temperature)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler {
	return a.Server.Router
}

// Close releases the evidence store and the log mirror.
func (a *App) Close() error {
	var errs []error
	if a.Gate != nil {
		if err := a.Gate.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close qna mirror: %w", err))
		}
	}
	return errors.Join(errs...)
}
