// Package config loads advisor settings from an optional YAML file and
// ADVISOR_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides. Nested keys use a double
// underscore: ADVISOR_SERVER__PORT=9000 sets server.port.
const EnvPrefix = "ADVISOR_"

// DefaultFile is read when no path is given. It may be absent.
const DefaultFile = "config.yaml"

// Evidence backends.
const (
	EvidenceSQLite   = "sqlite"
	EvidencePGVector = "pgvector"
)

// Embedding providers.
const (
	EmbeddingAzure  = "azure"
	EmbeddingOllama = "ollama"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Azure      AzureConfig      `koanf:"azure"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Evidence   EvidenceConfig   `koanf:"evidence"`
	Generation GenerationConfig `koanf:"generation"`
	QnA        QnAConfig        `koanf:"qna"`
	Chat       ChatConfig       `koanf:"chat"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// AzureConfig holds the four deployment credentials plus generation knobs.
// The credentials default to the AZURE_API_KEY, AZURE_ENDPOINT,
// AZURE_API_VERSION and DEPLOYMENT_NAME environment variables.
type AzureConfig struct {
	APIKey              string  `koanf:"api_key"`
	Endpoint            string  `koanf:"endpoint"`
	APIVersion          string  `koanf:"api_version"`
	Deployment          string  `koanf:"deployment"`
	EmbeddingDeployment string  `koanf:"embedding_deployment"`
	Temperature         float64 `koanf:"temperature"`
}

type EmbeddingConfig struct {
	Provider  string        `koanf:"provider"` // azure, ollama
	OllamaURL string        `koanf:"ollama_url"`
	Model     string        `koanf:"model"`
	Timeout   time.Duration `koanf:"timeout"`
}

type EvidenceConfig struct {
	Backend          string `koanf:"backend"` // sqlite, pgvector
	SQLitePath       string `koanf:"sqlite_path"`
	PostgresDSN      string `koanf:"postgres_dsn"`
	PostgresTable    string `koanf:"postgres_table"`
	TopK             int    `koanf:"top_k"`
	MaxContextTokens int    `koanf:"max_context_tokens"`
}

type GenerationConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type QnAConfig struct {
	Path         string `koanf:"path"`
	SQLiteMirror string `koanf:"sqlite_mirror"` // optional DSN
}

type ChatConfig struct {
	MaxSessions int           `koanf:"max_sessions"`
	SessionTTL  time.Duration `koanf:"session_ttl"`
}

type ClassifierConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]any{
	"server.port":                   8080,
	"server.request_timeout":        60 * time.Second,
	"log.level":                     "info",
	"azure.api_key":                 "${AZURE_API_KEY}",
	"azure.endpoint":                "${AZURE_ENDPOINT}",
	"azure.api_version":             "${AZURE_API_VERSION}",
	"azure.deployment":              "${DEPLOYMENT_NAME}",
	"azure.embedding_deployment":    "${EMBEDDING_DEPLOYMENT_NAME}",
	"azure.temperature":             0.3,
	"embedding.provider":            EmbeddingAzure,
	"embedding.ollama_url":          "http://localhost:11434",
	"embedding.model":               "nomic-embed-text",
	"embedding.timeout":             30 * time.Second,
	"evidence.backend":              EvidenceSQLite,
	"evidence.sqlite_path":          "vectorstore/pubmed.db",
	"evidence.postgres_table":       "evidence_passages",
	"evidence.top_k":                3,
	"evidence.max_context_tokens":   3000,
	"generation.timeout":            45 * time.Second,
	"qna.path":                      "data/qna_history.json",
	"chat.max_sessions":             1000,
	"chat.session_ttl":              24 * time.Hour,
	"classifier.timeout":            10 * time.Second,
	"telemetry.enabled":             false,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultFile when empty), then the environment, then
// fills defaults for anything still unset. A missing DefaultFile is fine;
// a missing explicit path is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// Environment variables override the file
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.expand()
	return &cfg, cfg.Validate()
}

// expand substitutes ${VAR} references in values that commonly hold secrets.
func (c *Config) expand() {
	for _, s := range []*string{
		&c.Azure.APIKey,
		&c.Azure.Endpoint,
		&c.Azure.APIVersion,
		&c.Azure.Deployment,
		&c.Azure.EmbeddingDeployment,
		&c.Embedding.OllamaURL,
		&c.Evidence.SQLitePath,
		&c.Evidence.PostgresDSN,
		&c.QnA.Path,
		&c.QnA.SQLiteMirror,
		&c.Classifier.URL,
	} {
		*s = strings.TrimSpace(substituteEnvVars(*s))
	}
}

// Validate rejects values no component could use. Missing credentials are
// not an error here; they leave live generation disabled.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Embedding.Provider {
	case EmbeddingAzure, EmbeddingOllama:
	default:
		return fmt.Errorf("embedding.provider %q must be %q or %q", c.Embedding.Provider, EmbeddingAzure, EmbeddingOllama)
	}
	switch c.Evidence.Backend {
	case EvidenceSQLite, EvidencePGVector:
	default:
		return fmt.Errorf("evidence.backend %q must be %q or %q", c.Evidence.Backend, EvidenceSQLite, EvidencePGVector)
	}
	if c.Evidence.TopK <= 0 {
		return fmt.Errorf("evidence.top_k must be positive, got %d", c.Evidence.TopK)
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
