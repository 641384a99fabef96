package runtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/covid-rag/reinfection-advisor/internal/config"
	"github.com/covid-rag/reinfection-advisor/internal/evidence/sqlite"
	"github.com/covid-rag/reinfection-advisor/internal/explain"
	"github.com/covid-rag/reinfection-advisor/internal/fallback"
	"github.com/covid-rag/reinfection-advisor/internal/qna"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Port: 0, RequestTimeout: 5 * time.Second},
		Log:    config.LogConfig{Level: "info"},
		Azure:  config.AzureConfig{Temperature: 0.3},
		Embedding: config.EmbeddingConfig{
			Provider: config.EmbeddingOllama,
			Model:    "nomic-embed-text",
			Timeout:  5 * time.Second,
		},
		Evidence: config.EvidenceConfig{
			Backend:          config.EvidenceSQLite,
			SQLitePath:       filepath.Join(dir, "missing.db"),
			TopK:             3,
			MaxContextTokens: 3000,
		},
		Generation: config.GenerationConfig{Timeout: 5 * time.Second},
		QnA:        config.QnAConfig{Path: filepath.Join(dir, "data", "qna_history.json")},
		Chat:       config.ChatConfig{MaxSessions: 10, SessionTTL: time.Hour},
	}
}

func writeIndex(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE passages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL
	)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for _, p := range []struct {
		text string
		vec  []float32
	}{
		{"Hybrid immunity lowers reinfection risk in older adults.", []float32{1, 0, 0}},
		{"Omicron sublineages evade prior neutralising antibodies.", []float32{0, 1, 0}},
	} {
		if _, err := db.Exec(`INSERT INTO passages (source, text, embedding) VALUES (?, ?, ?)`,
			"pubmed", p.text, sqlite.EncodeVector(p.vec)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

// fakeBackends serves the Ollama embed endpoint and an Azure deployment.
func fakeBackends(t *testing.T, prompts *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/embed":
			_, _ = w.Write([]byte(`{"embeddings":[[0.9,0.1,0]]}`))
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if len(req.Messages) > 0 {
				*prompts = append(*prompts, req.Messages[0].Content)
			}
			_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Risk level: Moderate. Hybrid immunity helps."},"finish_reason":"stop"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestNew_FallbackWithoutCredentials(t *testing.T) {
	cfg := baseConfig(t)

	app, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Gate.Ready() {
		t.Fatal("gate should not be ready without credentials")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`[{"age": 70, "conditions": ["asthma"]}]`))
	app.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), fallback.Marker) {
		t.Errorf("expected fallback answer, got %s", rec.Body.String())
	}

	records, err := qna.ReadHistory(cfg.QnA.Path)
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("logged %d records, want 1", len(records))
	}
}

func TestNew_LiveGeneration(t *testing.T) {
	var prompts []string
	srv := fakeBackends(t, &prompts)
	defer srv.Close()

	cfg := baseConfig(t)
	cfg.Azure.APIKey = "test-key"
	cfg.Azure.Endpoint = srv.URL
	cfg.Azure.APIVersion = "2024-02-01"
	cfg.Azure.Deployment = "gpt-4o"
	cfg.Embedding.OllamaURL = srv.URL
	cfg.Evidence.SQLitePath = filepath.Join(t.TempDir(), "pubmed.db")
	cfg.QnA.SQLiteMirror = "file:runtimemirror?mode=memory&cache=shared"
	writeIndex(t, cfg.Evidence.SQLitePath)

	app, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if !app.Gate.Ready() {
		t.Fatalf("gate not ready: %v", app.Gate.Err())
	}

	res := app.Orchestrator.Run(context.Background(), map[string]any{"age": 65, "doses": 3})
	if res.Path != explain.PathLive {
		t.Fatalf("path = %s, err = %v", res.Path, res.Err)
	}
	if !strings.HasPrefix(res.Answer, explain.LiteratureMarker) || !strings.Contains(res.Answer, "Risk level: Moderate") {
		t.Errorf("answer = %q", res.Answer)
	}
	if len(prompts) != 1 || !strings.Contains(prompts[0], "Hybrid immunity lowers reinfection risk") {
		t.Errorf("prompt did not carry evidence: %v", prompts)
	}

	reply := app.Chat.ProcessMessage(context.Background(), "Is a booster useful?", nil, "s1")
	if strings.Contains(reply, explain.LiteratureMarker) || !strings.Contains(reply, "Hybrid immunity helps") {
		t.Errorf("chat reply = %q", reply)
	}
}

func TestNew_BadMirrorFails(t *testing.T) {
	cfg := baseConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.QnA.SQLiteMirror = filepath.Join(blocker, "nested", "mirror.db")

	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("New() expected error for unusable mirror")
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(context.Background(), nil, nil); err == nil {
		t.Fatal("New() expected error for nil config")
	}
}
