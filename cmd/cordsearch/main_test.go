package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/cordsearch/internal/config"
	"github.com/hyperjump/cordsearch/internal/models"
	"github.com/hyperjump/cordsearch/internal/search"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"smoking risk", "-k", "10"},
			expected: []string{"-k", "10", "smoking risk"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-k", "10", "smoking risk"},
			expected: []string{"-k", "10", "smoking risk"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"smoking risk"},
			expected: []string{"smoking risk"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-language", "en"},
			expected: []string{"-language", "en", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"masks"}, "masks"},
		{"multiple words", []string{"incubation", "period"}, "incubation period"},
		{"single quoted phrase", []string{"incubation period"}, "incubation period"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestOptionalInt(t *testing.T) {
	var o optionalInt
	if o.String() != "" {
		t.Errorf("unset String() = %q", o.String())
	}
	if err := o.Set("2019"); err != nil || o.v == nil || *o.v != 2019 {
		t.Fatalf("Set(2019): %v, %v", err, o.v)
	}
	if o.String() != "2019" {
		t.Errorf("String() = %q", o.String())
	}
	if err := o.Set("None"); err != nil || o.v != nil {
		t.Errorf("Set(None) should clear, got %v, %v", err, o.v)
	}
	if err := o.Set("twenty"); err == nil {
		t.Error("expected error for non-integer")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
embedding:
  provider: mock
  dimensions: 8
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Embedding.Provider != config.ProviderMock || cfg.Embedding.Dimensions != 8 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	if err := writeDefaultConfig(path, false); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Search.DefaultK != models.DefaultK {
		t.Errorf("default_k = %d", cfg.Search.DefaultK)
	}
	if err := writeDefaultConfig(path, false); err == nil {
		t.Error("expected error when the file exists")
	}
	if err := writeDefaultConfig(path, true); err != nil {
		t.Errorf("overwrite: %v", err)
	}
}

func TestComponents_LoadAndAsk(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "metadata.csv")
	body := "cord_uid,abstract,publish_time,language\n" +
		"aaaaaaaa,Masks reduce transmission,2020-04-01,en\n" +
		"bbbbbbbb,Etude de la transmission,2020-02-02,fr\n"
	if err := os.WriteFile(src, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Corpus.SourcePath = src
	cfg.Storage.DatabasePath = filepath.Join(dir, "corpus.db")
	cfg.Storage.VectorsPath = filepath.Join(dir, "vectors.bin")
	cfg.Embedding.Provider = config.ProviderMock
	cfg.Embedding.Dimensions = 4

	components, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if components.Engine.State() != search.StateReady {
		t.Fatalf("state = %s", components.Engine.State())
	}
	k := 5
	resp, err := components.Ask(ctx, &models.SearchQuery{Query: "transmission", K: &k, Language: "fr"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "bbbbbbbb" {
		t.Errorf("items = %+v", resp.Items)
	}
}

func TestSearchViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var q models.SearchQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if q.K != nil && *q.K > 100 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"validation error: k too large"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(models.SearchResponse{
			AggregateStats: map[string]int{"en": 1},
			Items:          []models.ResultItem{{ID: "aaaaaaaa", Score: 9, Rank: 1, Language: "en", Text: q.Query}},
		})
	}))
	defer srv.Close()

	resp, err := searchViaHTTP(srv.URL, &models.SearchQuery{Query: "masks"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Text != "masks" {
		t.Errorf("response = %+v", resp)
	}

	k := 1000
	_, err = searchViaHTTP(srv.URL, &models.SearchQuery{Query: "masks", K: &k})
	if err == nil || !strings.Contains(err.Error(), "k too large") {
		t.Errorf("expected server error message, got %v", err)
	}
}

func TestWriteStatusText(t *testing.T) {
	var buf bytes.Buffer
	writeStatusText(&buf, &statusResponse{
		Engine: search.Stats{State: "failed", LastError: "store/embeddings misaligned or corrupt"},
	})
	out := buf.String()
	for _, sub := range []string{"state:              failed", "last_error:", "records:            0"} {
		if !strings.Contains(out, sub) {
			t.Errorf("status output missing %q:\n%s", sub, out)
		}
	}
}
