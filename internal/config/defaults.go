package config

import "github.com/hyperjump/cordsearch/internal/models"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSec == 0 {
		cfg.Server.RequestTimeoutSec = 60
	}
	if cfg.Corpus.SourcePath == "" {
		cfg.Corpus.SourcePath = "/usr/local/var/cordsearch/data/metadata.csv"
	}
	applyColumnDefaults(&cfg.Corpus.Columns)
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/cordsearch/data/db/corpus.db"
	}
	if cfg.Storage.VectorsPath == "" {
		cfg.Storage.VectorsPath = "/usr/local/var/cordsearch/data/embeddings.bin"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/cordsearch/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 10
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = models.DefaultK
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = models.DefaultMaxK
	}
	if cfg.Search.MinYear == 0 {
		cfg.Search.MinYear = models.DefaultMinYear
	}
	if cfg.Search.MaxYear == 0 {
		cfg.Search.MaxYear = models.DefaultMaxYear
	}
	if cfg.Search.Languages == nil {
		cfg.Search.Languages = append([]string(nil), models.DefaultLanguages...)
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 400
	}
}

func applyColumnDefaults(c *ColumnsConfig) {
	set := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	set(&c.ID, "cord_uid")
	set(&c.Text, "abstract")
	set(&c.PublishedAt, "publish_time")
	set(&c.Language, "language")
	set(&c.Title, "title")
	set(&c.URL, "url")
	set(&c.Topic, "main_topic")
	set(&c.Subtopic, "main_subtopic")
}
