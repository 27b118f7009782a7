package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EmbeddingConfig configures the embedding service client. The endpoint is
// OpenAI-compatible, so both hosted APIs and local servers (Ollama, vLLM,
// llama.cpp) work with the same client.
type EmbeddingConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	Model            string `yaml:"model"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
	BatchSize        int    `yaml:"batch_size"`
	QueryInstruction string `yaml:"query_instruction"`
}

// LLMConfig configures the chat-completion client used for answer generation,
// chunk summarization, and query enhancement.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	Stream      bool    `yaml:"stream"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// RerankConfig configures the cross-encoder reranking service.
type RerankConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// RetrievalConfig holds the two-stage retrieval parameters.
type RetrievalConfig struct {
	// Metric is "cosine" or "l2". With "l2" a higher (less negative) value
	// still means more similar; the threshold is negated before comparison.
	Metric              string  `yaml:"metric"`
	InitialK            int     `yaml:"initial_k"`
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	RerankThreshold     float64 `yaml:"rerank_threshold"`
	// SummaryWeight is how many times the chunk summary is repeated ahead of
	// the content when building the text that gets embedded and reranked.
	SummaryWeight int `yaml:"summary_weight"`
}

// EnhanceConfig configures the query enhancer.
type EnhanceConfig struct {
	Enabled     bool `yaml:"enabled"`
	MinQueryLen int  `yaml:"min_query_len"`
}

// CacheConfig bounds the request-scoped result cache.
type CacheConfig struct {
	TTLSecs    int `yaml:"ttl_secs"`
	MaxEntries int `yaml:"max_entries"`
}

// LoaderConfig controls how document text is split into chunks.
type LoaderConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// SummaryConfig controls per-chunk abstractive summarization during ingestion.
type SummaryConfig struct {
	Enabled bool `yaml:"enabled"`
	// FallbackChars is the truncation length for the cheap default summary
	// used when the model call fails or summarization is disabled.
	FallbackChars int `yaml:"fallback_chars"`
}

// HistoryConfig caps the multi-turn conversation window.
type HistoryConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// Config is the root application configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Enhance   EnhanceConfig   `yaml:"enhance"`
	Cache     CacheConfig     `yaml:"cache"`
	Loader    LoaderConfig    `yaml:"loader"`
	Summary   SummaryConfig   `yaml:"summary"`
	History   HistoryConfig   `yaml:"history"`
}

// Load reads a config from path. A missing file returns the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./docrag.yaml first, then ~/.config/docrag/config.yaml.
// If neither exists it writes the defaults to the user path and returns them.
func LoadDefault() (*Config, string, error) {
	cwdPath := "docrag.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// APIKey resolves the API key for a client from its configured env var.
// Local endpoints generally need none, so empty is fine.
func APIKey(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml"), nil
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		DataDir: ".docrag",
		Embedding: EmbeddingConfig{
			BaseURL:          "http://localhost:11434/v1",
			APIKeyEnv:        "DOCRAG_EMBED_API_KEY",
			Model:            "bge-m3",
			TimeoutSecs:      120,
			BatchSize:        32,
			QueryInstruction: "Represent this sentence for searching relevant passages: ",
		},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:11434/v1",
			APIKeyEnv:   "DOCRAG_LLM_API_KEY",
			Model:       "qwen3:8b",
			Temperature: 0.7,
			Stream:      false,
			TimeoutSecs: 300,
		},
		Rerank: RerankConfig{
			Endpoint:    "http://localhost:9547/rerank",
			Model:       "bge-reranker-v2-m3",
			APIKeyEnv:   "DOCRAG_RERANK_API_KEY",
			TimeoutSecs: 30,
			BatchSize:   32,
		},
		Retrieval: RetrievalConfig{
			Metric:              "cosine",
			InitialK:            20,
			TopK:                5,
			SimilarityThreshold: 0.3,
			RerankThreshold:     0.35,
			SummaryWeight:       2,
		},
		Enhance: EnhanceConfig{
			Enabled:     true,
			MinQueryLen: 12,
		},
		Cache: CacheConfig{
			TTLSecs:    600,
			MaxEntries: 256,
		},
		Loader: LoaderConfig{
			ChunkSize:    1000,
			ChunkOverlap: 3,
		},
		Summary: SummaryConfig{
			Enabled:       true,
			FallbackChars: 200,
		},
		History: HistoryConfig{
			MaxTurns: 5,
		},
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = def.Embedding.BaseURL
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = def.Embedding.TimeoutSecs
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = def.Embedding.BatchSize
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = def.LLM.TimeoutSecs
	}
	if cfg.Rerank.TimeoutSecs == 0 {
		cfg.Rerank.TimeoutSecs = def.Rerank.TimeoutSecs
	}
	if cfg.Rerank.BatchSize == 0 {
		cfg.Rerank.BatchSize = def.Rerank.BatchSize
	}
	if cfg.Retrieval.Metric == "" {
		cfg.Retrieval.Metric = def.Retrieval.Metric
	}
	if cfg.Retrieval.InitialK == 0 {
		cfg.Retrieval.InitialK = def.Retrieval.InitialK
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.SummaryWeight == 0 {
		cfg.Retrieval.SummaryWeight = def.Retrieval.SummaryWeight
	}
	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = def.Cache.TTLSecs
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if cfg.Loader.ChunkSize == 0 {
		cfg.Loader.ChunkSize = def.Loader.ChunkSize
	}
	if cfg.Summary.FallbackChars == 0 {
		cfg.Summary.FallbackChars = def.Summary.FallbackChars
	}
	if cfg.History.MaxTurns == 0 {
		cfg.History.MaxTurns = def.History.MaxTurns
	}
	if cfg.Enhance.MinQueryLen == 0 {
		cfg.Enhance.MinQueryLen = def.Enhance.MinQueryLen
	}
}
