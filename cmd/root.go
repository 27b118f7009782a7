// Package cmd wires the configuration, clients, and engine behind the CLI.
package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"docrag/internal/cache"
	"docrag/internal/config"
	"docrag/internal/embed"
	"docrag/internal/enhance"
	"docrag/internal/llm"
	"docrag/internal/loader"
	"docrag/internal/rag"
	"docrag/internal/rerank"
	"docrag/internal/store"
)

var (
	flagConfig  string
	flagDataDir string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "Local document question answering powered by RAG",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ./docrag.yaml, then ~/.config/docrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "index directory (default from config, .docrag)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if flagVerbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.Load(flagConfig)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// buildEngine assembles the full pipeline from config. The reranker is
// optional: an empty endpoint leaves the second stage out and the similarity
// score carries through.
func buildEngine() (*rag.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := newLogger()

	dataDir := cfg.DataDir
	if flagDataDir != "" {
		dataDir = flagDataDir
	}
	st, err := store.Open(dataDir, log)
	if err != nil {
		return nil, nil, err
	}

	emb := embed.New(embed.Config{
		BaseURL:          cfg.Embedding.BaseURL,
		APIKey:           config.APIKey(cfg.Embedding.APIKeyEnv),
		Model:            cfg.Embedding.Model,
		Timeout:          time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
		BatchSize:        cfg.Embedding.BatchSize,
		QueryInstruction: cfg.Embedding.QueryInstruction,
	}, log)

	llmClient := llm.New(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      config.APIKey(cfg.LLM.APIKeyEnv),
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Stream:      cfg.LLM.Stream,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	}, log)

	var rr rag.Reranker
	if cfg.Rerank.Endpoint != "" {
		rr = rerank.New(rerank.Config{
			Endpoint:  cfg.Rerank.Endpoint,
			Model:     cfg.Rerank.Model,
			APIKey:    config.APIKey(cfg.Rerank.APIKeyEnv),
			Timeout:   time.Duration(cfg.Rerank.TimeoutSecs) * time.Second,
			BatchSize: cfg.Rerank.BatchSize,
		}, log)
	}

	resultCache := cache.New(time.Duration(cfg.Cache.TTLSecs)*time.Second, cfg.Cache.MaxEntries)

	var enh rag.QueryEnhancer
	if cfg.Enhance.Enabled {
		enh = enhance.New(llmClient, enhance.Config{
			Enabled:     true,
			MinQueryLen: cfg.Enhance.MinQueryLen,
		}, resultCache, log)
	}

	dispatch := loader.NewDispatch(cfg.Loader.ChunkSize, cfg.Loader.ChunkOverlap)

	engine := rag.New(st, dispatch, emb, rr, llmClient, enh, resultCache, rag.Config{
		Metric:          cfg.Retrieval.Metric,
		InitialK:        cfg.Retrieval.InitialK,
		TopK:            cfg.Retrieval.TopK,
		SimThreshold:    cfg.Retrieval.SimilarityThreshold,
		RerankThreshold: cfg.Retrieval.RerankThreshold,
		SummaryWeight:   cfg.Retrieval.SummaryWeight,
		SummaryEnabled:  cfg.Summary.Enabled,
		FallbackChars:   cfg.Summary.FallbackChars,
	}, log)

	return engine, cfg, nil
}
