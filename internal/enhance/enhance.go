// Package enhance rewrites short or ambiguous queries before retrieval to
// improve recall. Enhancement is best-effort: every failure path falls back
// to the original query.
package enhance

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"docrag/internal/cache"
)

const generalSystemPrompt = `You rewrite search queries for a document retrieval system.
Expand the user's query with key concepts, synonyms, and related terms that improve recall.
Return only the rewritten query, nothing else.`

const mathSystemPrompt = `You normalize search queries that contain mathematical notation.
Convert embedded mathematical expressions to standard formal notation (e.g. LaTeX) and expand
the surrounding terms for retrieval. Return only the rewritten query, nothing else.`

// Completer is the language-model call the enhancer depends on.
type Completer interface {
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Config configures the enhancer gate.
type Config struct {
	Enabled     bool
	MinQueryLen int
}

// Enhancer expands raw queries via the language model.
type Enhancer struct {
	llm   Completer
	cfg   Config
	cache *cache.Cache
	log   *logrus.Logger
}

// New creates an enhancer. The cache may be shared with other stages; keys
// are namespaced by stage.
func New(llm Completer, cfg Config, c *cache.Cache, log *logrus.Logger) *Enhancer {
	if log == nil {
		log = logrus.New()
	}
	return &Enhancer{llm: llm, cfg: cfg, cache: c, log: log}
}

// Enhance returns the query to use for retrieval. It never fails: when the
// gate skips enhancement, the model errors, or the rewrite looks degenerate,
// the original query comes back unchanged.
func (e *Enhancer) Enhance(ctx context.Context, query string) string {
	if !e.cfg.Enabled || !e.shouldEnhance(query) {
		return query
	}

	key := cache.Key{Stage: cache.StageEnhance, Query: query}
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v.(string)
		}
	}

	system := generalSystemPrompt
	if looksMathematical(query) {
		system = mathSystemPrompt
	}

	enhanced, err := e.llm.Complete(ctx, query, system)
	if err != nil {
		e.log.WithError(err).Warn("query enhancement failed, using original query")
		return query
	}
	enhanced = strings.TrimSpace(enhanced)

	// A degenerate rewrite (empty, or far shorter than the input) is worse
	// than no rewrite.
	if enhanced == "" || utf8.RuneCountInString(enhanced)*2 < utf8.RuneCountInString(query) {
		e.log.WithFields(logrus.Fields{
			"original": len(query),
			"enhanced": len(enhanced),
		}).Debug("discarding degenerate enhancement")
		return query
	}

	if e.cache != nil {
		e.cache.Put(key, enhanced)
	}
	return enhanced
}

// shouldEnhance gates the model call: a query that is short and carries no
// formula-looking characters is unlikely to benefit.
func (e *Enhancer) shouldEnhance(query string) bool {
	if utf8.RuneCountInString(query) >= e.cfg.MinQueryLen {
		return true
	}
	return looksMathematical(query)
}

var (
	mathOperators       = regexp.MustCompile(`[=+\-*/^_\\{}()\[\]<>|∑∫√π]`)
	digitLetterAdjacent = regexp.MustCompile(`[0-9][a-zA-Z]|[a-zA-Z][0-9]`)
)

// looksMathematical reports whether the query contains characters suggesting
// an embedded formula: operators, brackets, or digit-letter adjacency (x2,
// 2x, a1).
func looksMathematical(query string) bool {
	return mathOperators.MatchString(query) || digitLetterAdjacent.MatchString(query)
}
