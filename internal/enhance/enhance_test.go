package enhance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/cache"
)

type stubCompleter struct {
	reply string
	err   error
	calls int
	// captured inputs
	lastPrompt string
	lastSystem string
}

func (s *stubCompleter) Complete(_ context.Context, prompt, system string) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	s.lastSystem = system
	return s.reply, s.err
}

func newEnhancer(llm Completer) *Enhancer {
	return New(llm, Config{Enabled: true, MinQueryLen: 12}, cache.New(time.Minute, 16), nil)
}

func TestShortPlainQuerySkipsModel(t *testing.T) {
	llm := &stubCompleter{reply: "unused"}
	e := newEnhancer(llm)

	got := e.Enhance(context.Background(), "hello")
	assert.Equal(t, "hello", got)
	assert.Equal(t, 0, llm.calls, "short non-mathematical query must not invoke the model")
}

func TestShortMathQueryInvokesMathPath(t *testing.T) {
	llm := &stubCompleter{reply: "solve the quadratic equation x^2 + 2x + 1 = 0"}
	e := newEnhancer(llm)

	got := e.Enhance(context.Background(), "x^2+2x+1=0")
	assert.Equal(t, llm.reply, got)
	require.Equal(t, 1, llm.calls)
	assert.Contains(t, llm.lastSystem, "mathematical")
}

func TestLongQueryUsesGeneralPath(t *testing.T) {
	llm := &stubCompleter{reply: "how does retrieval augmented generation index and search documents"}
	e := newEnhancer(llm)

	got := e.Enhance(context.Background(), "how does document search work here")
	assert.Equal(t, llm.reply, got)
	assert.Contains(t, llm.lastSystem, "synonyms")
}

func TestModelErrorFallsBack(t *testing.T) {
	llm := &stubCompleter{err: errors.New("connection refused")}
	e := newEnhancer(llm)

	q := "a query long enough to pass the gate"
	assert.Equal(t, q, e.Enhance(context.Background(), q))
}

func TestDegenerateRewriteDiscarded(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		llm := &stubCompleter{reply: "   "}
		e := newEnhancer(llm)
		q := "a query long enough to pass the gate"
		assert.Equal(t, q, e.Enhance(context.Background(), q))
	})

	t.Run("much shorter than input", func(t *testing.T) {
		llm := &stubCompleter{reply: "tiny"}
		e := newEnhancer(llm)
		q := "a query long enough to pass the gate"
		assert.Equal(t, q, e.Enhance(context.Background(), q))
	})
}

func TestEnhancementCachedByRawQuery(t *testing.T) {
	llm := &stubCompleter{reply: "expanded version of the repeated question text"}
	e := newEnhancer(llm)

	q := "what is the ingestion pipeline"
	first := e.Enhance(context.Background(), q)
	second := e.Enhance(context.Background(), q)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, llm.calls, "second identical query must hit the cache")
}

func TestDisabledEnhancerPassesThrough(t *testing.T) {
	llm := &stubCompleter{reply: "unused"}
	e := New(llm, Config{Enabled: false, MinQueryLen: 12}, nil, nil)

	q := "a query long enough to pass the gate"
	assert.Equal(t, q, e.Enhance(context.Background(), q))
	assert.Equal(t, 0, llm.calls)
}

func TestLooksMathematical(t *testing.T) {
	assert.True(t, looksMathematical("x^2"))
	assert.True(t, looksMathematical("2x"))
	assert.True(t, looksMathematical("f(x)"))
	assert.False(t, looksMathematical("plain words only"))
}
