package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripReasoning(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"no markup", "plain answer", "plain answer"},
		{"think block", "<think>working it out</think>the answer", "the answer"},
		{"multiline think", "<think>step 1\nstep 2</think>\n\nfinal", "final"},
		{"unterminated think", "prefix <think>never closed", "prefix"},
		{"multiple blocks", "<think>a</think>x<think>b</think>y", "xy"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, StripReasoning(c.in))
		})
	}
}

func TestCompleteSendsSystemPrompt(t *testing.T) {
	var gotBody struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "<think>hm</think>hello"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model", Timeout: 5 * time.Second}, nil)
	out, err := c.Complete(context.Background(), "question", "system instructions")
	require.NoError(t, err)

	assert.Equal(t, "hello", out)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "system instructions", gotBody.Messages[0].Content)
	assert.Equal(t, "user", gotBody.Messages[1].Role)
}
