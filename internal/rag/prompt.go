package rag

import (
	"context"
	"fmt"
	"strings"

	"docrag/internal/llm"
)

// PromptOptions selects the prompt template and optional context.
type PromptOptions struct {
	// IsImage switches to the OCR-grounded template; OCRText is the
	// transcript the retrieved documents support.
	IsImage bool
	OCRText string
	History []Turn
}

const answerSystemPrompt = `You are a document assistant. Answer questions using the retrieved document excerpts provided in the prompt. Be accurate and concise. If the excerpts do not contain the answer, say so instead of guessing.`

// BuildPrompt deterministically formats the final model input from the
// retrieved candidates. An empty candidate list is not an error; the prompt
// still carries the question and an empty documents section.
func (e *Engine) BuildPrompt(query string, cands []Candidate, opts PromptOptions) string {
	var b strings.Builder

	if opts.IsImage {
		b.WriteString("## Image Transcript (OCR)\n\n")
		b.WriteString(strings.TrimSpace(opts.OCRText))
		b.WriteString("\n\n## Supporting Documents\n\n")
	} else {
		b.WriteString("## Relevant Documents\n\n")
	}

	for i, c := range cands {
		fmt.Fprintf(&b, "[%d] %s (chunk %d/%d, score %.4f)\n", i+1, c.FilePath, c.ChunkIndex+1, c.TotalChunks, c.Score)
		if c.ChunkSummary != "" {
			b.WriteString("Summary: ")
			b.WriteString(c.ChunkSummary)
			b.WriteString("\n")
		}
		b.WriteString("Content:\n")
		b.WriteString(c.ChunkContent)
		b.WriteString("\n\n")
	}

	if len(opts.History) > 0 {
		b.WriteString("## Conversation So Far\n\n")
		for _, t := range opts.History {
			b.WriteString("User: ")
			b.WriteString(t.User)
			b.WriteString("\nAssistant: ")
			b.WriteString(t.Assistant)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Question\n\n")
	b.WriteString(query)
	b.WriteString("\n\n")

	switch {
	case opts.IsImage:
		b.WriteString("Answer based primarily on the image transcript above. Use the supporting documents only as secondary context where the transcript is ambiguous.")
	default:
		b.WriteString("Answer strictly from the document content above. Do not use outside knowledge. If the documents do not contain the answer, say so.")
	}
	if len(opts.History) > 0 {
		b.WriteString(" Stay consistent with the conversation so far.")
	}
	b.WriteString("\n")

	return b.String()
}

// Answer runs the full query path: retrieve, assemble the prompt, and call
// the language model, stripping any reasoning-trace markup from the reply.
func (e *Engine) Answer(ctx context.Context, query string, opts Options) (string, []Candidate, error) {
	cands, err := e.Retrieve(ctx, query, opts)
	if err != nil {
		return "", nil, err
	}
	prompt := e.BuildPrompt(query, cands, PromptOptions{IsImage: opts.IsImage, History: opts.History})
	if e.llm == nil {
		return "", cands, fmt.Errorf("no language model configured")
	}
	reply, err := e.llm.Complete(ctx, prompt, answerSystemPrompt)
	if err != nil {
		return "", cands, fmt.Errorf("complete: %w", err)
	}
	return llm.StripReasoning(reply), cands, nil
}
