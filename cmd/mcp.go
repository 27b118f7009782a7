package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"docrag/internal/rag"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing document search tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	engine, _, err := buildEngine()
	if err != nil {
		return err
	}

	s := mcpserver.NewMCPServer("docrag", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(searchDocumentsTool(), makeSearchHandler(engine))
	s.AddTool(listDocumentsTool(), makeListDocumentsHandler(engine))
	s.AddTool(getDocumentChunksTool(), makeDocumentChunksHandler(engine))
	s.AddTool(deleteDocumentTool(), makeDeleteDocumentHandler(engine))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchDocumentsTool() mcp.Tool {
	return mcp.NewTool("search_documents",
		mcp.WithDescription("Semantically search the indexed documents using embedding similarity and cross-encoder reranking. Returns relevant chunks with file paths, summaries, and scores."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query to search the documents"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of chunks to return (default from config)"),
		),
	)
}

func listDocumentsTool() mcp.Tool {
	return mcp.NewTool("list_documents",
		mcp.WithDescription("List all indexed documents with their chunk counts and ingestion times."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func getDocumentChunksTool() mcp.Tool {
	return mcp.NewTool("get_document_chunks",
		mcp.WithDescription("Get every chunk of one indexed document in order, with summaries."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute file path as indexed; call list_documents to see available paths"),
		),
	)
}

func deleteDocumentTool() mcp.Tool {
	return mcp.NewTool("delete_document",
		mcp.WithDescription("Remove one document and all of its chunks from the index."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(false),
			DestructiveHint: mcp.ToBoolPtr(true),
			IdempotentHint:  mcp.ToBoolPtr(true),
			OpenWorldHint:   mcp.ToBoolPtr(false),
		}),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute file path as indexed"),
		),
	)
}

// --- Handler factories ---

func makeSearchHandler(engine *rag.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		k := req.GetInt("k", 0)

		cands, err := engine.Retrieve(ctx, query, rag.Options{TopK: k})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatSearchResults(query, cands)), nil
	}
}

func makeListDocumentsHandler(engine *rag.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs := engine.Store().Documents()
		if len(docs) == 0 {
			return mcp.NewToolResultText("No documents indexed yet. Run 'docrag ingest <path>' to add some."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## Indexed documents (%d)\n\n", len(docs))
		for _, d := range docs {
			fmt.Fprintf(&sb, "- **%s** (%d chunks, ingested %s)\n",
				d.FilePath, d.Chunks, d.IngestedAt.Format("2006-01-02 15:04"))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeDocumentChunksHandler(engine *rag.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("resolve path: %v", err)), nil
		}

		chunks := engine.Store().Chunks(abs)
		if len(chunks) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("document %q not found in index — call list_documents to see available paths", path)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## %s (%d chunks)\n\n", abs, len(chunks))
		for _, c := range chunks {
			fmt.Fprintf(&sb, "### Chunk %d/%d\n\n", c.ChunkIndex+1, c.TotalChunks)
			if c.ChunkSummary != "" {
				fmt.Fprintf(&sb, "**Summary:** %s\n\n", c.ChunkSummary)
			}
			sb.WriteString(c.ChunkContent)
			sb.WriteString("\n\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeDeleteDocumentHandler(engine *rag.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}

		removed, err := engine.DeleteDocument(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
		}
		if removed == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("%s was not in the index.", path)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Removed %d chunk(s) of %s.", removed, path)), nil
	}
}

// --- Formatting helpers ---

func formatSearchResults(query string, cands []rag.Candidate) string {
	if len(cands) == 0 {
		return fmt.Sprintf("No results found for query: %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results for %q (%d chunks)\n\n", query, len(cands))
	for i, c := range cands {
		fmt.Fprintf(&sb, "### Result %d: `%s`\n\n", i+1, c.FilePath)
		fmt.Fprintf(&sb, "**Chunk:** %d/%d  \n**Score:** %.4f  \n**Similarity:** %.4f\n\n",
			c.ChunkIndex+1, c.TotalChunks, c.Score, c.InitialScore)
		if c.ChunkSummary != "" {
			fmt.Fprintf(&sb, "**Summary:** %s\n\n", c.ChunkSummary)
		}
		sb.WriteString(c.ChunkContent)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
