package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

const maxCodeChunkBytes = 8192

// languageSpec pairs a tree-sitter grammar with the query that captures its
// top-level definitions. The query must use @chunk for the definition node
// and @name for its identifier.
type languageSpec struct {
	language *sitter.Language
	query    string
}

var codeSpecs = map[string]*languageSpec{}

func registerLanguage(spec *languageSpec, exts ...string) {
	for _, ext := range exts {
		codeSpecs[ext] = spec
	}
}

func init() {
	registerLanguage(&languageSpec{
		language: golang.GetLanguage(),
		query: `
			(function_declaration name: (identifier) @name) @chunk
			(method_declaration name: (field_identifier) @name) @chunk
			(type_declaration (type_spec name: (type_identifier) @name)) @chunk
		`,
	}, "go")
	registerLanguage(&languageSpec{
		language: python.GetLanguage(),
		query: `
			(function_definition name: (identifier) @name) @chunk
			(class_definition name: (identifier) @name) @chunk
			(decorated_definition definition: (function_definition name: (identifier) @name)) @chunk
			(decorated_definition definition: (class_definition name: (identifier) @name)) @chunk
		`,
	}, "py", "pyi")
	registerLanguage(&languageSpec{
		language: javascript.GetLanguage(),
		query: `
			(function_declaration name: (identifier) @name) @chunk
			(class_declaration name: (identifier) @name) @chunk
			(method_definition name: (property_identifier) @name) @chunk
			(export_statement (function_declaration name: (identifier) @name)) @chunk
			(export_statement (class_declaration name: (identifier) @name)) @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
		`,
	}, "js", "jsx", "mjs", "cjs")
	registerLanguage(&languageSpec{
		language: typescript.GetLanguage(),
		query: `
			(function_declaration name: (identifier) @name) @chunk
			(class_declaration name: (type_identifier) @name) @chunk
			(method_definition name: (property_identifier) @name) @chunk
			(interface_declaration name: (type_identifier) @name) @chunk
			(type_alias_declaration name: (type_identifier) @name) @chunk
		`,
	}, "ts", "tsx")
}

// CodeLoader chunks source files at declaration boundaries using tree-sitter
// queries, so a retrieved chunk is a whole function, method, or type rather
// than an arbitrary text window.
type CodeLoader struct{}

func NewCodeLoader() *CodeLoader { return &CodeLoader{} }

func (l *CodeLoader) Load(path string) ([]string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	spec, ok := codeSpecs[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no grammar for .%s", ErrUnsupportedFormat, ext)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(spec.language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.query), spec.language)
	if err != nil {
		return nil, fmt.Errorf("compile query for .%s: %w", ext, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	type span struct {
		name       string
		start, end uint32
	}
	var spans []span
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var node *sitter.Node
		var name string
		for _, cap := range m.Captures {
			switch q.CaptureNameForId(cap.Index) {
			case "chunk":
				node = cap.Node
			case "name":
				name = cap.Node.Content(src)
			}
		}
		if node == nil {
			continue
		}
		spans = append(spans, span{name: name, start: node.StartByte(), end: node.EndByte()})
	}

	// Overlapping captures keep only the outer node.
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end-spans[i].start > spans[j].end-spans[j].start
	})
	var kept []span
	var lastEnd uint32
	for _, sp := range spans {
		if len(kept) == 0 || sp.start >= lastEnd {
			kept = append(kept, sp)
			if sp.end > lastEnd {
				lastEnd = sp.end
			}
		}
	}

	var chunks []string
	for _, sp := range kept {
		content := string(src[sp.start:sp.end])
		header := fmt.Sprintf("// File: %s\n", filepath.Base(path))
		if sp.name != "" {
			header += fmt.Sprintf("// Definition: %s\n", sp.name)
		}
		text := header + content
		if len(text) > maxCodeChunkBytes {
			chunks = append(chunks, splitLines(text, 40, 10)...)
		} else {
			chunks = append(chunks, text)
		}
	}
	return chunks, nil
}

// splitLines windows oversized text at line boundaries with overlap.
func splitLines(text string, window, overlap int) []string {
	lines := strings.Split(text, "\n")
	var out []string
	for i := 0; i < len(lines); {
		end := i + window
		if end > len(lines) {
			end = len(lines)
		}
		out = append(out, strings.Join(lines[i:end], "\n"))
		if end >= len(lines) {
			break
		}
		i += window - overlap
	}
	return out
}
