// Package loader turns source documents into ordered text chunks. Each
// supported format has its own loader; Dispatch picks one by file extension.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when no loader handles a file's extension.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Loader extracts the ordered chunk sequence from one file. Implementations
// never return a nil slice together with a nil error for a readable file; an
// empty file yields an empty slice.
type Loader interface {
	Load(path string) ([]string, error)
}

// Format identifies a supported document format.
type Format int

const (
	FormatText Format = iota
	FormatMarkdown
	FormatCSV
	FormatHTML
	FormatPDF
	FormatDOCX
	FormatCode
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatMarkdown:
		return "markdown"
	case FormatCSV:
		return "csv"
	case FormatHTML:
		return "html"
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	case FormatCode:
		return "code"
	default:
		return "unknown"
	}
}

// codeExtensions are handled by the tree-sitter loader.
var codeExtensions = map[string]bool{
	"go": true, "py": true, "pyi": true,
	"js": true, "jsx": true, "mjs": true, "cjs": true,
	"ts": true, "tsx": true,
}

// Detect maps a file path to its format. Extensionless files are treated as
// plain text; anything else unknown is an unsupported-format error.
func Detect(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "", "txt":
		return FormatText, nil
	case "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "html", "htm":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	case "docx":
		return FormatDOCX, nil
	}
	if codeExtensions[ext] {
		return FormatCode, nil
	}
	return 0, fmt.Errorf("%w: .%s (%s)", ErrUnsupportedFormat, ext, path)
}

// Dispatch routes files to the loader registered for their format.
type Dispatch struct {
	loaders map[Format]Loader
}

// NewDispatch builds the default loader table for the given chunking
// parameters. chunkSize is in bytes; overlap is in lines (markdown only).
func NewDispatch(chunkSize, overlap int) *Dispatch {
	sp := &Splitter{ChunkSize: chunkSize, OverlapLines: overlap}
	return &Dispatch{
		loaders: map[Format]Loader{
			FormatText:     &TextLoader{},
			FormatMarkdown: &MarkdownLoader{Splitter: sp},
			FormatCSV:      &CSVLoader{},
			FormatHTML:     &HTMLLoader{Splitter: sp},
			FormatPDF:      &PDFLoader{Splitter: sp},
			FormatDOCX:     &DOCXLoader{Splitter: sp},
			FormatCode:     NewCodeLoader(),
		},
	}
}

// Register replaces the loader for a format. Used by tests and by callers
// that bring their own extraction collaborator.
func (d *Dispatch) Register(f Format, l Loader) {
	d.loaders[f] = l
}

// Load detects the format of path and runs the matching loader.
func (d *Dispatch) Load(path string) ([]string, error) {
	f, err := Detect(path)
	if err != nil {
		return nil, err
	}
	l, ok := d.loaders[f]
	if !ok {
		return nil, fmt.Errorf("%w: no loader registered for %s", ErrUnsupportedFormat, f)
	}
	chunks, err := l.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if chunks == nil {
		chunks = []string{}
	}
	return chunks, nil
}
