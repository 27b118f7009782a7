package loader

import (
	"os"
	"regexp"
)

var frontMatter = regexp.MustCompile(`(?s)^---\n.*?\n---\n`)

// MarkdownLoader chunks markdown at heading boundaries, keeping the raw
// markup (headings and code fences carry retrieval signal). A YAML front
// matter block is stripped before splitting.
type MarkdownLoader struct {
	Splitter *Splitter
}

func (l *MarkdownLoader) Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := frontMatter.ReplaceAllString(string(data), "")
	return l.Splitter.SplitMarkdown(text), nil
}
