package loader

import (
	"os"
	"strings"

	"golang.org/x/net/html"
)

// HTMLLoader extracts visible text from an HTML document and packs it into
// size-bounded chunks. Script, style, and head content is dropped.
type HTMLLoader struct {
	Splitter *Splitter
}

func (l *HTMLLoader) Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	extractText(doc, &b)
	return l.Splitter.SplitPlain(b.String()), nil
}

// blockTags start a new paragraph in the extracted text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
}

func extractText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "head", "noscript":
			return
		}
		if blockTags[n.Data] {
			b.WriteString("\n\n")
		}
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			b.WriteString(t)
			b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, b)
	}
}
