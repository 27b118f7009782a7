package loader

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCXLoader pulls paragraph text out of word/document.xml inside the OOXML
// archive. Only running text is kept; formatting, tables-of-contents markup,
// and embedded objects are ignored.
type DOCXLoader struct {
	Splitter *Splitter
}

func (l *DOCXLoader) Load(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var doc io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("open document.xml: %w", err)
			}
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("no word/document.xml in %s", path)
	}
	defer doc.Close()

	text, err := extractDocxText(doc)
	if err != nil {
		return nil, err
	}
	return l.Splitter.SplitPlain(text), nil
}

// extractDocxText streams the XML, concatenating <w:t> runs and inserting
// paragraph breaks at </w:p>.
func extractDocxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
