package loader

import (
	"regexp"
	"strings"
)

var blankLines = regexp.MustCompile(`\n{2,}`)

// Splitter packs text into chunks of at most ChunkSize bytes, preferring
// semantic boundaries (headings, paragraphs) over hard cuts. When a chunk is
// closed mid-section, the last few lines are carried into the next chunk as
// overlap so context is not lost at the seam.
type Splitter struct {
	ChunkSize    int
	OverlapLines int
}

// SplitMarkdown splits at heading boundaries first, then by size.
func (s *Splitter) SplitMarkdown(text string) []string {
	var chunks []string
	var current strings.Builder
	size := 0

	flush := func() {
		if t := strings.TrimSpace(current.String()); t != "" {
			chunks = append(chunks, t)
		}
		current.Reset()
		size = 0
	}

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		lineSize := len(line) + 1

		// A heading closes the running chunk.
		if strings.HasPrefix(line, "#") && strings.TrimSpace(current.String()) != "" {
			flush()
		}

		if size+lineSize > s.ChunkSize && strings.TrimSpace(current.String()) != "" {
			prev := current.String()
			flush()
			// Carry trailing lines into the next chunk as overlap.
			if s.OverlapLines > 0 {
				tail := strings.Split(prev, "\n")
				n := s.OverlapLines
				if n > len(tail) {
					n = len(tail)
				}
				carry := strings.Join(tail[len(tail)-n:], "\n")
				current.WriteString(carry)
				current.WriteByte('\n')
				size = len(carry) + 1
			}
		}

		current.WriteString(line)
		current.WriteByte('\n')
		size += lineSize
	}
	flush()
	return chunks
}

// SplitPlain packs paragraphs (blank-line separated) into size-bounded
// chunks. A single paragraph larger than ChunkSize becomes its own chunk.
func (s *Splitter) SplitPlain(text string) []string {
	paras := blankLines.Split(text, -1)
	var chunks []string
	var current strings.Builder

	flush := func() {
		if t := strings.TrimSpace(current.String()); t != "" {
			chunks = append(chunks, t)
		}
		current.Reset()
	}

	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > s.ChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		if current.Len() >= s.ChunkSize {
			flush()
		}
	}
	flush()
	return chunks
}

// Paragraphs splits text on runs of blank lines without any size packing.
func Paragraphs(text string) []string {
	var out []string
	for _, p := range blankLines.Split(text, -1) {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
