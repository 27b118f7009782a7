package loader

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// CSVLoader emits one chunk per data row, rendered as "header: value" lines
// so column names stay attached to their values in the embedding text.
type CSVLoader struct{}

func (l *CSVLoader) Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) < 2 {
		return []string{}, nil
	}

	header := rows[0]
	chunks := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		var b strings.Builder
		for i, cell := range row {
			name := fmt.Sprintf("col%d", i)
			if i < len(header) {
				name = header[i]
			}
			fmt.Fprintf(&b, "%s: %s\n", name, cell)
		}
		chunks = append(chunks, strings.TrimSpace(b.String()))
	}
	return chunks, nil
}
