package loader

import "os"

// TextLoader splits plain-text files on blank-line paragraph boundaries.
type TextLoader struct{}

func (l *TextLoader) Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Paragraphs(string(data)), nil
}
