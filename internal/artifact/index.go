package artifact

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	indexName        = "domain-list-clash"
	indexDescription = "Clash rules converted from v2fly/domain-list-community"
	indexFile        = "index.json"
)

// Index lists the rule sets available in an output directory.
type Index struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Updated     string   `json:"updated"`
	TotalFiles  int      `json:"total_files"`
	Files       []string `json:"files"`
}

// NewIndex creates an index of files generated at updated.
func NewIndex(files []string, updated time.Time) *Index {
	if files == nil {
		files = []string{}
	}
	return &Index{
		Name:        indexName,
		Description: indexDescription,
		Updated:     updated.UTC().Format(timestampLayout),
		TotalFiles:  len(files),
		Files:       files,
	}
}

// Marshal renders the index as indented JSON.
func (i *Index) Marshal() ([]byte, error) {
	body, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return append(body, '\n'), nil
}

// WriteIndex writes index.json into the output directory.
func (w *Writer) WriteIndex(files []string) error {
	body, err := NewIndex(files, w.now()).Marshal()
	if err != nil {
		return err
	}
	if err := w.writeFile(indexFile, body); err != nil {
		return err
	}
	w.logger.Printf("Index saved to %s (%d files)", indexFile, len(files))
	return nil
}
