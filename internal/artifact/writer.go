package artifact

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/xxxbrian/clash-geosite/internal/converter"
	"github.com/xxxbrian/clash-geosite/internal/metrics"
)

// Writer writes rule-provider files below an output directory.
type Writer struct {
	dir    string
	logger *log.Logger
	now    func() time.Time
}

// NewWriter creates a Writer rooted at dir. A nil logger uses log.Default().
func NewWriter(dir string, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.Default()
	}
	return &Writer{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the generation timestamp source.
func (w *Writer) SetClock(now func() time.Time) {
	w.now = now
}

// Now returns the generation timestamp for new artifacts.
func (w *Writer) Now() time.Time {
	return w.now()
}

// ClassicalPaths returns the YAML and text paths of a classical artifact.
func ClassicalPaths(name string) (yamlPath, textPath string) {
	return filepath.Join(string(BehaviorClassical), name+".yaml"),
		filepath.Join(string(BehaviorClassical), name+".txt")
}

// DomainPath returns the path of a domain artifact.
func DomainPath(name string) string {
	return filepath.Join(string(BehaviorDomain), name+".yaml")
}

// Write writes the classical (YAML and text) and domain artifacts of res and
// returns the written paths relative to the output directory. The classical
// pair is skipped when its payload is empty.
func (w *Writer) Write(res *converter.Result) ([]string, error) {
	updated := w.now()

	var written []string
	if len(res.Classical) > 0 {
		paths, err := w.WriteClassical(res.Name, res.Classical, updated)
		if err != nil {
			return written, err
		}
		written = append(written, paths...)
	}

	domain := NewEnvelope(res.Name, BehaviorDomain, res.Domain, updated)
	body, err := domain.RenderYAML()
	if err != nil {
		return written, err
	}
	rel := DomainPath(res.Name)
	if err := w.writeFile(rel, body); err != nil {
		return written, err
	}
	metrics.ArtifactsWritten.WithLabelValues(string(BehaviorDomain), "yaml").Inc()
	written = append(written, rel)

	return written, nil
}

// WriteClassical writes a classical payload as YAML and as plain text.
func (w *Writer) WriteClassical(name string, payload []string, updated time.Time) ([]string, error) {
	env := NewEnvelope(name, BehaviorClassical, payload, updated)
	yamlPath, textPath := ClassicalPaths(name)

	body, err := env.RenderYAML()
	if err != nil {
		return nil, err
	}
	if err := w.writeFile(yamlPath, body); err != nil {
		return nil, err
	}
	metrics.ArtifactsWritten.WithLabelValues(string(BehaviorClassical), "yaml").Inc()

	if err := w.writeFile(textPath, env.RenderText()); err != nil {
		return []string{yamlPath}, err
	}
	metrics.ArtifactsWritten.WithLabelValues(string(BehaviorClassical), "text").Inc()

	return []string{yamlPath, textPath}, nil
}

// writeFile writes to a temp file first, then renames for atomicity.
func (w *Writer) writeFile(rel string, body []byte) error {
	target := filepath.Join(w.dir, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmpPath := target + ".tmp"
	if err := os.WriteFile(tmpPath, body, 0o644); err != nil {
		os.Remove(tmpPath) // cleanup on failure
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath) // cleanup on failure
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
