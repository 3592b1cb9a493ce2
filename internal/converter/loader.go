package converter

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xxxbrian/clash-geosite/internal/metrics"
)

// Loader reads data files from a filesystem and expands include directives.
type Loader struct {
	fsys   fs.FS
	logger *log.Logger
}

// NewLoader creates a Loader over fsys. A nil logger uses log.Default().
func NewLoader(fsys fs.FS, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		fsys:   fsys,
		logger: logger,
	}
}

// LoadFile loads a root file given as a host path. The loader is rooted at the
// filesystem root, so includes may reach parent directories.
func LoadFile(filePath string, logger *log.Logger) (RuleSet, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", filePath, err)
	}
	vol := filepath.VolumeName(abs)
	rel := strings.TrimPrefix(filepath.ToSlash(abs[len(vol):]), "/")
	return NewLoader(os.DirFS(vol+string(filepath.Separator)), logger).Load(rel)
}

// Load reads name and every file it transitively includes, returning the
// rules in file-then-line order with includes spliced in where they appear.
// Each call has its own visited set.
func (l *Loader) Load(name string) (RuleSet, error) {
	visited := make(map[string]struct{})
	rules, err := l.load(path.Clean(name), visited)
	if err != nil {
		metrics.LoadFailures.Inc()
		return nil, err
	}
	return rules, nil
}

func (l *Loader) load(name string, visited map[string]struct{}) (RuleSet, error) {
	// Already visited in this load: a cycle or a repeated include.
	if _, ok := visited[name]; ok {
		metrics.IncludesCyclic.Inc()
		return nil, nil
	}
	visited[name] = struct{}{}

	if !fs.ValidPath(name) {
		l.logger.Printf("Warning: File not found: %s (outside data root)", name)
		metrics.IncludesMissing.Inc()
		return nil, nil
	}

	content, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Printf("Warning: File not found: %s", name)
			metrics.IncludesMissing.Inc()
			return nil, nil
		}
		return nil, &LoadError{Path: name, Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}
	if !utf8.Valid(content) {
		return nil, &LoadError{Path: name, Err: ErrMalformed}
	}

	var rules RuleSet
	for _, raw := range strings.Split(string(content), "\n") {
		line, ok := ParseLine(raw)
		if !ok {
			continue
		}

		if line.IsInclude() {
			sub, err := l.load(path.Join(path.Dir(name), line.Include), visited)
			if err != nil {
				return nil, err
			}
			rules = append(rules, sub...)
			continue
		}

		metrics.RulesLoaded.WithLabelValues(line.Rule.Kind.String()).Inc()
		rules = append(rules, line.Rule)
	}
	return rules, nil
}
