// Package build converts a set of data files into rule-provider artifacts.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xxxbrian/clash-geosite/internal/artifact"
	"github.com/xxxbrian/clash-geosite/internal/converter"
	"github.com/xxxbrian/clash-geosite/internal/geoip"
)

// Options configures a batch run.
type Options struct {
	OutputDir string
	// Files to convert; all data files when empty.
	Files     []string
	Clean     bool
	Converter converter.Options

	GeoIP      *geoip.GeoIP
	GeoIPCodes []string
}

// Summary reports the outcome of a batch run.
type Summary struct {
	Processed []string
	Skipped   []string
	Failed    map[string]error
	Written   int
}

// ListDataFiles returns the sorted names of the regular, non-hidden files at
// the root of fsys.
func ListDataFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list data files: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// Run converts each requested file independently. A file that fails to load
// is recorded in the summary and does not stop the others; a file with no
// rules is skipped. index.json lists the files that produced artifacts.
func Run(ctx context.Context, fsys fs.FS, opts Options, logger *log.Logger) (*Summary, error) {
	if logger == nil {
		logger = log.Default()
	}

	files := opts.Files
	if len(files) == 0 {
		var err error
		if files, err = ListDataFiles(fsys); err != nil {
			return nil, err
		}
	}

	if err := prepareOutput(opts.OutputDir, opts.Clean); err != nil {
		return nil, err
	}

	logger.Printf("Processing %d files...", len(files))

	conv := converter.NewConverter(fsys, logger, opts.Converter)
	writer := artifact.NewWriter(opts.OutputDir, logger)
	summary := &Summary{Failed: make(map[string]error)}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := conv.Convert(name)
		switch {
		case errors.Is(err, converter.ErrEmptyRuleSet):
			logger.Printf("  Skipping %s (no valid rules)", name)
			summary.Skipped = append(summary.Skipped, name)
			continue
		case err != nil:
			logger.Printf("  Failed %s: %v", name, err)
			summary.Failed[name] = err
			continue
		}

		written, err := writer.Write(res)
		summary.Written += len(written)
		if err != nil {
			return summary, err
		}
		summary.Processed = append(summary.Processed, name)
		logger.Printf("  Processed %s: %d rules", name, len(res.Classical))
	}

	if err := writeGeoIP(ctx, writer, opts, summary, logger); err != nil {
		return summary, err
	}

	if err := writer.WriteIndex(summary.Processed); err != nil {
		return summary, err
	}
	summary.Written++

	return summary, nil
}

func writeGeoIP(ctx context.Context, writer *artifact.Writer, opts Options, summary *Summary, logger *log.Logger) error {
	if opts.GeoIP == nil {
		return nil
	}

	codes := opts.GeoIPCodes
	if len(codes) == 0 {
		codes = opts.GeoIP.Codes()
	}
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := "geoip-" + strings.ToLower(code)
		lines, ok := opts.GeoIP.Classical(code, opts.Converter.WithPolicy, opts.Converter.Policy)
		if !ok || len(lines) == 0 {
			logger.Printf("  Skipping %s (no networks)", name)
			summary.Skipped = append(summary.Skipped, name)
			continue
		}

		written, err := writer.WriteClassical(name, lines, writer.Now())
		summary.Written += len(written)
		if err != nil {
			return err
		}
		summary.Processed = append(summary.Processed, name)
		logger.Printf("  Processed %s: %d rules", name, len(lines))
	}
	return nil
}

func prepareOutput(dir string, clean bool) error {
	if dir == "" {
		return errors.New("output directory is required")
	}
	if clean {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clean output directory: %w", err)
		}
	}
	for _, sub := range []artifact.Behavior{artifact.BehaviorClassical, artifact.BehaviorDomain} {
		if err := os.MkdirAll(filepath.Join(dir, string(sub)), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return nil
}
