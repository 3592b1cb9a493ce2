// Package source provides access to domain-list-community data files stored
// in a local directory or a local zip snapshot.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/xxh3"

	"github.com/xxxbrian/clash-geosite/internal/cache"
)

// DefaultArchivePrefix is the data directory inside the GitHub master.zip snapshot.
const DefaultArchivePrefix = "domain-list-community-master/data"

// Source supplies the data filesystem and a version that changes whenever
// the data does.
type Source interface {
	Open() (fs.FS, string, error)
}

// Fingerprint hashes the names, sizes and modification times of every
// regular file in fsys.
func Fingerprint(fsys fs.FS) (string, error) {
	h := xxh3.New()
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", name, info.Size(), info.ModTime().UnixNano())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint data: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// DirSource serves data files from a directory on disk.
type DirSource struct {
	dir    string
	fsys   fs.FS
	logger *log.Logger

	mu       sync.Mutex
	version  string
	watching bool
	dirty    bool
}

// NewDirSource creates a DirSource for dir. A nil logger uses log.Default().
func NewDirSource(dir string, logger *log.Logger) *DirSource {
	if logger == nil {
		logger = log.Default()
	}
	return &DirSource{
		dir:    dir,
		fsys:   os.DirFS(dir),
		logger: logger,
		dirty:  true,
	}
}

// Open returns the directory filesystem and its current fingerprint.
// Without Watch the fingerprint is recomputed on every call.
func (s *DirSource) Open() (fs.FS, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.watching || s.dirty {
		version, err := Fingerprint(s.fsys)
		if err != nil {
			return nil, "", err
		}
		s.version = version
		s.dirty = false
	}
	return s.fsys, s.version, nil
}

// Watch invalidates the cached fingerprint whenever the directory changes.
// It returns once the watcher is installed; watching stops when ctx is done.
func (s *DirSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	s.mu.Lock()
	s.watching = true
	s.dirty = true
	s.mu.Unlock()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.watching = false
				s.mu.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				s.mu.Lock()
				s.dirty = true
				s.mu.Unlock()
				s.logger.Printf("Data changed: %s %s", event.Op, path.Base(event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Printf("Watcher error: %v", err)
			}
		}
	}()
	return nil
}

// ArchiveSource serves data files from a zip snapshot on disk. The archive is
// re-read when its modification time changes.
type ArchiveSource struct {
	path   string
	prefix string
	cache  *cache.ArchiveCache
}

// NewArchiveSource creates an ArchiveSource. An empty prefix uses DefaultArchivePrefix.
func NewArchiveSource(archivePath, prefix string) *ArchiveSource {
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	return &ArchiveSource{
		path:   archivePath,
		prefix: prefix,
		cache:  cache.NewArchiveCache(),
	}
}

// Open returns the archive's data directory and the xxh3 hash of the archive.
func (s *ArchiveSource) Open() (fs.FS, string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		// If we have cached data, use it even if the archive went away
		if reader, version, ok := s.cache.GetAny(); ok {
			return s.sub(reader, version)
		}
		return nil, "", fmt.Errorf("stat archive: %w", err)
	}

	if reader, version, ok := s.cache.Get(info.ModTime()); ok {
		return s.sub(reader, version)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, "", fmt.Errorf("read archive: %w", err)
	}
	version := fmt.Sprintf("%016x", xxh3.Hash(data))
	reader, err := s.cache.Set(data, version, info.ModTime())
	if err != nil {
		return nil, "", fmt.Errorf("open archive %s: %w", s.path, err)
	}
	return s.sub(reader, version)
}

func (s *ArchiveSource) sub(fsys fs.FS, version string) (fs.FS, string, error) {
	data, err := fs.Sub(fsys, s.prefix)
	if err != nil {
		return nil, "", fmt.Errorf("open %s in archive: %w", s.prefix, err)
	}
	return data, version, nil
}
