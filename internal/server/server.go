// Package server provides the HTTP server and routing.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xxxbrian/clash-geosite/internal/artifact"
	"github.com/xxxbrian/clash-geosite/internal/build"
	"github.com/xxxbrian/clash-geosite/internal/cache"
	"github.com/xxxbrian/clash-geosite/internal/converter"
	"github.com/xxxbrian/clash-geosite/internal/metrics"
	"github.com/xxxbrian/clash-geosite/internal/source"
)

// Server represents the HTTP server
type Server struct {
	source      source.Source
	resultCache *cache.ResultCache
	logger      *log.Logger
	baseURL     string
	repoURL     string
	policy      string
	indexMu     sync.RWMutex
	indexETag   string
	indexBody   []byte
}

// Config contains server configuration.
type Config struct {
	BaseURL string
	RepoURL string
	// Policy appended when a request asks for ?policy without a value.
	Policy string
	Logger *log.Logger
}

// NewServer creates a new Server
func NewServer(src source.Source, rc *cache.ResultCache, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		source:      src,
		resultCache: rc,
		logger:      logger,
		baseURL:     strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		repoURL:     cfg.RepoURL,
		policy:      cfg.Policy,
	}
}

// Routes configures the HTTP routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.LoggingMiddleware)
	r.Get("/", s.handleRoot)
	r.Get("/index.json", s.handleIndex)
	r.Get("/classical/{file}", s.handleClassical)
	r.Get("/domain/{file}", s.handleDomain)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// handleRoot redirects to the project repository
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.repoURL == "" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, s.repoURL, http.StatusFound)
}

// handleClassical handles /classical/:name.yaml and /classical/:name.txt
func (s *Server) handleClassical(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	switch ext := path.Ext(file); ext {
	case ".yaml", ".txt":
		s.handleRuleset(w, r, artifact.BehaviorClassical, strings.TrimSuffix(file, ext), ext)
	default:
		http.Error(w, "Unknown format, expected .yaml or .txt", http.StatusNotFound)
	}
}

// handleDomain handles /domain/:name.yaml
func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	if path.Ext(file) != ".yaml" {
		http.Error(w, "Unknown format, expected .yaml", http.StatusNotFound)
		return
	}
	s.handleRuleset(w, r, artifact.BehaviorDomain, strings.TrimSuffix(file, ".yaml"), ".yaml")
}

func (s *Server) handleRuleset(w http.ResponseWriter, r *http.Request, behavior artifact.Behavior, name, ext string) {
	name = strings.TrimSpace(name)
	if name == "" {
		http.Error(w, "Invalid name parameter", http.StatusBadRequest)
		return
	}

	opts := converter.Options{}
	if r.URL.Query().Has("policy") {
		opts.WithPolicy = true
		opts.Policy = r.URL.Query().Get("policy")
		if opts.Policy == "" {
			opts.Policy = s.policy
		}
	}

	fsys, version, err := s.source.Open()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open data: %v", err), http.StatusInternalServerError)
		return
	}

	cacheKey := fmt.Sprintf("%s:%s%s", behavior, name, ext)
	if opts.WithPolicy {
		cacheKey += "@" + opts.Policy
	}
	if body, ok := s.resultCache.Get(cacheKey, version); ok {
		s.writeRulesetResponse(w, ext, body)
		return
	}

	s.logger.Printf("Cache miss for %s, generating...", cacheKey)

	res, err := converter.NewConverter(fsys, s.logger, opts).Convert(name)
	if err != nil {
		if errors.Is(err, converter.ErrEmptyRuleSet) {
			http.Error(w, "Unknown or empty list: "+name, http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to convert: %v", err), http.StatusInternalServerError)
		return
	}

	payload := res.Domain
	if behavior == artifact.BehaviorClassical {
		payload = res.Classical
	}
	if behavior == artifact.BehaviorClassical && len(payload) == 0 {
		http.Error(w, fmt.Sprintf("No %s rules in %s", behavior, name), http.StatusNotFound)
		return
	}

	env := artifact.NewEnvelope(name, behavior, payload, time.Now())
	var body []byte
	if ext == ".txt" {
		body = env.RenderText()
	} else if body, err = env.RenderYAML(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render: %v", err), http.StatusInternalServerError)
		return
	}

	format := strings.TrimPrefix(ext, ".")
	if format == "txt" {
		format = "text"
	}
	metrics.ArtifactsWritten.WithLabelValues(string(behavior), format).Inc()

	s.resultCache.Set(cacheKey, body, version)
	s.logger.Printf("Generated and cached result for %s (version %s)", cacheKey, truncateVersion(version))

	s.writeRulesetResponse(w, ext, body)
}

func (s *Server) writeRulesetResponse(w http.ResponseWriter, ext string, body []byte) {
	contentType := "text/plain; charset=utf-8"
	if ext == ".yaml" {
		contentType = "text/yaml; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=1800")
	w.Write(body)
}

// indexEntry links one data file to its artifacts.
type indexEntry struct {
	Classical string `json:"classical"`
	Text      string `json:"text"`
	Domain    string `json:"domain"`
}

// handleIndex returns the JSON index of available lists
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	fsys, version, err := s.source.Open()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open data: %v", err), http.StatusInternalServerError)
		return
	}

	baseURL := s.baseURL
	if baseURL == "" {
		baseURL = buildBaseURL(r)
	}

	if body, ok := s.getCachedIndex(version + "@" + baseURL); ok {
		s.writeIndex(w, body)
		return
	}

	files, err := build.ListDataFiles(fsys)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate index: %v", err), http.StatusInternalServerError)
		return
	}

	index := make(map[string]indexEntry, len(files))
	for _, name := range files {
		index[name] = indexEntry{
			Classical: baseURL + "/classical/" + name + ".yaml",
			Text:      baseURL + "/classical/" + name + ".txt",
			Domain:    baseURL + "/domain/" + name + ".yaml",
		}
	}

	// encoding/json sorts map keys
	body, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate index: %v", err), http.StatusInternalServerError)
		return
	}

	s.setCachedIndex(version+"@"+baseURL, body)
	s.writeIndex(w, body)
}

func (s *Server) writeIndex(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=1800")
	_, _ = w.Write(body)
}

func buildBaseURL(r *http.Request) string {
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		if r.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	return proto + "://" + host
}

func (s *Server) getCachedIndex(etag string) ([]byte, bool) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	if s.indexBody == nil || s.indexETag != etag {
		return nil, false
	}
	return s.indexBody, true
}

func (s *Server) setCachedIndex(etag string, body []byte) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	s.indexETag = etag
	s.indexBody = body
}

// LoggingMiddleware logs all HTTP requests
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// truncateVersion truncates a source version for logging
func truncateVersion(version string) string {
	if len(version) > 8 {
		return version[:8]
	}
	return version
}
