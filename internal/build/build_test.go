package build

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxbrian/clash-geosite/internal/artifact"
	"github.com/xxxbrian/clash-geosite/internal/converter"
)

func dataFS() fstest.MapFS {
	return fstest.MapFS{
		"google":      {Data: []byte("google.com\ninclude:google-ads\nfull:www.google.cn @cn\n")},
		"google-ads":  {Data: []byte("keyword:adservice\nregexp:^ad\\d\\.google\\.com$\n")},
		"comments":    {Data: []byte("# only comments\n\n")},
		"broken":      {Data: []byte("ok.com\ninclude:binary\n")},
		"binary":      {Data: []byte{0xff, 0xfe}},
		"regexp-only": {Data: []byte("regexp:^x$\n")},
		".hidden":     {Data: []byte("hidden.com\n")},
		"sub/ignored": {Data: []byte("nested.com\n")},
	}
}

func TestListDataFiles(t *testing.T) {
	files, err := ListDataFiles(dataFS())
	require.NoError(t, err)
	assert.Equal(t, []string{"binary", "broken", "comments", "google", "google-ads", "regexp-only"}, files)
}

func TestRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "stale.yaml"), []byte("old"), 0o644))

	var logs bytes.Buffer
	summary, err := Run(context.Background(), dataFS(), Options{
		OutputDir: out,
		Clean:     true,
	}, log.New(&logs, "", 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"google", "google-ads", "regexp-only"}, summary.Processed)
	assert.Equal(t, []string{"comments"}, summary.Skipped)
	require.Contains(t, summary.Failed, "binary")
	require.Contains(t, summary.Failed, "broken")
	assert.ErrorIs(t, summary.Failed["broken"], converter.ErrMalformed)
	assert.Contains(t, logs.String(), "Skipping comments (no valid rules)")

	_, err = os.Stat(filepath.Join(out, "stale.yaml"))
	assert.True(t, os.IsNotExist(err), "clean removes previous output")

	body, err := os.ReadFile(filepath.Join(out, "classical", "google.yaml"))
	require.NoError(t, err)
	payload, err := artifact.ParsePayload(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"DOMAIN-SUFFIX,google.com", "DOMAIN-KEYWORD,adservice", "DOMAIN,www.google.cn"}, payload)

	text, err := os.ReadFile(filepath.Join(out, "classical", "google.txt"))
	require.NoError(t, err)
	assert.Equal(t, payload, artifact.ParseText(text))

	body, err = os.ReadFile(filepath.Join(out, "domain", "google.yaml"))
	require.NoError(t, err)
	domains, err := artifact.ParsePayload(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"+.google.com", "www.google.cn"}, domains)

	_, err = os.Stat(filepath.Join(out, "classical", "regexp-only.yaml"))
	assert.True(t, os.IsNotExist(err), "no classical artifact for a regexp-only list")
	_, err = os.Stat(filepath.Join(out, "domain", "regexp-only.yaml"))
	assert.NoError(t, err)

	var idx artifact.Index
	body, err = os.ReadFile(filepath.Join(out, "index.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &idx))
	assert.Equal(t, summary.Processed, idx.Files)
}

func TestRunSelectedFilesWithPolicy(t *testing.T) {
	out := t.TempDir()
	summary, err := Run(context.Background(), dataFS(), Options{
		OutputDir: out,
		Files:     []string{"google-ads", "missing"},
		Converter: converter.Options{WithPolicy: true, Policy: "REJECT"},
	}, log.New(&bytes.Buffer{}, "", 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"google-ads"}, summary.Processed)
	assert.Equal(t, []string{"missing"}, summary.Skipped)

	text, err := os.ReadFile(filepath.Join(out, "classical", "google-ads.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"DOMAIN-KEYWORD,adservice,REJECT"}, artifact.ParseText(text))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, dataFS(), Options{OutputDir: t.TempDir()}, log.New(&bytes.Buffer{}, "", 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRequiresOutputDir(t *testing.T) {
	_, err := Run(context.Background(), dataFS(), Options{}, log.New(&bytes.Buffer{}, "", 0))
	assert.Error(t, err)
}
