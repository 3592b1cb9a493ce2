package converter

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(content string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(content)}
}

func newTestLoader(fsys fstest.MapFS) (*Loader, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLoader(fsys, log.New(&buf, "", 0)), &buf
}

func TestLoaderExpandsIncludesInPlace(t *testing.T) {
	fsys := fstest.MapFS{
		"google": file("google.com\ninclude:google-ads\nfull:www.google.cn @cn\n"),
		"google-ads": file("# ads\nkeyword:adservice\nregexp:^ad[0-9]+\\.google\\.com$\n"),
	}
	loader, _ := newTestLoader(fsys)

	rules, err := loader.Load("google")
	require.NoError(t, err)
	assert.Equal(t, RuleSet{
		{Kind: KindDomain, Value: "google.com"},
		{Kind: KindKeyword, Value: "adservice"},
		{Kind: KindRegexp, Value: `^ad[0-9]+\.google\.com$`},
		{Kind: KindFull, Value: "www.google.cn", Attributes: []string{"cn"}},
	}, rules)
}

func TestLoaderCycle(t *testing.T) {
	fsys := fstest.MapFS{
		"a": file("include:b\na.com\n"),
		"b": file("b.com\ninclude:a\n"),
	}
	loader, logs := newTestLoader(fsys)

	rules, err := loader.Load("a")
	require.NoError(t, err)
	assert.Equal(t, RuleSet{
		{Kind: KindDomain, Value: "b.com"},
		{Kind: KindDomain, Value: "a.com"},
	}, rules)
	assert.Empty(t, logs.String(), "cycles are not reported")
}

func TestLoaderSelfInclude(t *testing.T) {
	loader, _ := newTestLoader(fstest.MapFS{
		"self": file("include:self\nself.com\ninclude:./self\n"),
	})

	rules, err := loader.Load("self")
	require.NoError(t, err)
	assert.Equal(t, RuleSet{{Kind: KindDomain, Value: "self.com"}}, rules)
}

func TestLoaderVisitedSetIsPerLoad(t *testing.T) {
	loader, _ := newTestLoader(fstest.MapFS{
		"shared": file("shared.com\n"),
		"one":    file("include:shared\n"),
		"two":    file("include:shared\n"),
	})

	one, err := loader.Load("one")
	require.NoError(t, err)
	two, err := loader.Load("two")
	require.NoError(t, err)
	assert.Equal(t, one, two)
	assert.Len(t, two, 1)
}

func TestLoaderDiamondIncludeLoadsOnce(t *testing.T) {
	loader, _ := newTestLoader(fstest.MapFS{
		"root":  file("include:left\ninclude:right\n"),
		"left":  file("include:base\nleft.com\n"),
		"right": file("include:base\nright.com\n"),
		"base":  file("base.com\n"),
	})

	rules, err := loader.Load("root")
	require.NoError(t, err)
	assert.Equal(t, RuleSet{
		{Kind: KindDomain, Value: "base.com"},
		{Kind: KindDomain, Value: "left.com"},
		{Kind: KindDomain, Value: "right.com"},
	}, rules)
}

func TestLoaderMissingInclude(t *testing.T) {
	loader, logs := newTestLoader(fstest.MapFS{
		"root": file("include:missing.txt\n"),
	})

	rules, err := loader.Load("root")
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Contains(t, logs.String(), "Warning: File not found: missing.txt")
}

func TestLoaderMissingIncludeContinues(t *testing.T) {
	loader, _ := newTestLoader(fstest.MapFS{
		"root": file("a.com\ninclude:gone\nb.com\n"),
	})

	rules, err := loader.Load("root")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestLoaderMissingRoot(t *testing.T) {
	loader, logs := newTestLoader(fstest.MapFS{})

	rules, err := loader.Load("nothing")
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Contains(t, logs.String(), "nothing")
}

func TestLoaderIncludeRelativeToIncludingFile(t *testing.T) {
	loader, _ := newTestLoader(fstest.MapFS{
		"root":        file("include:sub/child\n"),
		"sub/child":   file("include:sibling\n"),
		"sub/sibling": file("full:sibling.example\n"),
		"sibling":     file("full:wrong.example\n"),
	})

	rules, err := loader.Load("root")
	require.NoError(t, err)
	assert.Equal(t, RuleSet{{Kind: KindFull, Value: "sibling.example"}}, rules)
}

func TestLoaderIncludeOutsideRootIsMissing(t *testing.T) {
	loader, logs := newTestLoader(fstest.MapFS{
		"root": file("include:../etc/passwd\nok.com\n"),
	})

	rules, err := loader.Load("root")
	require.NoError(t, err)
	assert.Equal(t, RuleSet{{Kind: KindDomain, Value: "ok.com"}}, rules)
	assert.Contains(t, logs.String(), "outside data root")
}

func TestLoaderMalformedInclude(t *testing.T) {
	loader, _ := newTestLoader(fstest.MapFS{
		"root": file("ok.com\ninclude:bad\n"),
		"bad":  {Data: []byte{'x', 0xff, 0xfe, '\n'}},
	})

	_, err := loader.Load("root")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "bad", loadErr.Path)
}

func TestLoaderUnreadable(t *testing.T) {
	loader, _ := newTestLoader(fstest.MapFS{
		"root":     file("include:dir\n"),
		"dir/file": file("x.com\n"),
	})

	_, err := loader.Load("root")
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "apple"), []byte("apple.com\ninclude:icloud\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "icloud"), []byte("full:icloud.com\n"), 0o644))

	rules, err := LoadFile(filepath.Join(dir, "apple"), log.New(&bytes.Buffer{}, "", 0))
	require.NoError(t, err)
	assert.Equal(t, RuleSet{
		{Kind: KindDomain, Value: "apple.com"},
		{Kind: KindFull, Value: "icloud.com"},
	}, rules)
}

func TestLoadFileIncludesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common"), []byte("common.com\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "root"), []byte("include:../common\nroot.com\n"), 0o644))

	var logs bytes.Buffer
	rules, err := LoadFile(filepath.Join(dir, "sub", "root"), log.New(&logs, "", 0))
	require.NoError(t, err)
	assert.Equal(t, RuleSet{
		{Kind: KindDomain, Value: "common.com"},
		{Kind: KindDomain, Value: "root.com"},
	}, rules)
	assert.NotContains(t, logs.String(), "File not found")
}
