package pouch

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return l.WithField("test", true)
}

func TestPouchFlushAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.json")

	p := New[string](path, testLog())
	p.Put("a", "apple")
	p.Put("b", "banana")
	require.NoError(t, p.Flush())

	reloaded := New[string](path, testLog())
	reloaded.Load()
	v, ok := reloaded.Get("a")
	require.True(t, ok)
	assert.Equal(t, "apple", v)
	assert.Equal(t, 2, reloaded.Len())
}

func TestPouchLoadMissingFileStaysEmpty(t *testing.T) {
	dir := t.TempDir()
	p := New[string](filepath.Join(dir, "missing.json"), testLog())
	p.Load()
	assert.Equal(t, 0, p.Len())
}

func TestPouchLoadCorruptFileStaysEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	p := New[string](path, testLog())
	p.Load()
	assert.Equal(t, 0, p.Len())
}

func TestPouchDeleteIsIdempotent(t *testing.T) {
	p := New[string]("/dev/null", testLog())
	p.Put("a", "apple")
	assert.True(t, p.Delete("a"))
	assert.False(t, p.Delete("a"))
}
