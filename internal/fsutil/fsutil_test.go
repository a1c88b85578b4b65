package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "index.html")

	require.NoError(t, WriteFile(path, []byte("<h1>hi</h1>")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", string(data))
}

func TestWriteFile_ReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")

	require.NoError(t, WriteFile(path, []byte("one")))
	require.NoError(t, WriteFile(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not remain")
}

func TestWriteFile_FailsWhenParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := WriteFile(filepath.Join(blocker, "index.html"), []byte("x"))
	require.Error(t, err)
}

func TestDirWriter_Resolve(t *testing.T) {
	w := DirWriter{Root: "/site"}

	tests := []struct {
		name    string
		dest    string
		want    string
		wantErr bool
	}{
		{name: "relative", dest: "x/index.html", want: "/site/x/index.html"},
		{name: "absolute kept", dest: "/tmp/out.html", want: "/tmp/out.html"},
		{name: "escape", dest: "../etc/passwd", wantErr: true},
		{name: "empty", dest: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Resolve(tt.dest)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dist")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "img"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "style.css"), []byte("body{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "img", "logo.svg"), []byte("<svg/>"), 0o600))

	n, err := CopyTree(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dst, "img", "logo.svg"))
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))
}

func TestCopyTree_MissingSourceIgnored(t *testing.T) {
	n, err := CopyTree(filepath.Join(t.TempDir(), "missing"), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveTree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dist")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "x"), 0o750))

	require.NoError(t, RemoveTree(dir))
	_, err := os.Stat(dir)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, RemoveTree(dir), "missing directory is fine")
	require.Error(t, RemoveTree("/"))
}
