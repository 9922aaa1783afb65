package cookies

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/siphon/pkg/types"
)

func TestWriter_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "cookies", "job.txt")
	w := NewWriter(nil)

	in := sampleCookies()
	require.NoError(t, w.Write(in, dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	out, err := w.Read(dest)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriter_ReplacesExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)

	require.NoError(t, w.Write(sampleCookies(), "/out/jar.txt"))
	replacement := []Cookie{{Domain: "other.com", Path: "/", Name: "only", Value: "1"}}
	require.NoError(t, w.Write(replacement, "/out/jar.txt"))

	got, err := w.Read("/out/jar.txt")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)
}

func TestWriter_ReadOnlyFilesystem(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/out", 0755))
	w := NewWriter(afero.NewReadOnlyFs(base))

	err := w.Write(sampleCookies(), "/out/jar.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrIO)

	exists, _ := afero.Exists(base, "/out/jar.txt")
	assert.False(t, exists)
}

func TestWriter_InvalidCookieWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)

	err := w.Write([]Cookie{{Domain: "", Name: "x"}}, "/out/jar.txt")
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	exists, _ := afero.Exists(fs, "/out/jar.txt")
	assert.False(t, exists)
}

func TestWriter_ReadMissing(t *testing.T) {
	w := NewWriter(afero.NewMemMapFs())
	_, err := w.Read("/nope.txt")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestWriter_Remove(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)
	require.NoError(t, w.Write(sampleCookies(), "/jar.txt"))

	require.NoError(t, w.Remove("/jar.txt"))
	require.NoError(t, w.Remove("/jar.txt"))

	exists, _ := afero.Exists(fs, "/jar.txt")
	assert.False(t, exists)
}
