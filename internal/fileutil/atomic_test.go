package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic_ReplacesContents(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644)) //nolint:gosec // G306: test file
	require.NoError(t, WriteAtomic(target, []byte("new"), 0o600))

	data, err := os.ReadFile(target) //nolint:gosec // G304: test path
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteAtomic_CreatesParents(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "a", "b", "state.json")
	require.NoError(t, WriteAtomic(target, []byte("{}"), 0o600))

	_, err := os.Stat(target)
	require.NoError(t, err)
}

func TestWriteAtomic_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "state.json")
	for i := 0; i < 3; i++ {
		require.NoError(t, WriteAtomic(target, []byte("x"), 0o600))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

//nolint:paralleltest // changes directory permissions
func TestWriteAtomic_FailureLeavesOriginalFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "state.json")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644)) //nolint:gosec // G306: test file

	require.NoError(t, os.Chmod(tmpDir, 0o500)) //nolint:gosec // G302: intentionally restrictive
	defer func() {
		_ = os.Chmod(tmpDir, 0o700) //nolint:gosec // G302: restore
	}()

	require.Error(t, WriteAtomic(target, []byte("replacement"), 0o600))

	data, err := os.ReadFile(target) //nolint:gosec // G304: test path
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestWriteAtomic_EmptyPath(t *testing.T) {
	t.Parallel()
	require.ErrorIs(t, WriteAtomic("", []byte("data"), 0o600), ErrEmptyPath)
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()

	type doc struct {
		Values map[string]string `json:"values"`
	}
	path := filepath.Join(t.TempDir(), "doc.json")

	var missing doc
	found, err := ReadJSON(path, &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, WriteJSON(path, doc{Values: map[string]string{"waitlist_id": "abc"}}, 0o600))

	var got doc
	found, err = ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", got.Values["waitlist_id"])

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	found, err = ReadJSON(path, &got)
	require.Error(t, err)
	assert.True(t, found)
}
