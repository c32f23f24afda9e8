package jsonfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/doajsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lastFetchedPage.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"science": 7, "biology": 0}`), 0644))

	pages, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[core.Category]int{"science": 7, "biology": 0}, pages)
}

func TestLoad_RejectsInvalidPages(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"fractional page", `{"science": 1.5}`},
		{"negative page", `{"science": -2}`},
		{"not an object", `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "checkpoints.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lastFetchedPage.json")
	pages := map[core.Category]int{"science": 1 << 40, "biology": 3}

	require.NoError(t, Save(path, pages))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, pages, loaded)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestSave_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lastFetchedPage.json")
	require.NoError(t, Save(path, map[core.Category]int{"science": 1}))
	require.NoError(t, Save(path, map[core.Category]int{"science": 2}))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded["science"])
}
