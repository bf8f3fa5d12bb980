package cache

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_ReadBeforeWrite(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "feed.ics"))

	assert.False(t, f.Exists())
	_, err := f.ReadAll()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFile_WriteReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "feed.ics")
	f := NewFile(path)

	require.NoError(t, f.Write("first"))
	assert.True(t, f.Exists())

	got, err := f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	require.NoError(t, f.Write("second"))
	got, err = f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFile_WriteFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(filepath.Join(dir, "feed.ics"))
	require.NoError(t, f.Write("old"))

	// A non-empty directory at the target path makes the rename fail.
	blocked := NewFile(filepath.Join(dir, "blocked"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "blocked"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocked", "x"), nil, 0o644))
	assert.Error(t, blocked.Write("new"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}

	got, err := f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "old", got)
}

func TestFile_ConcurrentReadersSeeCompleteDocuments(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "feed.ics"))

	docA := strings.Repeat("A", 64*1024)
	docB := strings.Repeat("B", 64*1024)
	require.NoError(t, f.Write(docA))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			doc := docA
			if i%2 == 0 {
				doc = docB
			}
			assert.NoError(t, f.Write(doc))
		}
	}()

	for i := 0; i < 200; i++ {
		got, err := f.ReadAll()
		require.NoError(t, err)
		assert.True(t, got == docA || got == docB, "partial document observed")
	}
	wg.Wait()
}
