package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewAppliesDefaults(t *testing.T) {
	w := New(Config{Root: "/tmp/scenarios"})
	assert.Equal(t, DefaultDebounceInterval, w.config.Debounce)
	assert.Equal(t, DefaultPollInterval, w.config.PollInterval)
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Root: dir})

	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())
	require.NoError(t, w.Start(), "starting twice is a no-op")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(), "stopping twice is a no-op")
}

func TestStartMissingRoot(t *testing.T) {
	w := New(Config{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, w.Start())
	assert.False(t, w.IsRunning())
}

func TestDetectsChangesDebounced(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(nested, 0o755))
	writeFile(t, filepath.Join(nested, "a.yaml"), "name: a")

	var changes atomic.Int32
	w := New(Config{
		Root:     dir,
		Debounce: 50 * time.Millisecond,
		OnChange: func() { changes.Add(1) },
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	// a burst of writes collapses into one callback
	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(nested, "a.yaml"), "name: changed")
	}

	require.Eventually(t, func() bool { return changes.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), changes.Load())
}

func TestIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()

	var changes atomic.Int32
	w := New(Config{
		Root:     dir,
		Debounce: 20 * time.Millisecond,
		OnChange: func() { changes.Add(1) },
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, changes.Load())
}

func TestIsRelevantFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "only.yaml")
	writeFile(t, file, "name: only")

	dirWatcher := New(Config{Root: dir})
	assert.True(t, dirWatcher.isRelevantFile(filepath.Join(dir, "x.yml")))
	assert.True(t, dirWatcher.isRelevantFile(filepath.Join(dir, "schema.json")))
	assert.False(t, dirWatcher.isRelevantFile(filepath.Join(dir, "x.txt")))

	fileWatcher := New(Config{Root: file})
	assert.True(t, fileWatcher.isRelevantFile(file))
	assert.False(t, fileWatcher.isRelevantFile(filepath.Join(dir, "other.yaml")))
}

func TestCheckForChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "name: a")

	w := New(Config{Root: dir})
	assert.False(t, w.checkForChanges(), "first scan only records state")
	assert.False(t, w.checkForChanges())

	writeFile(t, filepath.Join(dir, "b.yaml"), "name: b")
	assert.True(t, w.checkForChanges(), "added file")

	require.NoError(t, os.Remove(filepath.Join(dir, "a.yaml")))
	assert.True(t, w.checkForChanges(), "removed file")
	assert.False(t, w.checkForChanges())
}
