package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rx.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "info"}`), 0644))

	w := NewConfigWatcher(path)
	w.Debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *ReceiverConfig, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(c *ReceiverConfig) { changes <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)

	// Unrelated files and invalid contents are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "loud"}`), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, changes)

	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "debug"}`), 0644))
	select {
	case c := <-changes:
		assert.Equal(t, "debug", c.GetLogLevel())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestConfigWatcher_MissingDirectory(t *testing.T) {
	t.Parallel()

	w := NewConfigWatcher(filepath.Join(t.TempDir(), "nope", "rx.json"))
	err := w.Run(context.Background(), func(*ReceiverConfig) {})
	assert.ErrorContains(t, err, "failed to watch")
}
