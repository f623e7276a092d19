package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bu-cs350/imgserve/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"-q", "10", "9000"})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.QueueSize)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, queue.Fifo, cfg.Policy)
	assert.Equal(t, 9000, cfg.Port)
}

func TestParseSJNPolicy(t *testing.T) {
	cfg, err := Parse([]string{"-q", "5", "-p", "SJN", "-w", "4", "9001"})
	require.NoError(t, err)
	assert.Equal(t, queue.ShortestJobNext, cfg.Policy)
	assert.Equal(t, 4, cfg.Workers)
}

func TestParseMissingQueueSizeErrors(t *testing.T) {
	_, err := Parse([]string{"9000"})
	assert.Error(t, err)
}

func TestParseInvalidPolicyErrors(t *testing.T) {
	_, err := Parse([]string{"-q", "5", "-p", "BOGUS", "9000"})
	assert.Error(t, err)
}

func TestParseMissingPortErrors(t *testing.T) {
	_, err := Parse([]string{"-q", "5"})
	assert.Error(t, err)
}

func TestParseConfigFileSuppliesDefaultsButFlagsWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.ini")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nqueue_size = 20\nworkers = 3\npolicy = SJN\n"), 0o644))

	cfg, err := Parse([]string{"-config", path, "9002"})
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.QueueSize)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, queue.ShortestJobNext, cfg.Policy)

	cfg, err = Parse([]string{"-config", path, "-w", "7", "9003"})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
}
