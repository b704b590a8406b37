package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// writeConfig writes a config with every optional dependency disabled and
// returns its path.
func writeConfig(t *testing.T, port int) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
database:
  path: %q
  readers: 2
  queue_capacity: 16

api:
  host: "127.0.0.1"
  port: %d

logging:
  level: error
  format: text
  output: stderr

mqtt:
  enabled: false

influxdb:
  enabled: false

identity:
  enabled: false
`, filepath.Join(dir, "data", "tally.db"), port)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs the CLI with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, "/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestRun_InvalidDatabasePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database:\n  path: %q\napi:\n  port: %d\nlogging:\n  level: error\n",
		filepath.Join(blocker, "tally.db"), freePort(t))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	err := run(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening database")
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	path := writeConfig(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, path) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tally dev")
}

func TestMigrateCmd(t *testing.T) {
	path := writeConfig(t, freePort(t))

	out, err := execute(t, "migrate", "status", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "applied  20260301_090000")

	out, err = execute(t, "migrate", "down", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "reverted 20260301_090000")
}

func TestResolveConfigPath(t *testing.T) {
	configPath = ""
	t.Setenv("TALLY_CONFIG", "")
	assert.Equal(t, defaultConfigPath, resolveConfigPath())

	t.Setenv("TALLY_CONFIG", "/etc/tally.yaml")
	assert.Equal(t, "/etc/tally.yaml", resolveConfigPath())

	configPath = "flag.yaml"
	t.Cleanup(func() { configPath = "" })
	assert.Equal(t, "flag.yaml", resolveConfigPath())
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "frobnicate")
	assert.Error(t, err)
}
