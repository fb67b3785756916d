package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `% src dst time
a b 1
d e 1
b c 2
e f 2
c a 3
f d 3
a b 4
d e 4
b c 5
e f 5
c a 6
f d 6
`

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out, errOut bytes.Buffer
	a := &app{}
	cmd := newRootCommand(a)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	require.NoError(t, a.execute(context.Background(), cmd), errOut.String())
	return out.String()
}

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "events.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	return path
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tgcd.yaml")
	content := "split:\n  auto_window: true\n  window: 100\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunThenFlatten(t *testing.T) {
	dir := t.TempDir()
	events := writeSample(t, dir)
	cfg := writeConfig(t, dir)
	data := filepath.Join(dir, "data")

	out := execute(t, "run", events, "--config", cfg, "--data-dir", data)

	var report struct {
		RunID      string `json:"run_id"`
		Partitions []struct {
			Status string `json:"status"`
		} `json:"partitions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Partitions, 1)
	assert.Equal(t, "detected", report.Partitions[0].Status)

	out = execute(t, "flatten", "1", "--config", cfg, "--data-dir", data)
	var communities [][]string
	require.NoError(t, json.Unmarshal([]byte(out), &communities))
	total := 0
	for _, c := range communities {
		total += len(c)
	}
	assert.Equal(t, 6, total)
}

func TestStagedCommandsWithSQLite(t *testing.T) {
	dir := t.TempDir()
	events := writeSample(t, dir)
	cfg := writeConfig(t, dir)
	t.Setenv("TGCD_STORAGE_DSN", filepath.Join(dir, "tgcd.db"))

	common := []string{"--config", cfg, "--storage", "sqlite"}

	out := execute(t, append([]string{"split", events}, common...)...)
	assert.Contains(t, out, `"parts": 1`)

	out = execute(t, append([]string{"convert"}, common...)...)
	assert.Contains(t, out, "partition 1: 6 actors")

	out = execute(t, append([]string{"detect", "1"}, common...)...)
	assert.Contains(t, out, "partition 1: detected")
}

func failing(t *testing.T, args ...string) *app {
	t.Helper()

	a := &app{}
	cmd := newRootCommand(a)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	assert.Error(t, a.execute(context.Background(), cmd))
	return a
}

func TestInvalidArguments(t *testing.T) {
	dir := t.TempDir()
	failing(t, "flatten", "x", "--data-dir", filepath.Join(dir, "data"))
	failing(t, "run", filepath.Join(dir, "missing.txt"), "--data-dir", filepath.Join(dir, "data"))
}

func TestFailedCommandClosesStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TGCD_STORAGE_DSN", filepath.Join(dir, "tgcd.db"))

	a := failing(t, "flatten", "9", "--storage", "sqlite")
	require.NotNil(t, a.store)

	_, err := a.store.Partitions(context.Background())
	assert.ErrorContains(t, err, "closed")
}
