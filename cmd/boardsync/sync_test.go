package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardsync/boardsync/internal/config"
)

func withTestConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	orig := appConfig
	appConfig = cfg
	t.Cleanup(func() { appConfig = orig })
}

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPlanFileFillsFromConfig(t *testing.T) {
	withTestConfig(t, &config.Config{Owner: "acme", Repo: "widgets", ProjectTitle: "Board"})
	path := writePlan(t, "items:\n  - title: First task\n")

	f, err := loadPlanFile(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", f.Owner)
	assert.Equal(t, "widgets", f.Repo)
	assert.Equal(t, "Board", f.ProjectTitle)
	require.Len(t, f.Items, 1)
}

func TestLoadPlanFileKeepsExplicitValues(t *testing.T) {
	withTestConfig(t, &config.Config{Owner: "acme", Repo: "widgets", ProjectTitle: "Board"})
	path := writePlan(t, `owner: other
repo: thing
project_title: Roadmap
items:
  - title: First task
`)

	f, err := loadPlanFile(path)
	require.NoError(t, err)
	assert.Equal(t, "other", f.Owner)
	assert.Equal(t, "thing", f.Repo)
	assert.Equal(t, "Roadmap", f.ProjectTitle)
}

func TestLoadPlanFileMissingRepo(t *testing.T) {
	withTestConfig(t, &config.Config{})
	path := writePlan(t, "items:\n  - title: First task\n")

	_, err := loadPlanFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner and repo are required")
}

func TestLoadPlanFileMissingFile(t *testing.T) {
	withTestConfig(t, &config.Config{Owner: "acme", Repo: "widgets"})

	_, err := loadPlanFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
