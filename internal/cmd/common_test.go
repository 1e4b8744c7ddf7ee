package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrison/foreman/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSiblingDerivesFromDatabaseDir(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "foreman.db")

	assert.Equal(t, filepath.Join(dir, "queue.db"), storeSibling(dbPath, "queue.db"))
	assert.Equal(t, ":memory:", storeSibling(":memory:", "queue.db"))
	assert.Equal(t, "locks.db", storeSibling("foreman.db", "locks.db"))
}

func TestQueueAndLockDBPathsAreDistinctSiblings(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{DatabaseURL: filepath.Join(dir, "foreman.db")}
	assert.Equal(t, filepath.Join(dir, "queue.db"), queueDBPath(cfg))
	assert.Equal(t, filepath.Join(dir, "locks.db"), lockDBPath(cfg))
	assert.NotEqual(t, queueDBPath(cfg), lockDBPath(cfg))
}

func TestReadRequirementsFromSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requirements.md")
	require.NoError(t, os.WriteFile(path, []byte("build a widget"), 0644))

	text, err := readRequirements(path)
	require.NoError(t, err)
	assert.Equal(t, "build a widget", text)
}

func TestReadRequirementsConcatenatesNumberedFragmentsInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02-backend.md"), []byte("backend details"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01-overview.md"), []byte("project overview"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.ignored"), []byte("skip me"), 0644))

	text, err := readRequirements(dir)
	require.NoError(t, err)

	overviewIdx := strings.Index(text, "project overview")
	backendIdx := strings.Index(text, "backend details")
	require.NotEqual(t, -1, overviewIdx)
	require.NotEqual(t, -1, backendIdx)
	assert.Less(t, overviewIdx, backendIdx, "fragments must appear in sorted filename order")
	assert.NotContains(t, text, "skip me")
}

func TestReadRequirementsErrorsOnEmptyDirectory(t *testing.T) {
	_, err := readRequirements(t.TempDir())
	require.Error(t, err)
}
