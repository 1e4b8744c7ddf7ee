package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/foreman/internal/claude"
	"github.com/harrison/foreman/internal/lockservice"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/taskqueue"
	"github.com/harrison/foreman/internal/workspace"
)

// fakeRunner is the same scripted-command double used in
// internal/workspace's own tests, reimplemented here since it's unexported
// there.
type fakeRunner struct {
	calls     [][]string
	responses map[string]string
	errors    map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: map[string]string{}, errors: map[string]error{}}
}

func (f *fakeRunner) key(args []string) string { return strings.Join(args, " ") }

func (f *fakeRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	k := f.key(args)
	return f.responses[k], f.errors[k]
}

func (f *fakeRunner) on(args []string, output string, err error) {
	f.responses[f.key(args)] = output
	f.errors[f.key(args)] = err
}

type scriptErr struct{}

func (scriptErr) Error() string { return "exit status 1" }

func newTestWorker(t *testing.T, runner *fakeRunner) (*Worker, *taskqueue.Queue, *lockservice.Service) {
	t.Helper()
	dir := t.TempDir()

	ws, err := workspace.New(dir, ".foreman/workspaces", runner, nil)
	require.NoError(t, err)

	q, err := taskqueue.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	locks, err := lockservice.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { locks.Close() })

	inv := claude.NewInvoker()
	inv.ClaudePath = "definitely-not-a-real-claude-binary-xyz"

	cfg := Config{
		ID:          "w1",
		Specialty:   "backend",
		BaseBranch:  "main",
		TaskTimeout: time.Second,
	}
	w := New(cfg, q, locks, ws, inv, nil, nil)
	return w, q, locks
}

func TestMarkerFileParserExtractsFileBlocks(t *testing.T) {
	p := NewMarkerFileParser()
	response := "Some preamble.\n\n" +
		"### FILE: internal/foo/bar.go\n" +
		"```go\n" +
		"package foo\n" +
		"```\n\n" +
		"### FILE: internal/foo/bar_test.go\n" +
		"```go\n" +
		"package foo_test\n" +
		"```\n"

	edits, err := p.Parse(response)
	require.NoError(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, "internal/foo/bar.go", edits[0].Path)
	assert.Contains(t, edits[0].Content, "package foo")
	assert.Equal(t, "internal/foo/bar_test.go", edits[1].Path)
	assert.Contains(t, edits[1].Content, "package foo_test")
}

func TestMarkerFileParserErrorsWhenNoMarkers(t *testing.T) {
	p := NewMarkerFileParser()
	_, err := p.Parse("just some prose with no file headings at all")
	require.Error(t, err)
}

func TestMarkerFileParserIgnoresCodeBlockWithNoPrecedingHeading(t *testing.T) {
	p := NewMarkerFileParser()
	response := "```go\npackage orphan\n```\n\n### FILE: real.go\n```go\npackage real\n```\n"
	edits, err := p.Parse(response)
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "real.go", edits[0].Path)
}

func TestCommitMessageFallsBackToNameOnly(t *testing.T) {
	msg := commitMessage(models.Task{Name: "wire router"})
	assert.Equal(t, "wire router", msg)

	msg = commitMessage(models.Task{Name: "wire router", Description: "adds the http mux"})
	assert.Contains(t, msg, "wire router")
	assert.Contains(t, msg, "adds the http mux")
}

func TestSpawnCreatesWorkspaceAndMovesToSpawned(t *testing.T) {
	runner := newFakeRunner()
	runner.on([]string{"git", "rev-parse", "--verify", "refs/heads/main"}, "abc\n", nil)
	runner.on([]string{"git", "rev-parse", "--verify", "refs/heads/agent-backend-w1"}, "", scriptErr{})

	w, _, _ := newTestWorker(t, runner)
	assert.Equal(t, StateNew, w.State())

	require.NoError(t, w.Spawn(context.Background()))
	assert.Equal(t, StateSpawned, w.State())
	assert.NotEmpty(t, w.workspacePath)
	assert.Equal(t, w.workspacePath, w.WorkspacePath())
	assert.Equal(t, "agent-backend-w1", w.Branch())
	assert.Equal(t, "w1", w.ID())
	assert.Equal(t, "backend", w.Specialty())
}

func TestStopIsObservedByRunLoop(t *testing.T) {
	runner := newFakeRunner()
	w, _, _ := newTestWorker(t, runner)

	w.Stop()
	err := w.RunLoop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateStopped, w.State())
}

func TestExecuteTaskReleasesLocksOnLLMInvocationFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.on([]string{"git", "rev-parse", "--verify", "refs/heads/main"}, "abc\n", nil)
	runner.on([]string{"git", "rev-parse", "--verify", "refs/heads/agent-backend-w1"}, "", scriptErr{})

	w, _, locks := newTestWorker(t, runner)
	ctx := context.Background()
	require.NoError(t, w.Spawn(ctx))

	task := models.Task{
		ID:            "t1",
		Name:          "add handler",
		Specialty:     "backend",
		FilesToCreate: []string{"internal/api/handler.go"},
	}

	result := w.executeTask(ctx, task)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invoke llm")

	locked, err := locks.IsLocked(ctx, "internal/api/handler.go")
	require.NoError(t, err)
	assert.False(t, locked, "executeTask must release every lock it acquired, even on failure")
}

func TestExecuteTaskFailsFastWithoutSpawn(t *testing.T) {
	runner := newFakeRunner()
	w, _, _ := newTestWorker(t, runner)

	task := models.Task{ID: "t1", Name: "n", Specialty: "backend"}
	result := w.executeTask(context.Background(), task)
	assert.False(t, result.Success)
}
