package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harrison/foreman/internal/claude"
	"github.com/harrison/foreman/internal/filelock"
	"github.com/harrison/foreman/internal/lockservice"
	"github.com/harrison/foreman/internal/logger"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/taskqueue"
	"github.com/harrison/foreman/internal/workspace"
)

// State is a worker's lifecycle stage: new -> spawned -> running ->
// stopped/cleaned (§4.6).
type State string

const (
	StateNew      State = "new"
	StateSpawned  State = "spawned"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateCleaned  State = "cleaned"
)

// defaultPollTimeout is how long a single Dequeue call blocks waiting for
// work before the run loop checks the stop flag and tries again.
const defaultPollTimeout = 2 * time.Second

// defaultErrorBackoff is the fixed pause after an infrastructure error
// inside the run loop body, distinct from execute-task failures (§4.6.4).
const defaultErrorBackoff = 3 * time.Second

// Config carries everything a Worker needs beyond the shared services it's
// constructed with.
type Config struct {
	ID          string
	Specialty   string
	BaseBranch  string
	TaskTimeout time.Duration
	LockRetryInitial time.Duration
	LockRetryMax     time.Duration
	PollTimeout time.Duration
	ErrorBackoff time.Duration
}

// Worker is a long-running actor bound to one specialty: it dequeues tasks
// from that specialty's queue, locks the files each one touches, drives an
// LLM to produce file content, writes it into an isolated git worktree, and
// commits. One Worker runs one task at a time.
type Worker struct {
	cfg Config

	queue      *taskqueue.Queue
	locks      *lockservice.Service
	workspaces *workspace.Manager
	invoker    *claude.Invoker
	parser     FileParser
	log        logger.Logger

	mu            sync.Mutex
	state         State
	workspacePath string
	currentTask   *models.Task
	heldLocks     []*models.Lock

	stopFlag int32
}

// New constructs a Worker in state "new". parser may be nil to use the
// default MarkerFileParser.
func New(cfg Config, queue *taskqueue.Queue, locks *lockservice.Service, workspaces *workspace.Manager, invoker *claude.Invoker, parser FileParser, log logger.Logger) *Worker {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	if cfg.LockRetryInitial <= 0 {
		cfg.LockRetryInitial = 100 * time.Millisecond
	}
	if cfg.LockRetryMax <= 0 {
		cfg.LockRetryMax = 5 * time.Second
	}
	if parser == nil {
		parser = NewMarkerFileParser()
	}
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &Worker{
		cfg:        cfg,
		queue:      queue,
		locks:      locks,
		workspaces: workspaces,
		invoker:    invoker,
		parser:     parser,
		log:        log,
		state:      StateNew,
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// branchName is the agent branch this worker's workspace lives on.
func (w *Worker) branchName() string {
	return fmt.Sprintf("agent-%s-%s", w.cfg.Specialty, w.cfg.ID)
}

// Branch returns this worker's agent branch name, for callers (e.g. the
// merge orchestrator) that need to fold its work into the target branch
// once the worker is done.
func (w *Worker) Branch() string {
	return w.branchName()
}

// WorkspacePath returns the filesystem path of this worker's workspace,
// or "" if Spawn hasn't run yet.
func (w *Worker) WorkspacePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.workspacePath
}

// ID returns this worker's configured identifier.
func (w *Worker) ID() string {
	return w.cfg.ID
}

// Specialty returns this worker's configured specialty tag.
func (w *Worker) Specialty() string {
	return w.cfg.Specialty
}

// authorIdentity is the synthetic git author identity every commit this
// worker makes is attributed to (§4.6.2d).
func (w *Worker) authorIdentity() string {
	return fmt.Sprintf("Agent-%s <agent-%s@orchestrator.local>", w.cfg.Specialty, w.cfg.ID)
}

// Spawn creates this worker's isolated workspace and moves it to spawned.
func (w *Worker) Spawn(ctx context.Context) error {
	path, err := w.workspaces.CreateWorkspace(ctx, w.branchName(), w.cfg.BaseBranch)
	if err != nil {
		return fmt.Errorf("spawn worker %s: %w", w.cfg.ID, err)
	}
	w.mu.Lock()
	w.workspacePath = path
	w.mu.Unlock()
	w.setState(StateSpawned)
	return nil
}

// Stop signals the run loop to exit at the top of its next iteration. A
// task already inside execute-task is allowed to finish; this core
// supports no hard cancellation (§4.6 Cancellation).
func (w *Worker) Stop() {
	atomic.StoreInt32(&w.stopFlag, 1)
}

func (w *Worker) stopped() bool {
	return atomic.LoadInt32(&w.stopFlag) == 1
}

// Cleanup releases any locks still outstanding (defensive; execute-task
// should have already released them on every exit path) and destroys the
// worker's workspace.
func (w *Worker) Cleanup(ctx context.Context) error {
	w.mu.Lock()
	lingering := w.heldLocks
	w.heldLocks = nil
	path := w.workspacePath
	w.mu.Unlock()

	if len(lingering) > 0 {
		w.locks.ReleaseMultiple(ctx, lingering)
	}

	if path != "" {
		if err := w.workspaces.RemoveWorkspace(ctx, path, true); err != nil {
			w.setState(StateCleaned)
			return fmt.Errorf("cleanup worker %s: %w", w.cfg.ID, err)
		}
	}
	w.setState(StateCleaned)
	return nil
}

// RunLoop polls the worker's specialty queue and executes tasks one at a
// time until Stop is called or ctx is canceled. It returns nil on a clean
// stop; a canceled context is returned as-is.
func (w *Worker) RunLoop(ctx context.Context) error {
	w.setState(StateRunning)

	for {
		if w.stopped() {
			w.setState(StateStopped)
			return nil
		}
		select {
		case <-ctx.Done():
			w.setState(StateStopped)
			return ctx.Err()
		default:
		}

		task, err := w.queue.Dequeue(ctx, w.cfg.Specialty, w.cfg.PollTimeout)
		if err != nil {
			w.onLoopError(ctx, err)
			continue
		}
		if task == nil {
			continue // empty poll; loop around and recheck the stop flag
		}

		w.mu.Lock()
		w.currentTask = task
		w.mu.Unlock()

		w.log.LogTaskStarted(*task)
		result := w.executeTask(ctx, *task)
		w.log.LogTaskResult(result)

		if err := w.queue.MarkCompleted(ctx, task.ID, result); err != nil {
			w.log.Errorf("worker %s: failed to report result for task %s: %v", w.cfg.ID, task.ID, err)
		}

		w.mu.Lock()
		w.currentTask = nil
		w.mu.Unlock()
	}
}

// onLoopError handles an infrastructure error surfacing from the loop body
// itself (not execute-task, which never returns a Go error -- it folds
// every failure into a failed TaskResult): mark the in-flight task failed
// if there is one, then back off (§4.6.4).
func (w *Worker) onLoopError(ctx context.Context, err error) {
	w.log.Errorf("worker %s: run loop error: %v", w.cfg.ID, err)

	w.mu.Lock()
	task := w.currentTask
	w.currentTask = nil
	w.mu.Unlock()

	if task != nil {
		result := models.TaskResult{Task: *task, Success: false, Error: err.Error()}
		if markErr := w.queue.MarkCompleted(ctx, task.ID, result); markErr != nil {
			w.log.Errorf("worker %s: failed to mark task %s failed after loop error: %v", w.cfg.ID, task.ID, markErr)
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.ErrorBackoff):
	}
}

// executeTask runs the five-step execute-task sequence (§4.6.2): lock the
// task's file scope, invoke the LLM, parse and write the response, commit,
// and record the result. It never returns a Go error -- every failure mode
// is folded into a TaskResult with Success=false -- and it releases every
// lock it acquired on every exit path.
func (w *Worker) executeTask(ctx context.Context, task models.Task) models.TaskResult {
	start := time.Now()
	fail := func(format string, args ...interface{}) models.TaskResult {
		return models.TaskResult{
			Task:     task,
			Success:  false,
			Error:    fmt.Sprintf(format, args...),
			Duration: time.Since(start),
		}
	}

	timeout := w.cfg.TaskTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	files := task.AllFiles()
	sort.Strings(files)

	locks, err := w.locks.AcquireMultiple(taskCtx, files, timeout, w.cfg.LockRetryInitial, w.cfg.LockRetryMax)
	if err != nil {
		return fail("acquire file locks: %v", err)
	}
	w.mu.Lock()
	w.heldLocks = locks
	w.mu.Unlock()
	defer func() {
		w.locks.ReleaseMultiple(context.Background(), locks)
		w.mu.Lock()
		w.heldLocks = nil
		w.mu.Unlock()
	}()

	w.mu.Lock()
	path := w.workspacePath
	w.mu.Unlock()
	if path == "" {
		return fail("worker %s has no workspace; spawn() was not called", w.cfg.ID)
	}

	resp, err := w.invoker.Invoke(taskCtx, claude.Request{Prompt: w.buildPrompt(task)})
	if err != nil {
		return fail("invoke llm: %v", err)
	}
	content, _, err := claude.ParseResponse(resp.RawOutput)
	if err != nil {
		return fail("parse llm response envelope: %v", err)
	}
	if content == "" {
		return fail("llm returned an empty response")
	}

	edits, err := w.parser.Parse(content)
	if err != nil {
		return fail("parse file edits from llm response: %v", err)
	}

	var written []string
	for _, edit := range edits {
		full := filepath.Join(path, edit.Path)
		if err := filelock.AtomicWrite(full, []byte(edit.Content)); err != nil {
			return fail("write %s: %v", edit.Path, err)
		}
		written = append(written, edit.Path)
	}

	commitID, err := w.workspaces.CommitWorkspace(taskCtx, path, commitMessage(task), w.authorIdentity())
	if err != nil {
		return fail("commit workspace: %v", err)
	}

	return models.TaskResult{
		Task:          task,
		Success:       true,
		CommitID:      commitID,
		ModifiedFiles: written,
		Output:        content,
		Duration:      time.Since(start),
	}
}

// buildPrompt tailors the LLM invocation to the task's specialty, naming
// the exact files in scope and the file-marker convention the worker's
// parser expects back.
func (w *Worker) buildPrompt(task models.Task) string {
	files := task.AllFiles()
	return fmt.Sprintf(
		"You are acting as the %s specialist on this project.\n\n"+
			"Task: %s\n%s\n\n"+
			"Files in scope: %v\n\n"+
			"For every file you create or modify, emit a heading of the exact form\n"+
			"\"### FILE: <path>\" immediately followed by a single fenced code block\n"+
			"containing that file's complete new content. Do not omit unchanged\n"+
			"surrounding context; each fenced block replaces the file in full.",
		w.cfg.Specialty, task.Name, task.Description, files,
	)
}

// commitMessage derives a commit message from the task's title and
// description (§4.6.2d).
func commitMessage(task models.Task) string {
	if task.Description == "" {
		return task.Name
	}
	return fmt.Sprintf("%s\n\n%s", task.Name, task.Description)
}
