package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
)

// DefaultTaskRetention is how long finished tasks stay queryable.
const DefaultTaskRetention = time.Hour

// TaskState is the lifecycle state of an asynchronous ingestion.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCommitted TaskState = "committed"
	TaskRejected  TaskState = "rejected"
)

// TaskError is the failure recorded on a rejected task.
type TaskError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Task is a snapshot of an asynchronous ingestion.
type Task struct {
	ID         string     `json:"id"`
	Source     string     `json:"source,omitempty"`
	State      TaskState  `json:"state"`
	Stage      Stage      `json:"stage"`
	ArchiveKey string     `json:"archive_key,omitempty"`
	Report     *Report    `json:"report,omitempty"`
	Error      *TaskError `json:"error,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func (t *Task) finished() bool {
	return t.State == TaskCommitted || t.State == TaskRejected
}

// Tasks runs CSV ingestions in the background and keeps their outcome for
// the retention period.
type Tasks struct {
	pipeline  *Pipeline
	archiver  *Archiver
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

// NewTasks creates a task manager. archiver may be nil.
func NewTasks(pipeline *Pipeline, archiver *Archiver, retention time.Duration, logger *zap.Logger) *Tasks {
	if retention <= 0 {
		retention = DefaultTaskRetention
	}
	return &Tasks{
		pipeline:  pipeline,
		archiver:  archiver,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		tasks:     make(map[string]*Task),
	}
}

// Submit starts ingesting data in the background and returns the pending
// task. The run is detached from ctx cancellation.
func (m *Tasks) Submit(ctx context.Context, source string, data []byte) *Task {
	m.Prune()

	task := &Task{
		ID:          uuid.NewString(),
		Source:      source,
		State:       TaskPending,
		Stage:       StageIdle,
		SubmittedAt: m.now().UTC(),
	}
	m.mu.Lock()
	m.tasks[task.ID] = task
	snapshot := *task
	m.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(runCtx, task.ID, data)
	}()
	return &snapshot
}

func (m *Tasks) run(ctx context.Context, id string, data []byte) {
	key := m.archiver.Archive(ctx, id, data)
	m.update(id, func(t *Task) {
		t.State = TaskRunning
		t.ArchiveKey = key
	})

	report, err := m.pipeline.Run(ctx, data, func(s Stage) {
		m.update(id, func(t *Task) { t.Stage = s })
	})

	finished := m.now().UTC()
	m.update(id, func(t *Task) {
		t.Report = report
		t.FinishedAt = &finished
		if err != nil {
			t.State = TaskRejected
			t.Error = &TaskError{
				Code:    ledgererr.GetCode(err),
				Message: err.Error(),
				Details: ledgererr.GetDetails(err),
			}
			return
		}
		t.State = TaskCommitted
	})

	if err != nil {
		m.logger.Warn("ingestion task rejected", zap.String("task_id", id), zap.Error(err))
		return
	}
	m.logger.Info("ingestion task committed", zap.String("task_id", id), zap.Int("inserted", report.Inserted))
}

func (m *Tasks) update(id string, fn func(*Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		fn(t)
	}
}

// Get returns a snapshot of task id.
func (m *Tasks) Get(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ledgererr.NotFound("ingestion task %q not found", id)
	}
	snapshot := *t
	return &snapshot, nil
}

// Prune drops finished tasks older than the retention period.
func (m *Tasks) Prune() int {
	cutoff := m.now().Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.tasks {
		if t.finished() && t.FinishedAt != nil && t.FinishedAt.Before(cutoff) {
			delete(m.tasks, id)
			n++
		}
	}
	return n
}

// Wait blocks until every submitted task has finished or ctx is done.
func (m *Tasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
