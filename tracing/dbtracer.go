package tracing

import (
	"sync"

	"github.com/sarchlab/coupling/datarecording"
	"github.com/tebeka/atexit"
)

type taskTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

const traceTableName = "trace"

// DBTracer stores tasks in a data recorder, one row per task. A row is
// written when the task ends. Tasks still running at exit are written with
// a negative end time.
type DBTracer struct {
	backend datarecording.DataRecorder

	lock        sync.Mutex
	tracingTask map[string]Task
}

// NewDBTracer creates a DBTracer and the trace table.
func NewDBTracer(backend datarecording.DataRecorder) *DBTracer {
	t := &DBTracer{
		backend:     backend,
		tracingTask: make(map[string]Task),
	}

	backend.CreateTable(traceTableName, taskTableEntry{})

	atexit.Register(t.Terminate)

	return t
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.tracingTask[task.ID] = task
}

// EndTask writes a started task with its end time.
func (t *DBTracer) EndTask(task Task) {
	t.lock.Lock()
	original, ok := t.tracingTask[task.ID]
	if ok {
		delete(t.tracingTask, task.ID)
	}
	t.lock.Unlock()

	if !ok {
		return
	}

	original.EndTime = task.EndTime
	if task.What != "" {
		original.What = task.What
	}

	t.backend.InsertData(traceTableName, entryOf(original))
}

// Terminate writes the unfinished tasks and flushes the backend.
func (t *DBTracer) Terminate() {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, task := range t.tracingTask {
		task.EndTime = -1
		t.backend.InsertData(traceTableName, entryOf(task))
	}

	t.tracingTask = make(map[string]Task)

	t.backend.Flush()
}

func entryOf(task Task) taskTableEntry {
	return taskTableEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Location,
		StartTime: task.StartTime,
		EndTime:   task.EndTime,
	}
}
