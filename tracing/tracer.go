package tracing

import (
	"sync"
	"time"
)

// A Tracer receives tasks as they start and end.
type Tracer interface {
	StartTask(task Task)
	EndTask(task Task)
}

// TimeTeller tells the time, in seconds, that tasks are stamped with.
type TimeTeller interface {
	Now() float64
}

// wallClock counts seconds since it was created.
type wallClock struct {
	start time.Time
}

// NewWallClock returns a TimeTeller counting seconds from now.
func NewWallClock() TimeTeller {
	return &wallClock{start: time.Now()}
}

func (c *wallClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// TotalTimeTracer sums the time spent in the tasks that pass its filter.
type TotalTimeTracer struct {
	filter TaskFilter

	lock          sync.Mutex
	inflightTasks map[string]Task
	totalTime     float64
	count         int
}

// NewTotalTimeTracer creates a TotalTimeTracer.
func NewTotalTimeTracer(filter TaskFilter) *TotalTimeTracer {
	return &TotalTimeTracer{
		filter:        filter,
		inflightTasks: make(map[string]Task),
	}
}

// TotalTime returns the accumulated duration of the finished tasks.
func (t *TotalTimeTracer) TotalTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.totalTime
}

// Count returns the number of finished tasks.
func (t *TotalTimeTracer) Count() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count
}

// StartTask records the start of a task.
func (t *TotalTimeTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// EndTask adds the duration of a started task.
func (t *TotalTimeTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	original.EndTime = task.EndTime
	t.totalTime += original.Duration()
	t.count++

	delete(t.inflightTasks, task.ID)
}

type teeTracer []Tracer

// Tee returns a Tracer that forwards every task to all the tracers.
func Tee(tracers ...Tracer) Tracer {
	return teeTracer(tracers)
}

func (t teeTracer) StartTask(task Task) {
	for _, tracer := range t {
		tracer.StartTask(task)
	}
}

func (t teeTracer) EndTask(task Task) {
	for _, tracer := range t {
		tracer.EndTask(task)
	}
}
