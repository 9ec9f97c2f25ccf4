// Package tracing turns hook invocations of request managers and transports
// into tasks and counters that can be stored or inspected.
package tracing

// A Task is a span of work observed on one rank, usually the lifetime of a
// communication request.
type Task struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

// Duration returns how long the task lasted. It is zero for unfinished
// tasks.
func (t Task) Duration() float64 {
	if t.EndTime < t.StartTime {
		return 0
	}

	return t.EndTime - t.StartTime
}

// TaskFilter decides if a task should be counted by a tracer.
type TaskFilter func(t Task) bool

// KindIs returns a filter that keeps the tasks of one kind.
func KindIs(kind string) TaskFilter {
	return func(t Task) bool {
		return t.Kind == kind
	}
}
