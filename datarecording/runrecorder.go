package datarecording

import (
	"os"
	"strings"
	"time"
)

// runInfo is one property of a recorded run.
type runInfo struct {
	Property string
	Value    string
}

const timeLayout = "2006-01-02 15:04:05.000000000"

// RunRecorder records how a coupled run was launched, in the run_info table.
type RunRecorder struct {
	tableName string
	recorder  DataRecorder
	entries   []runInfo
}

// NewRunRecorder creates the run_info table in the recorder.
func NewRunRecorder(recorder DataRecorder) *RunRecorder {
	e := &RunRecorder{
		tableName: "run_info",
		recorder:  recorder,
	}

	recorder.CreateTable(e.tableName, runInfo{})

	return e
}

// Start notes the start time, the command line and the working directory.
func (e *RunRecorder) Start() {
	e.Set("Start Time", time.Now().Format(timeLayout))
	e.Set("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	e.Set("Working Directory", cwd)
}

// Set notes a property of the run.
func (e *RunRecorder) Set(property, value string) {
	e.entries = append(e.entries, runInfo{property, value})
}

// End writes the properties along with the end time.
func (e *RunRecorder) End() {
	e.Set("End Time", time.Now().Format(timeLayout))

	for _, entry := range e.entries {
		e.recorder.InsertData(e.tableName, entry)
	}

	e.entries = nil

	e.recorder.Flush()
}
