package request

import (
	"fmt"

	"github.com/sarchlab/coupling/transport"
)

// ID identifies a request within one Manager.
type ID int

// None is returned by operations that did not need a transport request, such
// as zero-length sends. It is always complete.
const None ID = -1

// Direction tells if a request sends or receives.
type Direction int

// Request directions.
const (
	SendDirection Direction = iota
	RecvDirection
)

func (d Direction) String() string {
	if d == SendDirection {
		return "send"
	}

	return "recv"
}

// record is the Manager's private bookkeeping of one request. The transport
// handle is owned by the record and dropped once the request completes.
type record struct {
	id        ID
	peer      int
	dir       Direction
	tag       int
	prevSeq   int
	dtype     transport.Datatype
	async     bool
	completed bool
	cancelled bool
	count     int
	outCount  int
	source    int
	err       error

	handle *transport.Handle
}

// Info is a read-only snapshot of a request.
type Info struct {
	ID        ID
	Peer      int
	Direction Direction
	Tag       int
	Type      transport.Datatype
	Async     bool
	Completed bool
	Cancelled bool
	Count     int
	OutCount  int
	Source    int
	Err       error
}

func (r *record) info() Info {
	return Info{
		ID:        r.id,
		Peer:      r.peer,
		Direction: r.dir,
		Tag:       r.tag,
		Type:      r.dtype,
		Async:     r.async,
		Completed: r.completed,
		Cancelled: r.cancelled,
		Count:     r.count,
		OutCount:  r.outCount,
		Source:    r.source,
		Err:       r.err,
	}
}

func (i Info) String() string {
	mode := "sync"
	if i.Async {
		mode = "async"
	}

	return fmt.Sprintf(
		"request %d: %s %s peer=%d tag=%d type=%s count=%d out=%d "+
			"completed=%t cancelled=%t err=%q",
		i.ID, mode, i.Direction, i.Peer, i.Tag, i.Type, i.Count,
		i.OutCount, i.Completed, i.Cancelled, transport.ErrorString(i.Err))
}

// Status reports the completion metadata of a request.
type Status struct {
	Source   int
	Tag      int
	Err      error
	OutCount int
}

// ProbeResult describes a pending message without consuming it.
type ProbeResult struct {
	Source   int
	Tag      int
	Type     transport.Datatype
	OutCount int
}

// CancelOutcome reports how a cancellation attempt ended.
type CancelOutcome int

// Cancellation outcomes.
const (
	// CancelledCleanly means the receive was withdrawn before any message
	// matched it.
	CancelledCleanly CancelOutcome = iota

	// AlreadyDelivered means a message had already matched the receive and
	// was copied into its buffer.
	AlreadyDelivered
)

func (o CancelOutcome) String() string {
	if o == CancelledCleanly {
		return "CancelledCleanly"
	}

	return "AlreadyDelivered"
}
