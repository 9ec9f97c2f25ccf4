// Package transport defines the message-passing runtime the coupling layer
// sits on, together with LocalWorld, an in-process runtime that hosts every
// rank of a coupled run inside one OS process.
package transport

// AnySource matches a message from any rank in Recv, IRecv and Probe.
const AnySource = -1

// AnyTag matches a message carrying any tag in Recv, IRecv and Probe.
const AnyTag = -1

// A Datatype describes the element type carried by a message buffer.
type Datatype int

// The datatypes understood by the transport.
const (
	UnknownType Datatype = iota
	TimeMessageType
	IntType
	Float64Type
)

func (d Datatype) String() string {
	switch d {
	case TimeMessageType:
		return "TimeMessage"
	case IntType:
		return "Int"
	case Float64Type:
		return "Float64"
	default:
		return "Unknown"
	}
}

// TimeMessage is sent ahead of a data payload so that the receiving side can
// correlate the payload with a simulation time.
type TimeMessage struct {
	Time      float64
	DeltaTime float64
	Tag       int
}

// Status describes a completed, or probed, operation.
type Status struct {
	Source    int
	Tag       int
	Type      Datatype
	Count     int
	Err       error
	Cancelled bool
}

// Comm is a communicator: an ordered set of ranks that can exchange messages
// with each other. A Comm value belongs to a single rank and must only be
// used from that rank's goroutine.
type Comm interface {
	// Rank returns the rank of the caller in the communicator.
	Rank() int

	// Size returns the number of ranks in the communicator.
	Size() int

	// TagUB returns the largest tag that point-to-point calls accept.
	TagUB() int

	// Extent returns the size in bytes of one element of the datatype.
	Extent(dtype Datatype) int

	// Send blocks until the buffer can be reused.
	Send(buf any, count int, dtype Datatype, dst, tag int) error

	// Recv blocks until a matching message has been copied into buf.
	Recv(buf any, count int, dtype Datatype, src, tag int) (Status, error)

	// ISend starts a send and returns immediately.
	ISend(buf any, count int, dtype Datatype, dst, tag int) (*Handle, error)

	// IRecv posts a receive and returns immediately.
	IRecv(buf any, count int, dtype Datatype, src, tag int) (*Handle, error)

	// Wait blocks until the operation behind the handle completes.
	Wait(h *Handle) (Status, error)

	// Test reports whether the operation behind the handle completed.
	Test(h *Handle) (bool, Status, error)

	// Cancel requests the cancellation of a posted receive. Whether it
	// succeeded is reported by Status.Cancelled once the handle completes.
	Cancel(h *Handle) error

	// Probe blocks until a matching message is pending and describes it
	// without receiving it.
	Probe(src, tag int) (Status, error)

	// IProbe is the non-blocking version of Probe.
	IProbe(src, tag int) (bool, Status, error)

	// Alltoall sends sendCount elements to every rank and receives
	// recvCount elements from every rank.
	Alltoall(
		sendBuf any, sendCount int,
		recvBuf any, recvCount int,
		dtype Datatype,
	) error

	// Alltoallv is Alltoall with per-rank counts and displacements.
	Alltoallv(
		sendBuf any, sendCounts, sendDispls []int,
		recvBuf any, recvCounts, recvDispls []int,
		dtype Datatype,
	) error

	// Barrier blocks until every rank of the communicator entered it.
	Barrier() error

	// Create returns a communicator over a subset of this communicator's
	// ranks. Every member must call Create with the same ranks, in the same
	// order relative to other Create calls. The caller must be a member.
	Create(ranks []int) (Comm, error)
}
