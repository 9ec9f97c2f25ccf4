// Package dec provides exchange channels, which move per-element field
// values from the ranks of a source group to the ranks of a disjoint target
// group. Both groups number the elements the same way but partition them
// independently.
//
// A channel is used in two phases. Synchronize discovers, once, which source
// rank holds each target element. SendData and RecvData then move the values
// of successive rounds with one all-to-all exchange each.
//
// Source and target meshes are assumed to share their global numbering.
// Nothing checks it: a mismatch silently produces wrong values.
package dec

import (
	"errors"
	"fmt"

	"github.com/sarchlab/coupling/field"
	"github.com/sarchlab/coupling/group"
	"github.com/sarchlab/coupling/hooking"
	"github.com/sarchlab/coupling/mapping"
	"github.com/sarchlab/coupling/request"
	"github.com/sarchlab/coupling/transport"
)

// ErrNotSynchronized is returned by transfers issued before Synchronize.
var ErrNotSynchronized = errors.New("channel is not synchronized")

// ErrNoField is returned when no local field is attached.
var ErrNoField = errors.New("no local field attached")

// ErrWrongSide is returned when a rank calls the transfer of the other side.
var ErrWrongSide = errors.New("operation not available on this side")

// State is the synchronization state of a channel.
type State int

// The states of a channel.
const (
	Unsynchronized State = iota
	Synchronized
	Sending
	Receiving
)

func (s State) String() string {
	switch s {
	case Unsynchronized:
		return "Unsynchronized"
	case Synchronized:
		return "Synchronized"
	case Sending:
		return "Sending"
	case Receiving:
		return "Receiving"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type shape struct {
	nbTuples, nbComponents int
}

// A Channel redistributes a field from a source group to a target group.
type Channel struct {
	*hooking.HookableBase

	name       string
	source     *group.Group
	target     *group.Group
	union      *group.Group
	candidates []int
	timeStamps bool

	comm    transport.Comm
	manager *request.Manager

	field *field.Field
	state State
	round int

	mapping      *mapping.Explicit
	localOfEntry []int
	nbUnmatched  int

	prepared   bool
	shape      shape
	sendCounts []int
	sendDispls []int
	recvCounts []int
	recvDispls []int
	sendBuf    []float64
	recvBuf    []float64

	lastTimeMessages []transport.TimeMessage
}

// Name returns the name of the channel.
func (c *Channel) Name() string {
	return c.name
}

// AttachLocalField sets the field whose values the channel sends or
// overwrites.
func (c *Channel) AttachLocalField(f *field.Field) {
	c.field = f
	c.prepared = false
}

// LocalField returns the attached field.
func (c *Channel) LocalField() *field.Field {
	return c.field
}

// IsInSourceSide reports whether the calling process sends values.
func (c *Channel) IsInSourceSide() bool {
	return c.source.ContainsMyRank()
}

// IsInTargetSide reports whether the calling process receives values.
func (c *Channel) IsInTargetSide() bool {
	return c.target.ContainsMyRank()
}

// IsInUnion reports whether the calling process takes part in the channel.
func (c *Channel) IsInUnion() bool {
	return c.union.ContainsMyRank()
}

// SourceGroup returns the source group.
func (c *Channel) SourceGroup() *group.Group {
	return c.source
}

// TargetGroup returns the target group.
func (c *Channel) TargetGroup() *group.Group {
	return c.target
}

// Manager returns the request manager used for the topology exchange. It is
// nil on ranks outside both groups.
func (c *Channel) Manager() *request.Manager {
	return c.manager
}

// State returns the synchronization state.
func (c *Channel) State() State {
	return c.state
}

// Round returns the number of transfers performed since Synchronize.
func (c *Channel) Round() int {
	return c.round
}

// Mapping returns the mapping built by Synchronize. On target ranks entries
// point to (source rank, source local index); on source ranks they point to
// (target rank, source local index). Ranks are ranks of the union of both
// groups.
func (c *Channel) Mapping() *mapping.Explicit {
	return c.mapping
}

// NbUnmatched returns the number of local target elements no source rank
// holds.
func (c *Channel) NbUnmatched() int {
	return c.nbUnmatched
}

// SendCounts returns the number of values sent to every rank of the union.
func (c *Channel) SendCounts() []int {
	return append([]int(nil), c.sendCounts...)
}

// RecvCounts returns the number of values received from every rank of the
// union.
func (c *Channel) RecvCounts() []int {
	return append([]int(nil), c.recvCounts...)
}

// SendDispls returns the offsets of the per-rank chunks of the send buffer.
func (c *Channel) SendDispls() []int {
	return append([]int(nil), c.sendDispls...)
}

// RecvDispls returns the offsets of the per-rank chunks of the receive
// buffer.
func (c *Channel) RecvDispls() []int {
	return append([]int(nil), c.recvDispls...)
}

// LastTimeMessages returns the time messages received from the source ranks
// during the last transfer, indexed by source group rank.
func (c *Channel) LastTimeMessages() []transport.TimeMessage {
	return append([]transport.TimeMessage(nil), c.lastTimeMessages...)
}

func (c *Channel) String() string {
	return fmt.Sprintf("%s source=%s target=%s state=%s round=%d",
		c.name, c.source, c.target, c.state, c.round)
}
