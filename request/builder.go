package request

import (
	"fmt"

	"github.com/sarchlab/coupling/hooking"
	"github.com/sarchlab/coupling/transport"
)

// Builder can build request managers.
type Builder struct {
	name         string
	baseTag      int
	maxTag       int
	maxRequestID int
	trace        bool
}

// MakeBuilder creates a builder with default parameters. Unless configured,
// the tag range spans the whole range the communicator allows.
func MakeBuilder() Builder {
	return Builder{
		name:         "RequestManager",
		baseTag:      0,
		maxTag:       -1,
		maxRequestID: 1 << 20,
	}
}

// WithName sets the name of the manager, used in logs and by the monitor.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithTagRange sets the range the tag counters cycle through. Both ends of a
// communication must use the same range.
func (b Builder) WithTagRange(baseTag, maxTag int) Builder {
	b.baseTag = baseTag
	b.maxTag = maxTag

	return b
}

// WithMaxRequestID sets the value after which request ids wrap to zero.
func (b Builder) WithMaxRequestID(maxID int) Builder {
	b.maxRequestID = maxID
	return b
}

// WithTrace makes the manager log every operation.
func (b Builder) WithTrace() Builder {
	b.trace = true
	return b
}

func (b Builder) resolveMaxTag(comm transport.Comm) int {
	if b.maxTag >= 0 {
		return b.maxTag
	}

	return ((comm.TagUB() - (TagModulo - 1)) / TagModulo) * TagModulo
}

func (b Builder) parametersMustBeValid(comm transport.Comm, maxTag int) {
	if b.baseTag < 0 || b.baseTag%TagModulo != 0 {
		panic(fmt.Sprintf(
			"base tag %d must be a non-negative multiple of %d",
			b.baseTag, TagModulo))
	}

	if maxTag < b.baseTag+TagModulo {
		panic(fmt.Sprintf(
			"tag range [%d, %d] leaves no room for a tag sequence",
			b.baseTag, maxTag))
	}

	if maxTag+TagModulo-1 > comm.TagUB() {
		panic(fmt.Sprintf(
			"max tag %d exceeds the transport tag upper bound %d",
			maxTag, comm.TagUB()))
	}

	if b.maxRequestID <= 0 {
		panic("max request id must be positive")
	}
}

// Build creates a manager on top of the communicator. Invalid tag ranges
// panic.
func (b Builder) Build(comm transport.Comm) *Manager {
	if comm == nil {
		panic("request manager requires a communicator")
	}

	maxTag := b.resolveMaxTag(comm)
	b.parametersMustBeValid(comm, maxTag)

	m := &Manager{
		HookableBase:  hooking.NewHookableBase(),
		name:          b.name,
		comm:          comm,
		trace:         b.trace,
		baseTag:       b.baseTag,
		maxTag:        maxTag,
		maxRequestID:  ID(b.maxRequestID),
		lastRequestID: None,
		records:       make(map[ID]*record),
		sendTags:      newTagCounter(b.baseTag, maxTag),
		recvTags:      newTagCounter(b.baseTag, maxTag),
		sendIDs:       make(map[int][]ID),
		recvIDs:       make(map[int][]ID),
	}

	return m
}
