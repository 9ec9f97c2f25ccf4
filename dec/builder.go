package dec

import (
	"log"

	"github.com/sarchlab/coupling/group"
	"github.com/sarchlab/coupling/hooking"
	"github.com/sarchlab/coupling/request"
)

// Builder can build channels.
type Builder struct {
	name           string
	source         *group.Group
	target         *group.Group
	managerBuilder request.Builder
	candidates     []int
	timeStamps     bool
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		name:           "DEC",
		managerBuilder: request.MakeBuilder(),
	}
}

// WithName sets the name of the channel.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithSourceGroup sets the group that sends the field values.
func (b Builder) WithSourceGroup(g *group.Group) Builder {
	b.source = g
	return b
}

// WithTargetGroup sets the group that receives the field values.
func (b Builder) WithTargetGroup(g *group.Group) Builder {
	b.target = g
	return b
}

// WithRequestManagerBuilder sets how the request manager used for the
// topology exchange is built. The manager runs on the union of both groups.
func (b Builder) WithRequestManagerBuilder(mb request.Builder) Builder {
	b.managerBuilder = mb
	return b
}

// WithCandidateSources restricts the source ranks, given as source group
// ranks, that target ranks search for their elements.
func (b Builder) WithCandidateSources(ranks ...int) Builder {
	b.candidates = append([]int(nil), ranks...)
	return b
}

// WithTimeStamps makes every data transfer carry a time message ahead of the
// values. All ranks of both groups must agree on this setting.
func (b Builder) WithTimeStamps() Builder {
	b.timeStamps = true
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.source == nil || b.target == nil {
		panic("a channel needs a source group and a target group")
	}

	if b.source.Parent() != b.target.Parent() {
		panic("source and target groups belong to different communicators")
	}

	if b.source.Intersects(b.target) {
		log.Panicf("source group %s and target group %s are not disjoint",
			b.source, b.target)
	}

	for _, r := range b.candidates {
		if r < 0 || r >= b.source.Size() {
			log.Panicf("candidate source %d out of source group of size %d",
				r, b.source.Size())
		}
	}
}

// Build creates the channel. On ranks of either group it creates the
// communicator spanning both groups, so all of them must call Build in the
// same order.
func (b Builder) Build() *Channel {
	b.parametersMustBeValid()

	c := &Channel{
		HookableBase: hooking.NewHookableBase(),
		name:         b.name,
		source:       b.source,
		target:       b.target,
		union:        b.source.Fuse(b.target),
		candidates:   b.candidates,
		timeStamps:   b.timeStamps,
		state:        Unsynchronized,
	}

	if !c.union.ContainsMyRank() {
		return c
	}

	comm, err := c.union.Comm()
	if err != nil {
		log.Panicf("%s: %v", b.name, err)
	}

	c.comm = comm
	c.manager = b.managerBuilder.
		WithName(b.name + ".RequestManager").
		Build(comm)

	return c
}
