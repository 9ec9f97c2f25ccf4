// Package group describes processor groups, immutable sets of ranks of a
// parent communicator.
package group

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/sarchlab/coupling/transport"
)

// A Group is an immutable, ordered set of ranks of a parent communicator.
// Ranks handed to and returned by a Group are parent ranks unless stated
// otherwise. The position of a rank in the group is its group rank.
type Group struct {
	parent transport.Comm
	ranks  []int
	index  map[int]int
	comms  *commCache
}

// commCache shares sub-communicators between the groups derived from the
// same New call, so that groups with the same members use the same context.
type commCache struct {
	comms map[string]transport.Comm
}

// New creates a group over the given parent ranks. Duplicates are removed
// and the ranks are kept in ascending order.
func New(parent transport.Comm, ranks ...int) *Group {
	if parent == nil {
		panic("group needs a parent communicator")
	}

	return newGroup(parent, ranks, &commCache{
		comms: make(map[string]transport.Comm),
	})
}

// Range creates a group over the parent ranks [first, last].
func Range(parent transport.Comm, first, last int) *Group {
	ranks := []int{}
	for r := first; r <= last; r++ {
		ranks = append(ranks, r)
	}

	return New(parent, ranks...)
}

func newGroup(parent transport.Comm, ranks []int, comms *commCache) *Group {
	g := &Group{
		parent: parent,
		index:  make(map[int]int, len(ranks)),
		comms:  comms,
	}

	for _, r := range ranks {
		if r < 0 || r >= parent.Size() {
			log.Panicf("rank %d out of communicator of size %d",
				r, parent.Size())
		}

		if _, dup := g.index[r]; dup {
			continue
		}

		g.index[r] = 0
		g.ranks = append(g.ranks, r)
	}

	sort.Ints(g.ranks)
	for i, r := range g.ranks {
		g.index[r] = i
	}

	return g
}

// Parent returns the communicator the group ranks refer to.
func (g *Group) Parent() transport.Comm {
	return g.parent
}

// Size returns the number of ranks.
func (g *Group) Size() int {
	return len(g.ranks)
}

// Ranks returns the parent ranks of the members.
func (g *Group) Ranks() []int {
	return append([]int(nil), g.ranks...)
}

// Contains reports whether the parent rank is a member.
func (g *Group) Contains(rank int) bool {
	_, ok := g.index[rank]
	return ok
}

// ContainsMyRank reports whether the calling process is a member.
func (g *Group) ContainsMyRank() bool {
	return g.Contains(g.parent.Rank())
}

// MyRank returns the group rank of the calling process, or -1.
func (g *Group) MyRank() int {
	return g.GroupRank(g.parent.Rank())
}

// GroupRank returns the group rank of a parent rank, or -1.
func (g *Group) GroupRank(rank int) int {
	i, ok := g.index[rank]
	if !ok {
		return -1
	}

	return i
}

// ParentRank returns the parent rank of a group rank.
func (g *Group) ParentRank(groupRank int) int {
	return g.ranks[groupRank]
}

// TranslateRank converts a group rank of other into a group rank of g. It
// returns -1 if the process is not a member of g.
func (g *Group) TranslateRank(other *Group, rank int) int {
	groupsMustShareParent(g, other)

	return g.GroupRank(other.ParentRank(rank))
}

// Fuse returns the union of both groups.
func (g *Group) Fuse(other *Group) *Group {
	groupsMustShareParent(g, other)

	ranks := append(g.Ranks(), other.ranks...)

	return newGroup(g.parent, ranks, g.comms)
}

// Complement returns the parent ranks that are not members.
func (g *Group) Complement() *Group {
	ranks := []int{}
	for r := 0; r < g.parent.Size(); r++ {
		if !g.Contains(r) {
			ranks = append(ranks, r)
		}
	}

	return newGroup(g.parent, ranks, g.comms)
}

// Intersects reports whether the groups share a rank.
func (g *Group) Intersects(other *Group) bool {
	groupsMustShareParent(g, other)

	for _, r := range other.ranks {
		if g.Contains(r) {
			return true
		}
	}

	return false
}

// Comm returns the sub-communicator spanning the members. It is created on
// first use, on members only, and shared by every group with the same
// members derived from the same New call.
func (g *Group) Comm() (transport.Comm, error) {
	key := g.key()

	if c, ok := g.comms.comms[key]; ok {
		return c, nil
	}

	c, err := g.parent.Create(g.ranks)
	if err != nil {
		return nil, fmt.Errorf("creating communicator for group %s: %w",
			g, err)
	}

	g.comms.comms[key] = c

	return c, nil
}

func (g *Group) key() string {
	parts := make([]string, len(g.ranks))
	for i, r := range g.ranks {
		parts[i] = strconv.Itoa(r)
	}

	return strings.Join(parts, ",")
}

func (g *Group) String() string {
	return "{" + g.key() + "}"
}

func groupsMustShareParent(a, b *Group) {
	if a.parent != b.parent {
		panic("groups belong to different communicators")
	}
}
