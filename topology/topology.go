// Package topology describes how the elements of a distributed mesh are
// partitioned over the ranks of a processor group.
package topology

import (
	"errors"
	"fmt"

	"github.com/sarchlab/coupling/group"
)

// ErrMalformed is returned when a serialized topology cannot be decoded.
var ErrMalformed = errors.New("malformed topology buffer")

// A Topology describes the elements one rank holds.
type Topology interface {
	ProcGroup() *group.Group
	NbLocalElements() int
	LocalToGlobal(i int) int

	// GlobalToLocal returns -1 when the element is not held locally.
	GlobalToLocal(g int) int

	NbComponents() int
	Serialize() []int
}

// Explicit is a Topology listing the global id of every local element.
type Explicit struct {
	procGroup    *group.Group
	globalIDs    []int
	globalToLoc  map[int]int
	nbComponents int
}

// NewExplicit creates a topology from the global ids of the local elements,
// in local order.
func NewExplicit(
	procGroup *group.Group,
	globalIDs []int,
	nbComponents int,
) *Explicit {
	if nbComponents <= 0 {
		panic("number of components must be positive")
	}

	t := &Explicit{
		procGroup:    procGroup,
		globalIDs:    append([]int(nil), globalIDs...),
		globalToLoc:  make(map[int]int, len(globalIDs)),
		nbComponents: nbComponents,
	}

	for i, g := range globalIDs {
		if _, dup := t.globalToLoc[g]; dup {
			panic(fmt.Sprintf("global id %d appears twice", g))
		}

		t.globalToLoc[g] = i
	}

	return t
}

// ProcGroup returns the group the topology is distributed over.
func (t *Explicit) ProcGroup() *group.Group {
	return t.procGroup
}

// NbLocalElements returns the number of local elements.
func (t *Explicit) NbLocalElements() int {
	return len(t.globalIDs)
}

// LocalToGlobal returns the global id of local element i.
func (t *Explicit) LocalToGlobal(i int) int {
	return t.globalIDs[i]
}

// GlobalToLocal returns the local index of a global id, or -1.
func (t *Explicit) GlobalToLocal(g int) int {
	i, ok := t.globalToLoc[g]
	if !ok {
		return -1
	}

	return i
}

// NbComponents returns the number of values per element.
func (t *Explicit) NbComponents() int {
	return t.nbComponents
}

// Serialize encodes the topology as [nbElems, nbComponents, globalIDs...].
func (t *Explicit) Serialize() []int {
	buf := make([]int, 0, 2+len(t.globalIDs))
	buf = append(buf, len(t.globalIDs), t.nbComponents)
	buf = append(buf, t.globalIDs...)

	return buf
}

// Unserialize decodes a buffer produced by Serialize.
func Unserialize(buf []int, procGroup *group.Group) (*Explicit, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("%w: %d words", ErrMalformed, len(buf))
	}

	n, ncomp := buf[0], buf[1]
	if n < 0 || ncomp <= 0 || len(buf) != 2+n {
		return nil, fmt.Errorf("%w: header (%d, %d) with %d words",
			ErrMalformed, n, ncomp, len(buf))
	}

	ids := buf[2:]
	seen := make(map[int]bool, n)
	for _, g := range ids {
		if seen[g] {
			return nil, fmt.Errorf("%w: global id %d appears twice",
				ErrMalformed, g)
		}
		seen[g] = true
	}

	return NewExplicit(procGroup, ids, ncomp), nil
}

// BlockPartition returns the global ids of part out of nbParts contiguous
// blocks covering [0, nbGlobal). The first nbGlobal%nbParts blocks hold one
// extra element.
func BlockPartition(nbGlobal, nbParts, part int) []int {
	if nbParts <= 0 || part < 0 || part >= nbParts || nbGlobal < 0 {
		panic(fmt.Sprintf("invalid partition %d of %d over %d elements",
			part, nbParts, nbGlobal))
	}

	base := nbGlobal / nbParts
	extra := nbGlobal % nbParts

	first := part*base + min(part, extra)
	size := base
	if part < extra {
		size++
	}

	ids := make([]int, size)
	for i := range ids {
		ids[i] = first + i
	}

	return ids
}
