package dec

import (
	"fmt"

	"github.com/sarchlab/coupling/mapping"
	"github.com/sarchlab/coupling/request"
	"github.com/sarchlab/coupling/topology"
	"github.com/sarchlab/coupling/transport"
)

// Synchronize discovers, for every local target element, the source rank
// that holds it and tells the source ranks which of their elements each
// target rank needs. Ranks outside both groups return immediately.
func (c *Channel) Synchronize() error {
	if !c.IsInUnion() {
		return nil
	}

	if c.field == nil {
		return ErrNoField
	}

	c.mapping = mapping.NewExplicit()
	c.localOfEntry = nil
	c.nbUnmatched = 0

	if c.IsInSourceSide() {
		if err := c.broadcastTopology(); err != nil {
			return fmt.Errorf("%s: broadcasting topology: %w", c.name, err)
		}
	}

	if c.IsInTargetSide() {
		topos, err := c.receiveTopologies()
		if err != nil {
			return fmt.Errorf("%s: receiving topologies: %w", c.name, err)
		}

		c.computeMapping(topos)
	}

	if err := c.transferMappingToSource(); err != nil {
		return fmt.Errorf("%s: transferring mapping: %w", c.name, err)
	}

	c.state = Synchronized
	c.round = 0
	c.prepared = false

	c.invoke(HookPosSynchronized)

	return nil
}

func (c *Channel) broadcastTopology() error {
	buf := c.field.Topology.Serialize()
	size := []int{len(buf)}

	ids := []request.ID{}
	for _, t := range c.target.Ranks() {
		dst := c.union.GroupRank(t)

		id, err := c.manager.ISend(size, 1, transport.IntType, dst)
		if err != nil {
			return err
		}
		ids = append(ids, id)

		id, err = c.manager.ISend(buf, len(buf), transport.IntType, dst)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	if err := c.manager.WaitAll(ids); err != nil {
		return err
	}

	return c.manager.DeleteRequests(ids)
}

// receiveTopologies returns the topologies of the source ranks, indexed by
// source group rank.
func (c *Channel) receiveTopologies() ([]topology.Topology, error) {
	topos := make([]topology.Topology, c.source.Size())

	for s, r := range c.source.Ranks() {
		src := c.union.GroupRank(r)

		size := make([]int, 1)
		if _, _, err := c.manager.Recv(size, 1, transport.IntType, src); err != nil {
			return nil, err
		}

		buf := make([]int, size[0])
		_, _, err := c.manager.Recv(buf, size[0], transport.IntType, src)
		if err != nil {
			return nil, err
		}

		topo, err := topology.Unserialize(buf, c.source)
		if err != nil {
			return nil, fmt.Errorf("from source rank %d: %w", s, err)
		}

		topos[s] = topo
	}

	return topos, nil
}

func (c *Channel) computeMapping(topos []topology.Topology) {
	candidates := c.candidates
	if len(candidates) == 0 {
		candidates = make([]int, c.source.Size())
		for i := range candidates {
			candidates[i] = i
		}
	}

	local := c.field.Topology
	for i := 0; i < local.NbLocalElements(); i++ {
		global := local.LocalToGlobal(i)
		found := false

		for _, s := range candidates {
			loc := topos[s].GlobalToLocal(global)
			if loc < 0 {
				continue
			}

			c.mapping.PushBackElem(mapping.Pair{
				Rank:  c.union.TranslateRank(c.source, s),
				Index: loc,
			})
			c.localOfEntry = append(c.localOfEntry, i)
			found = true

			break
		}

		if !found {
			c.nbUnmatched++
		}
	}
}

// transferMappingToSource echoes the target mappings to the source ranks.
// The number of pairs per rank travels first, then the pairs themselves.
func (c *Channel) transferMappingToSource() error {
	n := c.comm.Size()

	sendPairs := make([]int, n)
	var sendBuf []int
	if c.IsInTargetSide() {
		sendPairs, sendBuf = c.mapping.Serialize(c.comm.Rank(), n)
	}

	recvPairs := make([]int, n)
	err := c.comm.Alltoall(sendPairs, 1, recvPairs, 1, transport.IntType)
	if err != nil {
		return err
	}

	sendCounts, sendDispls := countsAndDispls(sendPairs, 2)
	recvCounts, recvDispls := countsAndDispls(recvPairs, 2)
	recvBuf := make([]int, total(recvCounts))

	err = c.comm.Alltoallv(
		sendBuf, sendCounts, sendDispls,
		recvBuf, recvCounts, recvDispls,
		transport.IntType)
	if err != nil {
		return err
	}

	if c.IsInSourceSide() {
		targets := make([]int, 0, c.target.Size())
		for _, t := range c.target.Ranks() {
			targets = append(targets, c.union.GroupRank(t))
		}

		c.mapping.Unserialize(recvPairs, targets, recvBuf)
	}

	return nil
}

func countsAndDispls(sizes []int, width int) (counts, displs []int) {
	counts = make([]int, len(sizes))
	displs = make([]int, len(sizes))

	offset := 0
	for i, s := range sizes {
		counts[i] = s * width
		displs[i] = offset
		offset += counts[i]
	}

	return counts, displs
}

func total(counts []int) int {
	sum := 0
	for _, c := range counts {
		sum += c
	}

	return sum
}
