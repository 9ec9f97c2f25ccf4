package dec

import (
	"fmt"

	"github.com/sarchlab/coupling/transport"
)

// PrepareSourceDE computes the send counts and displacements of a source
// rank and allocates its send buffer.
func (c *Channel) PrepareSourceDE() error {
	if !c.IsInUnion() {
		return nil
	}

	if err := c.transferMustBeReady(); err != nil {
		return err
	}

	if !c.IsInSourceSide() {
		return ErrWrongSide
	}

	c.prepare()

	return nil
}

// PrepareTargetDE computes the receive counts and displacements of a target
// rank and allocates its receive buffer.
func (c *Channel) PrepareTargetDE() error {
	if !c.IsInUnion() {
		return nil
	}

	if err := c.transferMustBeReady(); err != nil {
		return err
	}

	if !c.IsInTargetSide() {
		return ErrWrongSide
	}

	c.prepare()

	return nil
}

func (c *Channel) transferMustBeReady() error {
	if c.state == Unsynchronized {
		return ErrNotSynchronized
	}

	if c.field == nil {
		return ErrNoField
	}

	return nil
}

func (c *Channel) currentShape() shape {
	data := c.field.Data()

	return shape{
		nbTuples:     data.NbTuples(),
		nbComponents: data.NbComponents(),
	}
}

// prepare sizes the buffers of the calling side. Values flow from source to
// target, so a source rank sends what its mapping lists and a target rank
// receives what its mapping lists.
func (c *Channel) prepare() {
	c.shape = c.currentShape()
	ncomp := c.shape.nbComponents
	n := c.comm.Size()
	counts := c.mapping.Counts(n)
	none := make([]int, n)

	if c.IsInSourceSide() {
		c.sendCounts, c.sendDispls = countsAndDispls(counts, ncomp)
		c.recvCounts, c.recvDispls = countsAndDispls(none, ncomp)
	} else {
		c.sendCounts, c.sendDispls = countsAndDispls(none, ncomp)
		c.recvCounts, c.recvDispls = countsAndDispls(counts, ncomp)
	}

	c.sendBuf = make([]float64, total(c.sendCounts))
	c.recvBuf = make([]float64, total(c.recvCounts))
	c.prepared = true
}

func (c *Channel) prepareIfNeeded() {
	if !c.prepared || c.currentShape() != c.shape {
		c.prepare()
	}
}

// SendData sends the values of the attached field to the target ranks. It
// must run on source ranks while the target ranks run RecvData.
func (c *Channel) SendData() error {
	if !c.IsInUnion() {
		return nil
	}

	if !c.IsInSourceSide() {
		return ErrWrongSide
	}

	if err := c.transferMustBeReady(); err != nil {
		return err
	}

	c.prepareIfNeeded()
	c.state = Sending

	if err := c.exchangeTimeMessages(); err != nil {
		return fmt.Errorf("%s: sending time messages: %w", c.name, err)
	}

	c.gatherByIndex(c.sendBuf)

	err := c.comm.Alltoallv(
		c.sendBuf, c.sendCounts, c.sendDispls,
		c.recvBuf, c.recvCounts, c.recvDispls,
		transport.Float64Type)
	if err != nil {
		return fmt.Errorf("%s: sending data: %w", c.name, err)
	}

	c.round++
	c.invoke(HookPosRoundCompleted)

	return nil
}

// RecvData receives values from the source ranks into the attached field.
// Local elements no source rank holds keep their values.
func (c *Channel) RecvData() error {
	if !c.IsInUnion() {
		return nil
	}

	if !c.IsInTargetSide() {
		return ErrWrongSide
	}

	if err := c.transferMustBeReady(); err != nil {
		return err
	}

	c.prepareIfNeeded()
	c.state = Receiving

	if err := c.exchangeTimeMessages(); err != nil {
		return fmt.Errorf("%s: receiving time messages: %w", c.name, err)
	}

	err := c.comm.Alltoallv(
		c.sendBuf, c.sendCounts, c.sendDispls,
		c.recvBuf, c.recvCounts, c.recvDispls,
		transport.Float64Type)
	if err != nil {
		return fmt.Errorf("%s: receiving data: %w", c.name, err)
	}

	c.scatterByEntry(c.recvBuf)
	c.round++
	c.invoke(HookPosRoundCompleted)

	return nil
}

// SendRecvData runs the transfer of the calling side. When way is true,
// values flow from source to target. Otherwise target values flow back to
// the source elements they were mapped to.
func (c *Channel) SendRecvData(way bool) error {
	if !c.IsInUnion() {
		return nil
	}

	if way {
		if c.IsInSourceSide() {
			return c.SendData()
		}

		return c.RecvData()
	}

	return c.reverseData()
}

// reverseData uses the prepared buffers with their roles swapped: targets
// send with the receive counts of the forward transfer.
func (c *Channel) reverseData() error {
	if err := c.transferMustBeReady(); err != nil {
		return err
	}

	c.prepareIfNeeded()

	if c.IsInTargetSide() {
		c.state = Sending
		c.gatherByEntry(c.recvBuf)
	} else {
		c.state = Receiving
	}

	err := c.comm.Alltoallv(
		c.recvBuf, c.recvCounts, c.recvDispls,
		c.sendBuf, c.sendCounts, c.sendDispls,
		transport.Float64Type)
	if err != nil {
		return fmt.Errorf("%s: reverse transfer: %w", c.name, err)
	}

	if c.IsInSourceSide() {
		c.scatterByIndex(c.sendBuf)
	}

	c.round++
	c.invoke(HookPosRoundCompleted)

	return nil
}

// exchangeTimeMessages lets every source rank stamp the round for every
// target rank.
func (c *Channel) exchangeTimeMessages() error {
	if !c.timeStamps {
		return nil
	}

	n := c.comm.Size()
	send := make([]transport.TimeMessage, n)
	recv := make([]transport.TimeMessage, n)

	if c.IsInSourceSide() {
		msg := c.field.TimeMessage(c.round)
		for i := range send {
			send[i] = msg
		}
	}

	err := c.comm.Alltoall(send, 1, recv, 1, transport.TimeMessageType)
	if err != nil {
		return err
	}

	if c.IsInTargetSide() {
		c.lastTimeMessages = make([]transport.TimeMessage, c.source.Size())
		for s, r := range c.source.Ranks() {
			c.lastTimeMessages[s] = recv[c.union.GroupRank(r)]
		}
	}

	return nil
}

// gatherByIndex fills buf, on a source rank, with the tuples the mapping
// entries point to, in entry order.
func (c *Channel) gatherByIndex(buf []float64) {
	data := c.field.Data()
	ncomp := data.NbComponents()

	for k := 0; k < c.mapping.NbElements(); k++ {
		idx := c.mapping.DistantNumbering(k).Index
		copy(buf[k*ncomp:(k+1)*ncomp], data.Tuple(idx))
	}
}

func (c *Channel) scatterByIndex(buf []float64) {
	data := c.field.Data()
	ncomp := data.NbComponents()

	for k := 0; k < c.mapping.NbElements(); k++ {
		idx := c.mapping.DistantNumbering(k).Index
		data.SetTuple(idx, buf[k*ncomp:(k+1)*ncomp])
	}
}

// scatterByEntry writes buf, on a target rank, to the local elements in the
// order the mapping was serialized.
func (c *Channel) scatterByEntry(buf []float64) {
	data := c.field.Data()
	ncomp := data.NbComponents()

	for j, k := range c.mapping.BufferIndex() {
		data.SetTuple(c.localOfEntry[k], buf[j*ncomp:(j+1)*ncomp])
	}
}

func (c *Channel) gatherByEntry(buf []float64) {
	data := c.field.Data()
	ncomp := data.NbComponents()

	for j, k := range c.mapping.BufferIndex() {
		copy(buf[j*ncomp:(j+1)*ncomp], data.Tuple(c.localOfEntry[k]))
	}
}
