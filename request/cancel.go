package request

import (
	"sort"

	"github.com/sarchlab/coupling/transport"
)

// Cancel withdraws a posted asynchronous receive. If a message matched the
// receive first, the outcome is AlreadyDelivered and the request completes
// normally.
func (m *Manager) Cancel(id ID) (CancelOutcome, error) {
	if id == None {
		return AlreadyDelivered, nil
	}

	rec, err := m.lookup(id)
	if err != nil {
		return AlreadyDelivered, err
	}

	if rec.dir != RecvDirection || !rec.async {
		return AlreadyDelivered, ErrNotCancellable
	}

	return m.cancelRecord(rec)
}

func (m *Manager) cancelRecord(rec *record) (CancelOutcome, error) {
	if rec.completed {
		if rec.cancelled {
			return CancelledCleanly, nil
		}

		return AlreadyDelivered, nil
	}

	err := m.comm.Cancel(rec.handle)
	if err != nil {
		return AlreadyDelivered, err
	}

	st, err := m.comm.Wait(rec.handle)
	m.complete(rec, st, err)

	if !rec.cancelled {
		return AlreadyDelivered, rec.err
	}

	// Hand the tag back if no receive from this peer was issued after it.
	if m.recvTags.current(rec.peer) == rec.tag-tagCode(rec.dtype) {
		m.recvTags.restore(rec.peer, rec.prevSeq)
	}

	return CancelledCleanly, nil
}

// CancelPending discards a message that is pending but for which no receive
// was posted, typically one found with Probe. It posts a temporary receive of
// the probed shape, cancels it and waits for it.
//
// The operation races with the delivery of the message: CancelledCleanly
// means nothing matched the temporary receive, AlreadyDelivered means the
// message was received into a scratch buffer and dropped.
func (m *Manager) CancelPending(
	peer, tag int,
	dtype transport.Datatype,
	outCount int,
) (CancelOutcome, error) {
	scratch := scratchBuffer(dtype, outCount)

	h, err := m.comm.IRecv(scratch, outCount, dtype, peer, tag)
	if err != nil {
		return AlreadyDelivered, err
	}

	current := m.recvTags.current(peer)
	rec := m.newRecord(peer, RecvDirection, tag, current, dtype, outCount,
		true, h)
	m.recvIDs[peer] = append(m.recvIDs[peer], rec.id)

	outcome, err := m.cancelRecord(rec)
	if outcome == AlreadyDelivered && tag == m.recvTags.peek(peer, dtype) {
		m.recvTags.advance(peer)
	}

	m.mustDelete(rec.id)

	return outcome, err
}

// CancelAll cancels every posted asynchronous receive that did not complete.
// It returns how many of them were withdrawn cleanly.
func (m *Manager) CancelAll() (int, error) {
	ids := make([]int, 0, len(m.records))
	for id, rec := range m.records {
		if rec.dir == RecvDirection && rec.async && !rec.completed {
			ids = append(ids, int(id))
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))

	cancelled := 0

	var firstErr error
	for _, id := range ids {
		outcome, err := m.cancelRecord(m.records[ID(id)])
		if err != nil && firstErr == nil {
			firstErr = err
		}

		if outcome == CancelledCleanly {
			cancelled++
		}
	}

	return cancelled, firstErr
}

func scratchBuffer(dtype transport.Datatype, count int) any {
	switch dtype {
	case transport.TimeMessageType:
		return make([]transport.TimeMessage, count)
	case transport.IntType:
		return make([]int, count)
	default:
		return make([]float64, count)
	}
}
