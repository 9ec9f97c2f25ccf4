package request

import (
	"log"

	"github.com/sarchlab/coupling/transport"
)

// Wait blocks until the request completes. On the first completion of a
// receive it resolves the received element count. Waiting again on a
// completed request returns immediately.
func (m *Manager) Wait(id ID) error {
	if id == None {
		return nil
	}

	rec, err := m.lookup(id)
	if err != nil {
		return err
	}

	if rec.completed {
		return rec.err
	}

	st, err := m.comm.Wait(rec.handle)
	m.complete(rec, st, err)

	return rec.err
}

// Test reports whether the request completed, without blocking.
func (m *Manager) Test(id ID) (bool, error) {
	if id == None {
		return true, nil
	}

	rec, err := m.lookup(id)
	if err != nil {
		return false, err
	}

	if rec.completed {
		return true, rec.err
	}

	done, st, err := m.comm.Test(rec.handle)
	if !done {
		return false, err
	}

	m.complete(rec, st, err)

	return true, rec.err
}

// WaitAll waits for every request in turn. It returns the first error, after
// having waited for all of them.
func (m *Manager) WaitAll(ids []ID) error {
	var firstErr error

	for _, id := range ids {
		err := m.Wait(id)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// TestAll tests every request in turn. The flag is true only if all of them
// completed.
func (m *Manager) TestAll(ids []ID) (bool, error) {
	all := true

	var firstErr error
	for _, id := range ids {
		done, err := m.Test(id)
		all = all && done

		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return all, firstErr
}

func (m *Manager) complete(rec *record, st transport.Status, err error) {
	rec.completed = true
	rec.cancelled = st.Cancelled
	rec.err = err
	rec.handle = nil

	if rec.dir == SendDirection {
		rec.source = m.comm.Rank()
		rec.outCount = rec.count
	} else {
		rec.source = st.Source
		rec.outCount = st.Count
	}

	m.tracef("completed %s", rec.info())

	if rec.cancelled {
		m.invoke(HookPosRequestCancelled, rec)
		return
	}

	m.invoke(HookPosRequestCompleted, rec)
}

// Status reports the completion metadata of a completed request. Unless keep
// is set, the request is deleted afterwards. Requests that did not complete
// yet report transport.ErrPending and stay in the table.
func (m *Manager) Status(id ID, keep bool) (Status, error) {
	if id == None {
		return Status{Source: -1, Tag: -1}, nil
	}

	rec, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}

	if !rec.completed {
		return Status{}, transport.ErrPending
	}

	st := Status{
		Source:   rec.source,
		Tag:      rec.tag,
		Err:      rec.err,
		OutCount: rec.outCount,
	}

	if !keep {
		m.mustDelete(id)
	}

	return st, nil
}

// DeleteRequest removes the request from the table. A receive that has not
// completed is cancelled first so that it cannot swallow a later message.
func (m *Manager) DeleteRequest(id ID) error {
	if id == None {
		return nil
	}

	rec, err := m.lookup(id)
	if err != nil {
		return err
	}

	if !rec.completed && rec.dir == RecvDirection {
		_, err = m.cancelRecord(rec)
		if err != nil {
			return err
		}
	}

	delete(m.records, id)

	if rec.dir == SendDirection {
		m.sendIDs[rec.peer] = removeID(m.sendIDs[rec.peer], id)
		if len(m.sendIDs[rec.peer]) == 0 {
			delete(m.sendIDs, rec.peer)
		}
	} else {
		m.recvIDs[rec.peer] = removeID(m.recvIDs[rec.peer], id)
		if len(m.recvIDs[rec.peer]) == 0 {
			delete(m.recvIDs, rec.peer)
		}
	}

	m.tracef("deleted request %d", id)
	m.invoke(HookPosRequestDeleted, rec)

	return nil
}

// DeleteRequests deletes every request in the list. It returns the first
// error.
func (m *Manager) DeleteRequests(ids []ID) error {
	var firstErr error

	for _, id := range ids {
		err := m.DeleteRequest(id)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (m *Manager) mustDelete(id ID) {
	err := m.DeleteRequest(id)
	if err != nil {
		log.Panicf("%s: cannot delete request %d: %v", m.name, id, err)
	}
}

func removeID(ids []ID, id ID) []ID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}

	return ids
}
