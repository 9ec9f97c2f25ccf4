// Package request tracks the transport requests of one process. It hands out
// request ids instead of transport handles, allocates wire tags so that both
// ends of a point-to-point exchange agree on them without exchanging them, and
// keeps per-peer tables of outstanding sends and receives.
package request

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/sarchlab/coupling/hooking"
	"github.com/sarchlab/coupling/transport"
)

// ErrUnknownRequest is returned when a request id is not in the table.
var ErrUnknownRequest = fmt.Errorf("unknown request: %w", transport.ErrRequest)

// ErrNotCancellable is returned when cancelling a request that is not an
// asynchronous receive.
var ErrNotCancellable = errors.New("only asynchronous receives can be cancelled")

// A Manager owns every outstanding request of one process on one
// communicator. It is not safe for concurrent use; each rank drives its own
// Manager.
type Manager struct {
	*hooking.HookableBase

	name  string
	comm  transport.Comm
	trace bool

	baseTag, maxTag int

	maxRequestID  ID
	lastRequestID ID
	records       map[ID]*record

	sendTags *tagCounter
	recvTags *tagCounter
	sendIDs  map[int][]ID
	recvIDs  map[int][]ID
}

// Name returns the name of the manager.
func (m *Manager) Name() string {
	return m.name
}

// Comm returns the communicator the manager issues requests on.
func (m *Manager) Comm() transport.Comm {
	return m.comm
}

// Rank returns the rank of the process in the communicator.
func (m *Manager) Rank() int {
	return m.comm.Rank()
}

// Size returns the size of the communicator.
func (m *Manager) Size() int {
	return m.comm.Size()
}

// TagRange returns the range the tag counters cycle through.
func (m *Manager) TagRange() (baseTag, maxTag int) {
	return m.baseTag, m.maxTag
}

// Extent returns the size in bytes of one element of the datatype.
func (m *Manager) Extent(dtype transport.Datatype) int {
	return m.comm.Extent(dtype)
}

// Barrier blocks until all ranks of the communicator reached it.
func (m *Manager) Barrier() error {
	m.tracef("barrier")
	return m.comm.Barrier()
}

// ErrorString translates an error into a human-readable string.
func (m *Manager) ErrorString(err error) string {
	return transport.ErrorString(err)
}

// Send sends count elements to peer and blocks until the buffer can be
// reused. The request is created, completed and deleted before Send returns.
func (m *Manager) Send(
	buf any,
	count int,
	dtype transport.Datatype,
	peer int,
) (ID, error) {
	id, err := m.issueSend(buf, count, dtype, peer, false)
	if err != nil || id == None {
		return id, err
	}

	err = m.Wait(id)
	m.mustDelete(id)

	return id, err
}

// Recv receives at most count elements from peer. It returns the number of
// elements actually received.
func (m *Manager) Recv(
	buf any,
	count int,
	dtype transport.Datatype,
	peer int,
) (ID, int, error) {
	id, err := m.issueRecv(buf, count, dtype, peer, false)
	if err != nil || id == None {
		return id, 0, err
	}

	err = m.Wait(id)
	outCount := m.records[id].outCount
	m.mustDelete(id)

	return id, outCount, err
}

// ISend starts sending count elements to peer and returns immediately.
func (m *Manager) ISend(
	buf any,
	count int,
	dtype transport.Datatype,
	peer int,
) (ID, error) {
	return m.issueSend(buf, count, dtype, peer, true)
}

// IRecv posts a receive of at most count elements from peer and returns
// immediately.
func (m *Manager) IRecv(
	buf any,
	count int,
	dtype transport.Datatype,
	peer int,
) (ID, error) {
	return m.issueRecv(buf, count, dtype, peer, true)
}

// SendRecv posts the receive, performs the send, and waits for the receive.
// Posting the receive first keeps symmetric exchanges from deadlocking.
func (m *Manager) SendRecv(
	sendBuf any, sendCount int, sendType transport.Datatype, dst int,
	recvBuf any, recvCount int, recvType transport.Datatype, src int,
) (sendID, recvID ID, outCount int, err error) {
	recvID, err = m.issueRecv(recvBuf, recvCount, recvType, src, false)
	if err != nil {
		return None, None, 0, err
	}

	sendID, err = m.Send(sendBuf, sendCount, sendType, dst)
	if err != nil {
		return sendID, recvID, 0, err
	}

	if recvID == None {
		return sendID, recvID, 0, nil
	}

	err = m.Wait(recvID)
	outCount = m.records[recvID].outCount
	m.mustDelete(recvID)

	return sendID, recvID, outCount, err
}

// ISendRecv posts the receive and starts the send. Both requests must be
// completed with Wait or Test.
func (m *Manager) ISendRecv(
	sendBuf any, sendCount int, sendType transport.Datatype, dst int,
	recvBuf any, recvCount int, recvType transport.Datatype, src int,
) (sendID, recvID ID, err error) {
	recvID, err = m.IRecv(recvBuf, recvCount, recvType, src)
	if err != nil {
		return None, None, err
	}

	sendID, err = m.ISend(sendBuf, sendCount, sendType, dst)

	return sendID, recvID, err
}

func (m *Manager) issueSend(
	buf any,
	count int,
	dtype transport.Datatype,
	peer int,
	async bool,
) (ID, error) {
	if count == 0 {
		return None, nil
	}

	tag := m.sendTags.peek(peer, dtype)

	h, err := m.comm.ISend(buf, count, dtype, peer, tag)
	if err != nil {
		m.tracef("isend to %d failed: %s", peer, transport.ErrorString(err))
		return None, err
	}

	prev := m.sendTags.current(peer)
	m.sendTags.advance(peer)

	rec := m.newRecord(peer, SendDirection, tag, prev, dtype, count, async, h)
	m.sendIDs[peer] = append(m.sendIDs[peer], rec.id)

	return rec.id, nil
}

func (m *Manager) issueRecv(
	buf any,
	count int,
	dtype transport.Datatype,
	peer int,
	async bool,
) (ID, error) {
	if count == 0 {
		return None, nil
	}

	tag := m.recvTags.peek(peer, dtype)

	h, err := m.comm.IRecv(buf, count, dtype, peer, tag)
	if err != nil {
		m.tracef("irecv from %d failed: %s", peer, transport.ErrorString(err))
		return None, err
	}

	prev := m.recvTags.current(peer)
	m.recvTags.advance(peer)

	rec := m.newRecord(peer, RecvDirection, tag, prev, dtype, count, async, h)
	m.recvIDs[peer] = append(m.recvIDs[peer], rec.id)

	return rec.id, nil
}

func (m *Manager) newRecord(
	peer int,
	dir Direction,
	tag, prevSeq int,
	dtype transport.Datatype,
	count int,
	async bool,
	h *transport.Handle,
) *record {
	rec := &record{
		id:      m.newRequestID(),
		peer:    peer,
		dir:     dir,
		tag:     tag,
		prevSeq: prevSeq,
		dtype:   dtype,
		async:   async,
		count:   count,
		source:  -1,
		handle:  h,
	}
	m.records[rec.id] = rec

	m.tracef("%s", rec.info())
	m.invoke(HookPosRequestIssued, rec)

	return rec
}

func (m *Manager) newRequestID() ID {
	if ID(len(m.records)) > m.maxRequestID {
		log.Panicf("%s: request table full", m.name)
	}

	for {
		m.lastRequestID++
		if m.lastRequestID > m.maxRequestID {
			m.lastRequestID = 0
		}

		if _, used := m.records[m.lastRequestID]; !used {
			return m.lastRequestID
		}
	}
}

func (m *Manager) lookup(id ID) (*record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownRequest, id)
	}

	return rec, nil
}

// Record returns a snapshot of the request.
func (m *Manager) Record(id ID) (Info, bool) {
	rec, ok := m.records[id]
	if !ok {
		return Info{}, false
	}

	return rec.info(), true
}

// NbRequests returns the number of requests in the table.
func (m *Manager) NbRequests() int {
	return len(m.records)
}

// SendRequestIDs returns the ids of every tracked send, grouped by peer.
func (m *Manager) SendRequestIDs() []ID {
	return flattenIDs(m.sendIDs)
}

// RecvRequestIDs returns the ids of every tracked receive, grouped by peer.
func (m *Manager) RecvRequestIDs() []ID {
	return flattenIDs(m.recvIDs)
}

// SendRequestIDsTo returns the ids of the tracked sends to peer, in issue
// order.
func (m *Manager) SendRequestIDsTo(peer int) []ID {
	return append([]ID(nil), m.sendIDs[peer]...)
}

// RecvRequestIDsFrom returns the ids of the tracked receives from peer, in
// issue order.
func (m *Manager) RecvRequestIDsFrom(peer int) []ID {
	return append([]ID(nil), m.recvIDs[peer]...)
}

// SendRequestIDsSize returns the number of tracked sends.
func (m *Manager) SendRequestIDsSize() int {
	return countIDs(m.sendIDs)
}

// RecvRequestIDsSize returns the number of tracked receives.
func (m *Manager) RecvRequestIDsSize() int {
	return countIDs(m.recvIDs)
}

func flattenIDs(byPeer map[int][]ID) []ID {
	peers := make([]int, 0, len(byPeer))
	for p := range byPeer {
		peers = append(peers, p)
	}
	sort.Ints(peers)

	ids := []ID{}
	for _, p := range peers {
		ids = append(ids, byPeer[p]...)
	}

	return ids
}

func countIDs(byPeer map[int][]ID) int {
	n := 0
	for _, ids := range byPeer {
		n += len(ids)
	}

	return n
}

// String dumps the request table.
func (m *Manager) String() string {
	ids := make([]int, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s rank %d/%d: %d request(s), tags [%d, %d]\n",
		m.name, m.Rank(), m.Size(), len(ids), m.baseTag, m.maxTag)

	for _, id := range ids {
		fmt.Fprintf(&sb, "  %s\n", m.records[ID(id)].info())
	}

	return sb.String()
}

func (m *Manager) invoke(pos *hooking.HookPos, rec *record) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    pos,
		Item:   rec.info(),
	})
}

func (m *Manager) tracef(format string, args ...any) {
	if !m.trace {
		return
	}

	prefix := fmt.Sprintf("[%s rank %d] ", m.name, m.comm.Rank())
	log.Printf(prefix+format, args...)
}
