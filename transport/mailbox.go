package transport

import "sync"

type opKind int

const (
	sendOp opKind = iota
	recvOp
)

// A Handle is the transport-native request behind a non-blocking operation.
// It is owned by the rank that issued the operation.
type Handle struct {
	op    opKind
	ctx   string
	buf   any
	count int
	dtype Datatype
	peer  int
	tag   int
	owner *mailbox

	status Status
	done   chan struct{}
}

func newHandle(
	op opKind,
	buf any,
	count int,
	dtype Datatype,
	peer, tag int,
) *Handle {
	return &Handle{
		op:    op,
		buf:   buf,
		count: count,
		dtype: dtype,
		peer:  peer,
		tag:   tag,
		done:  make(chan struct{}),
	}
}

// IsSend tells if the handle belongs to a send operation.
func (h *Handle) IsSend() bool {
	return h.op == sendOp
}

func (h *Handle) matches(env *Envelope) bool {
	if h.ctx != env.Context {
		return false
	}

	if h.peer != AnySource && h.peer != env.Src {
		return false
	}

	return h.tag == AnyTag || h.tag == env.Tag
}

func (h *Handle) fill(env *Envelope) {
	h.status = Status{
		Source: env.Src,
		Tag:    env.Tag,
		Type:   env.Type,
		Count:  env.Count,
	}

	switch {
	case env.Type != h.dtype:
		h.status.Count = 0
		h.status.Err = ErrType
	case env.Count > h.count:
		h.status.Count = copyPayload(h.buf, env.payload, h.count)
		h.status.Err = ErrTruncate
	default:
		copyPayload(h.buf, env.payload, env.Count)
	}
}

// mailbox holds the delivered-but-unreceived messages and the posted
// receives of one rank.
type mailbox struct {
	lock       sync.Mutex
	arrival    *sync.Cond
	unexpected []*Envelope
	posted     []*Handle
}

func newMailbox() *mailbox {
	mb := &mailbox{}
	mb.arrival = sync.NewCond(&mb.lock)

	return mb
}

// deliver hands the envelope to the oldest matching posted receive, or
// queues it. It returns the completed handle, if any. The caller must close
// the handle's done channel.
func (mb *mailbox) deliver(env *Envelope) *Handle {
	mb.lock.Lock()
	defer mb.lock.Unlock()

	for i, h := range mb.posted {
		if !h.matches(env) {
			continue
		}

		mb.posted = append(mb.posted[:i], mb.posted[i+1:]...)
		h.fill(env)

		return h
	}

	mb.unexpected = append(mb.unexpected, env)
	mb.arrival.Broadcast()

	return nil
}

// post matches the receive against the queued messages, or records it as
// posted. It returns the consumed envelope, if any. The caller must close
// the handle's done channel when an envelope is returned.
func (mb *mailbox) post(h *Handle) *Envelope {
	mb.lock.Lock()
	defer mb.lock.Unlock()

	for i, env := range mb.unexpected {
		if !h.matches(env) {
			continue
		}

		mb.unexpected = append(mb.unexpected[:i], mb.unexpected[i+1:]...)
		h.fill(env)

		return env
	}

	mb.posted = append(mb.posted, h)

	return nil
}

// cancel withdraws a posted receive. It returns false if the receive was
// already matched.
func (mb *mailbox) cancel(h *Handle) bool {
	mb.lock.Lock()
	defer mb.lock.Unlock()

	for i, posted := range mb.posted {
		if posted != h {
			continue
		}

		mb.posted = append(mb.posted[:i], mb.posted[i+1:]...)
		h.status = Status{
			Source:    h.peer,
			Tag:       h.tag,
			Type:      h.dtype,
			Cancelled: true,
		}

		return true
	}

	return false
}

func (mb *mailbox) probe(ctx string, src, tag int, block bool) *Envelope {
	mb.lock.Lock()
	defer mb.lock.Unlock()

	probe := &Handle{ctx: ctx, peer: src, tag: tag}

	for {
		for _, env := range mb.unexpected {
			if probe.matches(env) {
				e := *env
				return &e
			}
		}

		if !block {
			return nil
		}

		mb.arrival.Wait()
	}
}
