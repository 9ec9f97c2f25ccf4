package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/coupling/hooking"
	"github.com/sarchlab/coupling/transport"
)

// Link identifies the messages sent from one rank to another within a
// communicator.
type Link struct {
	Context  string
	Src, Dst int
}

// Traffic is the amount of data that went through a link.
type Traffic struct {
	Link
	Messages int
	Bytes    int
}

// TransportTracer is a transport hook that counts delivered messages and
// bytes per link.
type TransportTracer struct {
	lock    sync.Mutex
	traffic map[Link]*Traffic
}

// NewTransportTracer creates an empty TransportTracer.
func NewTransportTracer() *TransportTracer {
	return &TransportTracer{
		traffic: make(map[Link]*Traffic),
	}
}

// Func counts one delivered message.
func (t *TransportTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != transport.HookPosMsgDelivered {
		return
	}

	env, ok := ctx.Item.(transport.Envelope)
	if !ok {
		return
	}

	link := Link{Context: env.Context, Src: env.Src, Dst: env.Dst}

	t.lock.Lock()
	defer t.lock.Unlock()

	tr, found := t.traffic[link]
	if !found {
		tr = &Traffic{Link: link}
		t.traffic[link] = tr
	}

	tr.Messages++
	tr.Bytes += env.Bytes
}

// Traffic returns the counters of every link, sorted by context, source
// and destination.
func (t *TransportTracer) Traffic() []Traffic {
	t.lock.Lock()
	defer t.lock.Unlock()

	list := make([]Traffic, 0, len(t.traffic))
	for _, tr := range t.traffic {
		list = append(list, *tr)
	}

	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Context != b.Context {
			return a.Context < b.Context
		}

		if a.Src != b.Src {
			return a.Src < b.Src
		}

		return a.Dst < b.Dst
	})

	return list
}

// Total returns the number of messages and bytes over all links.
func (t *TransportTracer) Total() (messages, bytes int) {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, tr := range t.traffic {
		messages += tr.Messages
		bytes += tr.Bytes
	}

	return messages, bytes
}
