package tracing

import (
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sarchlab/coupling/hooking"
	"github.com/sarchlab/coupling/request"
)

// Task kinds produced by RequestTracer.
const (
	KindSend = "req_out"
	KindRecv = "req_in"
)

type rankedDomain interface {
	Name() string
	Rank() int
}

// RequestTracer is a hook for request managers. It turns each request into a
// task that starts when the request is issued and ends when it completes or
// is cancelled. One RequestTracer can watch the managers of several ranks.
type RequestTracer struct {
	timeTeller TimeTeller
	tracer     Tracer

	lock     sync.Mutex
	inflight map[string]Task
}

// NewRequestTracer creates a RequestTracer forwarding tasks to tracer.
func NewRequestTracer(timeTeller TimeTeller, tracer Tracer) *RequestTracer {
	return &RequestTracer{
		timeTeller: timeTeller,
		tracer:     tracer,
		inflight:   make(map[string]Task),
	}
}

// Func handles a request hook.
func (t *RequestTracer) Func(ctx hooking.HookCtx) {
	info, ok := ctx.Item.(request.Info)
	if !ok {
		return
	}

	location := locationOf(ctx.Domain)
	key := fmt.Sprintf("%s#%d", location, info.ID)

	switch ctx.Pos {
	case request.HookPosRequestIssued:
		t.start(key, location, info)
	case request.HookPosRequestCompleted:
		t.end(key, "")
	case request.HookPosRequestCancelled:
		t.end(key, "cancelled")
	}
}

func (t *RequestTracer) start(key, location string, info request.Info) {
	kind := KindSend
	if info.Direction == request.RecvDirection {
		kind = KindRecv
	}

	task := Task{
		ID:        xid.New().String(),
		Kind:      kind,
		What:      fmt.Sprintf("%s[%d] tag %d", info.Type, info.Count, info.Tag),
		Location:  fmt.Sprintf("%s.Peer[%d]", location, info.Peer),
		StartTime: t.timeTeller.Now(),
	}

	t.lock.Lock()
	t.inflight[key] = task
	t.lock.Unlock()

	t.tracer.StartTask(task)
}

func (t *RequestTracer) end(key, what string) {
	t.lock.Lock()
	task, ok := t.inflight[key]
	delete(t.inflight, key)
	t.lock.Unlock()

	if !ok {
		return
	}

	task.EndTime = t.timeTeller.Now()
	task.What = what

	t.tracer.EndTask(task)
}

func locationOf(domain hooking.Hookable) string {
	if d, ok := domain.(rankedDomain); ok {
		return fmt.Sprintf("%s[%d]", d.Name(), d.Rank())
	}

	return fmt.Sprintf("%T", domain)
}
