package transport

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/sarchlab/coupling/hooking"
)

// HookPosMsgDelivered marks when a message reaches the mailbox of its
// destination rank.
var HookPosMsgDelivered = &hooking.HookPos{Name: "Msg Delivered"}

// HookPosMsgRetrieved marks when a delivered message is matched with a
// receive and copied into the user buffer.
var HookPosMsgRetrieved = &hooking.HookPos{Name: "Msg Retrieved"}

// DefaultTagUB is the largest tag a LocalWorld accepts unless configured
// otherwise.
const DefaultTagUB = 32767

const collectiveTag = 0

// Envelope describes a message in flight. Hooks receive envelopes as their
// item.
type Envelope struct {
	ID       uint64
	Context  string
	Src, Dst int
	Tag      int
	Type     Datatype
	Count    int
	Bytes    int

	payload any
}

// A LocalWorld hosts every rank of a run inside the current process. Each
// rank owns a mailbox; messages are copied eagerly into the destination
// mailbox at send time.
type LocalWorld struct {
	*hooking.HookableBase

	id        string
	tagUB     int
	mailboxes []*mailbox
	nextMsgID uint64
}

// LocalWorldBuilder configures LocalWorlds.
type LocalWorldBuilder struct {
	size  int
	tagUB int
}

// MakeLocalWorldBuilder creates a builder with default parameters.
func MakeLocalWorldBuilder() LocalWorldBuilder {
	return LocalWorldBuilder{
		size:  1,
		tagUB: DefaultTagUB,
	}
}

// WithSize sets the number of ranks.
func (b LocalWorldBuilder) WithSize(size int) LocalWorldBuilder {
	b.size = size
	return b
}

// WithTagUB sets the largest legal point-to-point tag.
func (b LocalWorldBuilder) WithTagUB(tagUB int) LocalWorldBuilder {
	b.tagUB = tagUB
	return b
}

func (b LocalWorldBuilder) parametersMustBeValid() {
	if b.size <= 0 {
		panic("world size must be positive")
	}

	if b.tagUB <= 0 {
		panic("tag upper bound must be positive")
	}
}

// Build creates the world.
func (b LocalWorldBuilder) Build() *LocalWorld {
	b.parametersMustBeValid()

	w := &LocalWorld{
		HookableBase: hooking.NewHookableBase(),
		id:           xid.New().String(),
		tagUB:        b.tagUB,
		mailboxes:    make([]*mailbox, b.size),
	}

	for i := range w.mailboxes {
		w.mailboxes[i] = newMailbox()
	}

	return w
}

// NewLocalWorld creates a world of the given size with default parameters.
func NewLocalWorld(size int) *LocalWorld {
	return MakeLocalWorldBuilder().WithSize(size).Build()
}

// ID returns the unique identifier of the world.
func (w *LocalWorld) ID() string {
	return w.id
}

// Size returns the number of ranks.
func (w *LocalWorld) Size() int {
	return len(w.mailboxes)
}

// Comm returns the world communicator as seen by the given rank.
func (w *LocalWorld) Comm(rank int) Comm {
	if rank < 0 || rank >= w.Size() {
		panic(fmt.Sprintf("rank %d out of world of size %d", rank, w.Size()))
	}

	ranks := make([]int, w.Size())
	for i := range ranks {
		ranks[i] = i
	}

	return newLocalComm(w, "world", ranks, rank)
}

// Run starts one goroutine per rank, hands each of them its world
// communicator and waits for all of them. It returns the errors reported by
// the ranks, joined. A panicking rank is reported as an error.
func (w *LocalWorld) Run(body func(comm Comm) error) error {
	errs := make([]error, w.Size())

	var wg sync.WaitGroup
	for rank := 0; rank < w.Size(); rank++ {
		wg.Add(1)

		go func(rank int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[rank] = fmt.Errorf("rank %d panicked: %v", rank, r)
				}
			}()

			err := body(w.Comm(rank))
			if err != nil {
				errs[rank] = fmt.Errorf("rank %d: %w", rank, err)
			}
		}(rank)
	}
	wg.Wait()

	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	var msgs []string
	var first error

	for _, err := range errs {
		if err == nil {
			continue
		}

		if first == nil {
			first = err
		}

		msgs = append(msgs, err.Error())
	}

	if len(msgs) <= 1 {
		return first
	}

	return fmt.Errorf("%w (and %d more: %s)",
		first, len(msgs)-1, strings.Join(msgs[1:], "; "))
}

// PendingMessages returns the number of delivered, unreceived messages in the
// mailbox of a world rank.
func (w *LocalWorld) PendingMessages(worldRank int) int {
	mb := w.mailboxes[worldRank]

	mb.lock.Lock()
	defer mb.lock.Unlock()

	return len(mb.unexpected)
}

func (w *LocalWorld) deliver(worldDst int, env *Envelope) {
	env.ID = atomic.AddUint64(&w.nextMsgID, 1)

	if w.NumHooks() > 0 {
		w.InvokeHook(hooking.HookCtx{
			Domain: w,
			Pos:    HookPosMsgDelivered,
			Item:   *env,
		})
	}

	matched := w.mailboxes[worldDst].deliver(env)
	if matched != nil {
		w.retrieved(matched, env)
	}
}

func (w *LocalWorld) retrieved(h *Handle, env *Envelope) {
	if w.NumHooks() > 0 {
		w.InvokeHook(hooking.HookCtx{
			Domain: w,
			Pos:    HookPosMsgRetrieved,
			Item:   *env,
			Detail: h.status,
		})
	}

	close(h.done)
}

type localComm struct {
	world     *LocalWorld
	ctx       string
	collCtx   string
	ranks     []int
	rank      int
	creations map[string]int
}

func newLocalComm(
	w *LocalWorld,
	ctx string,
	ranks []int,
	rank int,
) *localComm {
	return &localComm{
		world:     w,
		ctx:       ctx + ":p2p",
		collCtx:   ctx + ":coll",
		ranks:     ranks,
		rank:      rank,
		creations: make(map[string]int),
	}
}

func (c *localComm) Rank() int {
	return c.rank
}

func (c *localComm) Size() int {
	return len(c.ranks)
}

func (c *localComm) TagUB() int {
	return c.world.tagUB
}

func (c *localComm) Extent(dtype Datatype) int {
	switch dtype {
	case TimeMessageType:
		return 24
	case IntType, Float64Type:
		return 8
	default:
		return 0
	}
}

func (c *localComm) Send(
	buf any,
	count int,
	dtype Datatype,
	dst, tag int,
) error {
	h, err := c.ISend(buf, count, dtype, dst, tag)
	if err != nil {
		return err
	}

	_, err = c.Wait(h)

	return err
}

func (c *localComm) Recv(
	buf any,
	count int,
	dtype Datatype,
	src, tag int,
) (Status, error) {
	h, err := c.IRecv(buf, count, dtype, src, tag)
	if err != nil {
		return Status{}, err
	}

	return c.Wait(h)
}

func (c *localComm) ISend(
	buf any,
	count int,
	dtype Datatype,
	dst, tag int,
) (*Handle, error) {
	if err := bufferMustMatch(buf, count, dtype); err != nil {
		return nil, err
	}

	if dst < 0 || dst >= c.Size() {
		return nil, ErrRank
	}

	if tag < 0 || tag > c.TagUB() {
		return nil, ErrTag
	}

	c.post(c.ctx, buf, count, dtype, dst, tag)

	h := newHandle(sendOp, nil, count, dtype, dst, tag)
	h.status = Status{Source: c.rank, Tag: tag, Type: dtype, Count: count}
	close(h.done)

	return h, nil
}

func (c *localComm) post(
	ctx string,
	buf any,
	count int,
	dtype Datatype,
	dst, tag int,
) {
	env := &Envelope{
		Context: ctx,
		Src:     c.rank,
		Dst:     dst,
		Tag:     tag,
		Type:    dtype,
		Count:   count,
		Bytes:   count * c.Extent(dtype),
		payload: clonePayload(buf, count, dtype),
	}

	c.world.deliver(c.ranks[dst], env)
}

func (c *localComm) IRecv(
	buf any,
	count int,
	dtype Datatype,
	src, tag int,
) (*Handle, error) {
	if err := bufferMustMatch(buf, count, dtype); err != nil {
		return nil, err
	}

	if src != AnySource && (src < 0 || src >= c.Size()) {
		return nil, ErrRank
	}

	if tag != AnyTag && (tag < 0 || tag > c.TagUB()) {
		return nil, ErrTag
	}

	return c.postRecv(c.ctx, buf, count, dtype, src, tag), nil
}

func (c *localComm) postRecv(
	ctx string,
	buf any,
	count int,
	dtype Datatype,
	src, tag int,
) *Handle {
	h := newHandle(recvOp, buf, count, dtype, src, tag)
	h.ctx = ctx
	h.owner = c.world.mailboxes[c.ranks[c.rank]]

	env := h.owner.post(h)
	if env != nil {
		c.world.retrieved(h, env)
	}

	return h
}

func (c *localComm) Wait(h *Handle) (Status, error) {
	if h == nil {
		return Status{}, ErrRequest
	}

	<-h.done

	return h.status, h.status.Err
}

func (c *localComm) Test(h *Handle) (bool, Status, error) {
	if h == nil {
		return false, Status{}, ErrRequest
	}

	select {
	case <-h.done:
		return true, h.status, h.status.Err
	default:
		return false, Status{}, nil
	}
}

func (c *localComm) Cancel(h *Handle) error {
	if h == nil {
		return ErrRequest
	}

	if h.op != recvOp {
		return nil
	}

	if h.owner.cancel(h) {
		close(h.done)
	}

	return nil
}

func (c *localComm) Probe(src, tag int) (Status, error) {
	if src != AnySource && (src < 0 || src >= c.Size()) {
		return Status{}, ErrRank
	}

	mb := c.world.mailboxes[c.ranks[c.rank]]
	env := mb.probe(c.ctx, src, tag, true)

	return probeStatus(env), nil
}

func (c *localComm) IProbe(src, tag int) (bool, Status, error) {
	if src != AnySource && (src < 0 || src >= c.Size()) {
		return false, Status{}, ErrRank
	}

	mb := c.world.mailboxes[c.ranks[c.rank]]

	env := mb.probe(c.ctx, src, tag, false)
	if env == nil {
		return false, Status{}, nil
	}

	return true, probeStatus(env), nil
}

func probeStatus(env *Envelope) Status {
	return Status{
		Source: env.Src,
		Tag:    env.Tag,
		Type:   env.Type,
		Count:  env.Count,
	}
}

func (c *localComm) Create(ranks []int) (Comm, error) {
	myRank := -1
	seen := make(map[int]bool, len(ranks))
	worldRanks := make([]int, len(ranks))
	keys := make([]string, len(ranks))

	for i, r := range ranks {
		if r < 0 || r >= c.Size() || seen[r] {
			return nil, ErrRank
		}

		seen[r] = true
		worldRanks[i] = c.ranks[r]
		keys[i] = strconv.Itoa(r)

		if r == c.rank {
			myRank = i
		}
	}

	if myRank < 0 {
		return nil, ErrComm
	}

	key := c.ctx + "/" + strings.Join(keys, ",")
	n := c.creations[key]
	c.creations[key]++

	return newLocalComm(c.world, key+"#"+strconv.Itoa(n), worldRanks, myRank),
		nil
}
