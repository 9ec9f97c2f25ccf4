package request

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/coupling/hooking"
	"github.com/sarchlab/coupling/transport"
)

var _ = Describe("Manager", func() {
	var (
		world  *transport.LocalWorld
		m0, m1 *Manager
	)

	BeforeEach(func() {
		world = transport.NewLocalWorld(3)
		m0 = MakeBuilder().WithTagRange(0, 100).Build(world.Comm(0))
		m1 = MakeBuilder().WithTagRange(0, 100).Build(world.Comm(1))
	})

	It("should reject invalid tag ranges", func() {
		comm := world.Comm(0)

		Expect(func() {
			MakeBuilder().WithTagRange(5, 100).Build(comm)
		}).To(Panic())
		Expect(func() {
			MakeBuilder().WithTagRange(0, 5).Build(comm)
		}).To(Panic())
		Expect(func() {
			MakeBuilder().WithTagRange(0, transport.DefaultTagUB).Build(comm)
		}).To(Panic())
		Expect(func() {
			MakeBuilder().WithMaxRequestID(0).Build(comm)
		}).To(Panic())
		Expect(func() { MakeBuilder().Build(nil) }).To(Panic())
	})

	It("should derive the max tag from the transport", func() {
		m := MakeBuilder().Build(world.Comm(0))

		base, max := m.TagRange()
		Expect(base).To(Equal(0))
		Expect(max).To(Equal(32750))
	})

	It("should treat zero-length operations as no-ops", func() {
		id, err := m0.Send(nil, 0, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(None))

		id, err = m0.ISend(nil, 0, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(None))

		id, out, err := m1.Recv(nil, 0, transport.IntType, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(None))
		Expect(out).To(Equal(0))

		id, err = m1.IRecv(nil, 0, transport.IntType, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(None))

		Expect(m0.Wait(None)).To(Succeed())
		done, err := m0.Test(None)
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeTrue())

		id, err = m0.ISend([]int{1}, 1, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())
		info, ok := m0.Record(id)
		Expect(ok).To(BeTrue())
		Expect(info.Tag).To(Equal(12))
	})

	It("should follow the request lifecycle", func() {
		buf := make([]float64, 4)
		recvID, err := m1.IRecv(buf, 4, transport.Float64Type, 0)
		Expect(err).NotTo(HaveOccurred())

		done, err := m1.Test(recvID)
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeFalse())

		_, err = m1.Status(recvID, true)
		Expect(err).To(MatchError(transport.ErrPending))

		_, err = m0.Send([]float64{1, 2, 3}, 3, transport.Float64Type, 1)
		Expect(err).NotTo(HaveOccurred())

		done, err = m1.Test(recvID)
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeTrue())
		Expect(m1.Wait(recvID)).To(Succeed())

		st, err := m1.Status(recvID, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Source).To(Equal(0))
		Expect(st.OutCount).To(Equal(3))
		Expect(st.OutCount).To(BeNumerically("<=", 4))
		Expect(buf[:3]).To(Equal([]float64{1, 2, 3}))

		_, ok := m1.Record(recvID)
		Expect(ok).To(BeTrue())

		_, err = m1.Status(recvID, false)
		Expect(err).NotTo(HaveOccurred())
		_, ok = m1.Record(recvID)
		Expect(ok).To(BeFalse())
		Expect(m1.NbRequests()).To(Equal(0))
	})

	It("should agree on tags on both sides", func() {
		types := []transport.Datatype{
			transport.IntType,
			transport.Float64Type,
			transport.TimeMessageType,
		}

		for i := 0; i < 15; i++ {
			dtype := types[i%len(types)]
			sendBuf := bufferOf(dtype, 1)
			recvBuf := bufferOf(dtype, 1)

			sendID, err := m0.ISend(sendBuf, 1, dtype, 1)
			Expect(err).NotTo(HaveOccurred())
			recvID, err := m1.IRecv(recvBuf, 1, dtype, 0)
			Expect(err).NotTo(HaveOccurred())

			sendInfo, _ := m0.Record(sendID)
			recvInfo, _ := m1.Record(recvID)
			Expect(sendInfo.Tag).To(Equal(recvInfo.Tag))

			Expect(m1.Wait(recvID)).To(Succeed())
			Expect(m0.Wait(sendID)).To(Succeed())
			Expect(m0.DeleteRequest(sendID)).To(Succeed())
			Expect(m1.DeleteRequest(recvID)).To(Succeed())
		}
	})

	It("should pass values around a ring in order", func() {
		observed := make([][]int, 3)

		err := world.Run(func(comm transport.Comm) error {
			m := MakeBuilder().WithTagRange(0, 100).Build(comm)
			rank := comm.Rank()
			next := (rank + 1) % comm.Size()
			prev := (rank + comm.Size() - 1) % comm.Size()
			buf := make([]int, 1)

			for i := 0; i < 10; i++ {
				if rank == 0 {
					_, err := m.Send([]int{i}, 1, transport.IntType, next)
					if err != nil {
						return err
					}
				}

				_, _, err := m.Recv(buf, 1, transport.IntType, prev)
				if err != nil {
					return err
				}

				observed[rank] = append(observed[rank], buf[0])

				if rank != 0 {
					_, err = m.Send(buf, 1, transport.IntType, next)
					if err != nil {
						return err
					}
				}
			}

			if m.NbRequests() != 0 {
				return fmt.Errorf("rank %d leaked %d requests",
					rank, m.NbRequests())
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		for rank := 0; rank < 3; rank++ {
			Expect(observed[rank]).To(Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}))
		}
	})

	It("should exchange symmetrically with SendRecv", func() {
		err := world.Run(func(comm transport.Comm) error {
			if comm.Rank() == 2 {
				return nil
			}

			m := MakeBuilder().Build(comm)
			other := 1 - comm.Rank()
			recv := make([]int, 2)

			_, _, out, err := m.SendRecv(
				[]int{comm.Rank(), comm.Rank()}, 2, transport.IntType, other,
				recv, 2, transport.IntType, other)
			if err != nil {
				return err
			}

			if out != 2 || recv[0] != other {
				return fmt.Errorf("unexpected payload %v", recv)
			}

			sendID, recvID, err := m.ISendRecv(
				[]int{7}, 1, transport.IntType, other,
				recv, 1, transport.IntType, other)
			if err != nil {
				return err
			}

			return m.WaitAll([]ID{sendID, recvID})
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should enumerate requests per peer", func() {
		a, _ := m0.ISend([]int{1}, 1, transport.IntType, 1)
		b, _ := m0.ISend([]int{2}, 1, transport.IntType, 2)
		c, _ := m0.ISend([]int{3}, 1, transport.IntType, 1)
		d, _ := m0.IRecv(make([]int, 1), 1, transport.IntType, 2)

		Expect(m0.SendRequestIDsTo(1)).To(Equal([]ID{a, c}))
		Expect(m0.SendRequestIDsTo(2)).To(Equal([]ID{b}))
		Expect(m0.SendRequestIDs()).To(Equal([]ID{a, c, b}))
		Expect(m0.RecvRequestIDsFrom(2)).To(Equal([]ID{d}))
		Expect(m0.RecvRequestIDs()).To(Equal([]ID{d}))
		Expect(m0.SendRequestIDsSize()).To(Equal(3))
		Expect(m0.RecvRequestIDsSize()).To(Equal(1))

		done, err := m0.TestAll(m0.SendRequestIDs())
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeTrue())

		done, err = m0.TestAll([]ID{a, d})
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeFalse())

		Expect(m0.DeleteRequests(m0.SendRequestIDs())).To(Succeed())
		Expect(m0.SendRequestIDsSize()).To(Equal(0))
		Expect(m0.String()).To(ContainSubstring("1 request(s)"))
	})

	It("should report unknown requests", func() {
		Expect(m0.Wait(ID(77))).To(MatchError(ErrUnknownRequest))
		Expect(transport.CodeOf(m0.Wait(ID(77)))).
			To(Equal(transport.ErrRequest))
		Expect(m0.DeleteRequest(ID(77))).To(MatchError(ErrUnknownRequest))
	})

	It("should cancel a posted receive and hand back its tag", func() {
		id, err := m1.IRecv(make([]int, 1), 1, transport.IntType, 0)
		Expect(err).NotTo(HaveOccurred())

		outcome, err := m1.Cancel(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(CancelledCleanly))
		info, _ := m1.Record(id)
		Expect(info.Cancelled).To(BeTrue())
		Expect(m1.DeleteRequest(id)).To(Succeed())

		_, err = m0.Send([]int{5}, 1, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())

		buf := make([]int, 1)
		_, out, err := m1.Recv(buf, 1, transport.IntType, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(1))
		Expect(buf[0]).To(Equal(5))
	})

	It("should not cancel a receive that already matched", func() {
		_, err := m0.Send([]int{5}, 1, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())

		id, err := m1.IRecv(make([]int, 1), 1, transport.IntType, 0)
		Expect(err).NotTo(HaveOccurred())

		outcome, err := m1.Cancel(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(AlreadyDelivered))
	})

	It("should refuse to cancel sends", func() {
		id, err := m0.ISend([]int{5}, 1, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())

		_, err = m0.Cancel(id)
		Expect(err).To(MatchError(ErrNotCancellable))
	})

	It("should drain a pending message", func() {
		_, err := m0.Send([]float64{1, 2}, 2, transport.Float64Type, 1)
		Expect(err).NotTo(HaveOccurred())

		probed, err := m1.Probe(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(probed.Type).To(Equal(transport.Float64Type))
		Expect(probed.OutCount).To(Equal(2))

		outcome, err := m1.CancelPending(
			probed.Source, probed.Tag, probed.Type, probed.OutCount)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(AlreadyDelivered))
		Expect(m1.NbRequests()).To(Equal(0))

		_, found, err := m1.IProbe(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())

		_, err = m0.Send([]float64{3}, 1, transport.Float64Type, 1)
		Expect(err).NotTo(HaveOccurred())

		buf := make([]float64, 1)
		_, _, err = m1.Recv(buf, 1, transport.Float64Type, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf[0]).To(Equal(3.0))
	})

	It("should cancel cleanly when nothing is pending", func() {
		outcome, err := m1.CancelPending(0, 12, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(CancelledCleanly))
	})

	It("should cancel all posted receives", func() {
		_, err := m1.IRecv(make([]int, 1), 1, transport.IntType, 0)
		Expect(err).NotTo(HaveOccurred())
		_, err = m1.IRecv(make([]int, 1), 1, transport.IntType, 2)
		Expect(err).NotTo(HaveOccurred())

		n, err := m1.CancelAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
	})

	It("should cancel an incomplete receive on deletion", func() {
		id, err := m1.IRecv(make([]int, 1), 1, transport.IntType, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(m1.DeleteRequest(id)).To(Succeed())

		_, err = m0.Send([]int{8}, 1, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())

		_, found, err := m1.IProbe(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
	})

	It("should wrap request ids", func() {
		m := MakeBuilder().WithMaxRequestID(2).Build(world.Comm(2))

		ids := []ID{}
		for i := 0; i < 3; i++ {
			id, err := m.ISend([]int{i}, 1, transport.IntType, 0)
			Expect(err).NotTo(HaveOccurred())
			ids = append(ids, id)
		}
		Expect(ids).To(Equal([]ID{0, 1, 2}))

		Expect(m.DeleteRequest(1)).To(Succeed())
		id, err := m.ISend([]int{3}, 1, transport.IntType, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(ID(1)))

		Expect(func() {
			_, _ = m.ISend([]int{4}, 1, transport.IntType, 0)
		}).To(Panic())
	})

	It("should invoke hooks along the lifecycle", func() {
		var positions []*hooking.HookPos
		m0.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos)
		}))

		_, err := m0.Send([]int{1}, 1, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(positions).To(Equal([]*hooking.HookPos{
			HookPosRequestIssued,
			HookPosRequestCompleted,
			HookPosRequestDeleted,
		}))
	})

	It("should log in trace mode", func() {
		m := MakeBuilder().WithName("Traced").WithTrace().Build(world.Comm(2))

		_, err := m.Send([]int{1}, 1, transport.IntType, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Name()).To(Equal("Traced"))
		Expect(m.ErrorString(transport.ErrTag)).To(Equal("invalid tag argument"))
	})
})

var _ = Describe("Manager with a mocked transport", func() {
	var (
		mockCtrl *gomock.Controller
		comm     *MockComm
		m        *Manager
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		comm = NewMockComm(mockCtrl)
		comm.EXPECT().TagUB().Return(transport.DefaultTagUB).AnyTimes()
		comm.EXPECT().Rank().Return(0).AnyTimes()
		comm.EXPECT().Size().Return(2).AnyTimes()

		m = MakeBuilder().WithTagRange(0, 100).Build(comm)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should surface transport errors without consuming a tag", func() {
		h := &transport.Handle{}

		gomock.InOrder(
			comm.EXPECT().
				ISend(gomock.Any(), 1, transport.IntType, 1, 12).
				Return(nil, transport.ErrRank),
			comm.EXPECT().
				ISend(gomock.Any(), 1, transport.IntType, 1, 12).
				Return(h, nil),
		)

		id, err := m.ISend([]int{1}, 1, transport.IntType, 1)
		Expect(err).To(MatchError(transport.ErrRank))
		Expect(id).To(Equal(None))

		id, err = m.ISend([]int{1}, 1, transport.IntType, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(Equal(None))
	})

	It("should resolve the received count on first completion only", func() {
		h := &transport.Handle{}
		comm.EXPECT().
			IRecv(gomock.Any(), 8, transport.Float64Type, 1, 13).
			Return(h, nil)
		comm.EXPECT().
			Wait(h).
			Return(transport.Status{Source: 1, Tag: 13, Count: 5}, nil).
			Times(1)

		id, err := m.IRecv(make([]float64, 8), 8, transport.Float64Type, 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(m.Wait(id)).To(Succeed())
		Expect(m.Wait(id)).To(Succeed())

		info, _ := m.Record(id)
		Expect(info.OutCount).To(Equal(5))
		Expect(info.Source).To(Equal(1))
	})

	It("should propagate a failed barrier", func() {
		comm.EXPECT().Barrier().Return(transport.ErrComm)

		Expect(m.Barrier()).To(MatchError(transport.ErrComm))
	})
})

func bufferOf(dtype transport.Datatype, n int) any {
	switch dtype {
	case transport.TimeMessageType:
		return make([]transport.TimeMessage, n)
	case transport.IntType:
		return make([]int, n)
	default:
		return make([]float64, n)
	}
}
