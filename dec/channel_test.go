package dec

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coupling/field"
	"github.com/sarchlab/coupling/group"
	"github.com/sarchlab/coupling/hooking"
	"github.com/sarchlab/coupling/request"
	"github.com/sarchlab/coupling/topology"
	"github.com/sarchlab/coupling/transport"
)

const (
	nbGlobal     = 10
	nbComponents = 2
)

// setup builds, on the calling rank, a channel from ranks [0, 1] to ranks
// [2, 4]. Rank 5, if present, belongs to neither group. Target ranks number
// their elements in reverse order.
func setup(comm transport.Comm, b Builder) (*Channel, *field.Field) {
	source := group.Range(comm, 0, 1)
	target := group.Range(comm, 2, 4)

	c := b.WithSourceGroup(source).WithTargetGroup(target).Build()

	var ids []int
	var g *group.Group
	switch {
	case source.ContainsMyRank():
		g = source
		ids = topology.BlockPartition(nbGlobal, source.Size(), source.MyRank())
	case target.ContainsMyRank():
		g = target
		ids = topology.BlockPartition(nbGlobal, target.Size(), target.MyRank())
		slices.Reverse(ids)
	default:
		return c, nil
	}

	topo := topology.NewExplicit(g, ids, nbComponents)
	f := field.New("f", topo)
	c.AttachLocalField(f)

	return c, f
}

func valueOf(global, comp int) float64 {
	return float64(global*10 + comp)
}

func fillSource(f *field.Field) {
	for i := 0; i < f.Topology.NbLocalElements(); i++ {
		g := f.Topology.LocalToGlobal(i)
		f.Data().SetTuple(i, []float64{valueOf(g, 0), valueOf(g, 1)})
	}
}

func checkValues(f *field.Field, offset float64) error {
	for i := 0; i < f.Topology.NbLocalElements(); i++ {
		g := f.Topology.LocalToGlobal(i)
		want := []float64{valueOf(g, 0) + offset, valueOf(g, 1) + offset}

		if !slices.Equal(f.Data().Tuple(i), want) {
			return fmt.Errorf("element %d holds %v, want %v",
				g, f.Data().Tuple(i), want)
		}
	}

	return nil
}

func sum(counts []int) int {
	s := 0
	for _, c := range counts {
		s += c
	}

	return s
}

var _ = Describe("Channel", func() {
	It("should panic on overlapping groups", func() {
		comm := transport.NewLocalWorld(3).Comm(0)

		Expect(func() {
			MakeBuilder().
				WithSourceGroup(group.Range(comm, 0, 1)).
				WithTargetGroup(group.Range(comm, 1, 2)).
				Build()
		}).To(Panic())
	})

	It("should panic without groups", func() {
		Expect(func() { MakeBuilder().Build() }).To(Panic())
	})

	It("should panic on out of range candidates", func() {
		comm := transport.NewLocalWorld(3).Comm(0)

		Expect(func() {
			MakeBuilder().
				WithSourceGroup(group.Range(comm, 0, 0)).
				WithTargetGroup(group.Range(comm, 1, 2)).
				WithCandidateSources(1).
				Build()
		}).To(Panic())
	})

	It("should refuse transfers before synchronization", func() {
		err := transport.NewLocalWorld(5).Run(func(comm transport.Comm) error {
			c, _ := setup(comm, MakeBuilder())

			if c.State() != Unsynchronized {
				return fmt.Errorf("unexpected state %s", c.State())
			}

			var err error
			if c.IsInSourceSide() {
				err = c.SendData()
			} else {
				err = c.RecvData()
			}

			if !errors.Is(err, ErrNotSynchronized) {
				return fmt.Errorf("got %v", err)
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should require a field", func() {
		err := transport.NewLocalWorld(2).Run(func(comm transport.Comm) error {
			c := MakeBuilder().
				WithSourceGroup(group.Range(comm, 0, 0)).
				WithTargetGroup(group.Range(comm, 1, 1)).
				Build()

			if err := c.Synchronize(); !errors.Is(err, ErrNoField) {
				return fmt.Errorf("got %v", err)
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should conserve counts and move values", func() {
		err := transport.NewLocalWorld(6).Run(func(comm transport.Comm) error {
			c, f := setup(comm, MakeBuilder().
				WithRequestManagerBuilder(request.MakeBuilder().
					WithTagRange(0, 1000)))

			if err := c.Synchronize(); err != nil {
				return err
			}

			if !c.IsInUnion() {
				if c.Manager() != nil || c.SendData() != nil ||
					c.RecvData() != nil || c.PrepareSourceDE() != nil {
					return fmt.Errorf("outsider took part")
				}

				return nil
			}

			if c.State() != Synchronized || c.NbUnmatched() != 0 {
				return fmt.Errorf("state %s, %d unmatched",
					c.State(), c.NbUnmatched())
			}

			local := f.Topology.NbLocalElements() * nbComponents

			if c.IsInSourceSide() {
				if err := c.PrepareSourceDE(); err != nil {
					return err
				}

				if sum(c.SendCounts()) != local || sum(c.RecvCounts()) != 0 {
					return fmt.Errorf("source counts %v for %d values",
						c.SendCounts(), local)
				}

				fillSource(f)

				return c.SendData()
			}

			if err := c.PrepareTargetDE(); err != nil {
				return err
			}

			if sum(c.RecvCounts()) != local || sum(c.SendCounts()) != 0 {
				return fmt.Errorf("target counts %v for %d values",
					c.RecvCounts(), local)
			}

			if err := c.RecvData(); err != nil {
				return err
			}

			if c.State() != Receiving || c.Round() != 1 {
				return fmt.Errorf("state %s, round %d", c.State(), c.Round())
			}

			return checkValues(f, 0)
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should send values back in reverse", func() {
		err := transport.NewLocalWorld(5).Run(func(comm transport.Comm) error {
			c, f := setup(comm, MakeBuilder())

			if err := c.Synchronize(); err != nil {
				return err
			}

			if c.IsInSourceSide() {
				fillSource(f)
			}

			if err := c.SendRecvData(true); err != nil {
				return err
			}

			if c.IsInTargetSide() {
				for i, v := range f.Data().Values() {
					f.Data().Values()[i] = v + 1
				}
			}

			if err := c.SendRecvData(false); err != nil {
				return err
			}

			return checkValues(f, 1)
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should stamp transfers with the source time", func() {
		err := transport.NewLocalWorld(5).Run(func(comm transport.Comm) error {
			c, f := setup(comm, MakeBuilder().WithTimeStamps())
			f.Discretization.Kind = field.OneTime
			f.Discretization.StartTime = 0.5

			if err := c.Synchronize(); err != nil {
				return err
			}

			for round := 0; round < 2; round++ {
				if err := c.SendRecvData(true); err != nil {
					return err
				}
			}

			if !c.IsInTargetSide() {
				return nil
			}

			msgs := c.LastTimeMessages()
			want := transport.TimeMessage{Time: 0.5, Tag: 1}
			if len(msgs) != 2 || msgs[0] != want || msgs[1] != want {
				return fmt.Errorf("unexpected time messages %v", msgs)
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should re-prepare when the field shape changes", func() {
		err := transport.NewLocalWorld(5).Run(func(comm transport.Comm) error {
			c, f := setup(comm, MakeBuilder())

			if err := c.Synchronize(); err != nil {
				return err
			}

			if err := c.SendRecvData(true); err != nil {
				return err
			}

			f.Discretization.StartArray = field.NewArray(
				f.Topology.NbLocalElements(), 1)
			if c.IsInSourceSide() {
				f.Data().Fill(3)
			}

			if err := c.SendRecvData(true); err != nil {
				return err
			}

			want := f.Topology.NbLocalElements()
			if c.IsInSourceSide() && sum(c.SendCounts()) != want {
				return fmt.Errorf("send counts %v", c.SendCounts())
			}

			if c.IsInTargetSide() {
				if sum(c.RecvCounts()) != want {
					return fmt.Errorf("recv counts %v", c.RecvCounts())
				}

				for _, v := range f.Data().Values() {
					if v != 3 {
						return fmt.Errorf("unexpected values %v",
							f.Data().Values())
					}
				}
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should search only the candidate sources", func() {
		err := transport.NewLocalWorld(5).Run(func(comm transport.Comm) error {
			c, _ := setup(comm, MakeBuilder().WithCandidateSources(0))

			if err := c.Synchronize(); err != nil {
				return err
			}

			if !c.IsInTargetSide() {
				return nil
			}

			m := c.Mapping()
			for k := 0; k < m.NbElements(); k++ {
				if m.DistantNumbering(k).Rank != 0 {
					return fmt.Errorf("entry %d points to %v",
						k, m.DistantNumbering(k))
				}
			}

			// Source rank 0 holds the first half of the elements.
			topo := c.LocalField().Topology
			holds := 0
			for i := 0; i < topo.NbLocalElements(); i++ {
				if topo.LocalToGlobal(i) < nbGlobal/2 {
					holds++
				}
			}

			if m.NbElements() != holds ||
				c.NbUnmatched() != topo.NbLocalElements()-holds {
				return fmt.Errorf("%d entries, %d unmatched",
					m.NbElements(), c.NbUnmatched())
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should report the wrong side", func() {
		err := transport.NewLocalWorld(5).Run(func(comm transport.Comm) error {
			c, _ := setup(comm, MakeBuilder())

			if err := c.Synchronize(); err != nil {
				return err
			}

			if c.IsInSourceSide() {
				if !errors.Is(c.RecvData(), ErrWrongSide) ||
					!errors.Is(c.PrepareTargetDE(), ErrWrongSide) {
					return fmt.Errorf("source accepted a target call")
				}

				return nil
			}

			if !errors.Is(c.SendData(), ErrWrongSide) {
				return fmt.Errorf("target accepted a source call")
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Channel hooks", func() {
	It("should report synchronization and rounds", func() {
		var (
			lock  sync.Mutex
			infos []Info
		)

		hook := hooking.HookFunc(func(ctx hooking.HookCtx) {
			lock.Lock()
			defer lock.Unlock()

			info := ctx.Item.(Info)
			if info.Rank == 2 {
				infos = append(infos, info)
			}
		})

		err := transport.NewLocalWorld(5).Run(func(comm transport.Comm) error {
			c, f := setup(comm, MakeBuilder().WithName("Heat"))
			c.AcceptHook(hook)

			if err := c.Synchronize(); err != nil {
				return err
			}

			if c.IsInSourceSide() {
				fillSource(f)
			}

			return c.SendRecvData(true)
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(infos).To(Equal([]Info{
			{Name: "Heat", Rank: 2, Side: "target", State: Synchronized},
			{Name: "Heat", Rank: 2, Side: "target", State: Receiving, Round: 1},
		}))
	})
})

var _ = Describe("State", func() {
	It("should print", func() {
		Expect(Sending.String()).To(Equal("Sending"))
		Expect(State(9).String()).To(Equal("State(9)"))
	})
})
