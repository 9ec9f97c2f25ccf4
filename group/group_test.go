package group

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coupling/transport"
)

var _ = Describe("Group", func() {
	var (
		world  *transport.LocalWorld
		comm   transport.Comm
		source *Group
		target *Group
	)

	BeforeEach(func() {
		world = transport.NewLocalWorld(5)
		comm = world.Comm(3)
		source = New(comm, 2, 0, 1, 0)
		target = Range(comm, 3, 4)
	})

	It("should keep sorted unique ranks", func() {
		Expect(source.Size()).To(Equal(3))
		Expect(source.Ranks()).To(Equal([]int{0, 1, 2}))
		Expect(source.Contains(2)).To(BeTrue())
		Expect(source.Contains(3)).To(BeFalse())
		Expect(source.String()).To(Equal("{0,1,2}"))
	})

	It("should locate the calling process", func() {
		Expect(source.ContainsMyRank()).To(BeFalse())
		Expect(source.MyRank()).To(Equal(-1))
		Expect(target.ContainsMyRank()).To(BeTrue())
		Expect(target.MyRank()).To(Equal(0))
	})

	It("should translate ranks", func() {
		union := source.Fuse(target)

		Expect(union.Ranks()).To(Equal([]int{0, 1, 2, 3, 4}))
		Expect(union.TranslateRank(target, 1)).To(Equal(4))
		Expect(target.TranslateRank(union, 3)).To(Equal(0))
		Expect(source.TranslateRank(target, 0)).To(Equal(-1))
	})

	It("should compute complement and intersection", func() {
		Expect(source.Complement().Ranks()).To(Equal([]int{3, 4}))
		Expect(source.Intersects(target)).To(BeFalse())
		Expect(source.Intersects(New(comm, 2, 3))).To(BeTrue())
	})

	It("should panic on ranks outside the parent", func() {
		Expect(func() { New(comm, 5) }).To(Panic())
		Expect(func() { New(nil, 0) }).To(Panic())
	})

	It("should panic when mixing communicators", func() {
		other := New(world.Comm(0), 0)
		Expect(func() { source.Fuse(other) }).To(Panic())
	})

	It("should refuse a communicator to non-members", func() {
		_, err := source.Comm()
		Expect(err).To(MatchError(transport.ErrComm))
	})

	It("should share the communicator between equal groups", func() {
		err := world.Run(func(comm transport.Comm) error {
			src := Range(comm, 0, 2)
			tgt := Range(comm, 3, 4)
			union := src.Fuse(tgt)

			first, err := union.Comm()
			if err != nil {
				return err
			}

			again, err := tgt.Fuse(src).Comm()
			if err != nil {
				return err
			}

			if first != again {
				return fmt.Errorf("communicator not shared")
			}

			if first.Rank() != comm.Rank() || first.Size() != 5 {
				return fmt.Errorf("unexpected rank %d/%d",
					first.Rank(), first.Size())
			}

			if !tgt.ContainsMyRank() {
				return nil
			}

			sub, err := tgt.Comm()
			if err != nil {
				return err
			}

			return sub.Barrier()
		})

		Expect(err).NotTo(HaveOccurred())
	})
})
