package topology

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coupling/group"
	"github.com/sarchlab/coupling/transport"
)

var _ = Describe("Explicit", func() {
	var g *group.Group

	BeforeEach(func() {
		g = group.Range(transport.NewLocalWorld(2).Comm(0), 0, 1)
	})

	It("should look up ids both ways", func() {
		t := NewExplicit(g, []int{7, 3, 9}, 2)

		Expect(t.NbLocalElements()).To(Equal(3))
		Expect(t.NbComponents()).To(Equal(2))
		Expect(t.LocalToGlobal(1)).To(Equal(3))
		Expect(t.GlobalToLocal(9)).To(Equal(2))
		Expect(t.GlobalToLocal(4)).To(Equal(-1))
		Expect(t.ProcGroup()).To(BeIdenticalTo(g))
	})

	It("should panic on duplicated ids", func() {
		Expect(func() { NewExplicit(g, []int{1, 1}, 1) }).To(Panic())
		Expect(func() { NewExplicit(g, []int{1}, 0) }).To(Panic())
	})

	It("should round trip", func() {
		buf := NewExplicit(g, []int{7, 3, 9}, 2).Serialize()
		Expect(buf).To(Equal([]int{3, 2, 7, 3, 9}))

		t, err := Unserialize(buf, g)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.GlobalToLocal(3)).To(Equal(1))
		Expect(t.NbComponents()).To(Equal(2))
	})

	It("should reject malformed buffers", func() {
		_, err := Unserialize([]int{1}, g)
		Expect(err).To(MatchError(ErrMalformed))

		_, err = Unserialize([]int{3, 1, 0, 1}, g)
		Expect(err).To(MatchError(ErrMalformed))

		_, err = Unserialize([]int{2, 1, 5, 5}, g)
		Expect(err).To(MatchError(ErrMalformed))
	})
})

var _ = Describe("BlockPartition", func() {
	It("should cover every element once", func() {
		all := []int{}
		for part := 0; part < 3; part++ {
			all = append(all, BlockPartition(10, 3, part)...)
		}

		Expect(all).To(Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}))
		Expect(BlockPartition(10, 3, 0)).To(HaveLen(4))
		Expect(BlockPartition(10, 3, 2)).To(Equal([]int{7, 8, 9}))
	})

	It("should allow empty parts", func() {
		Expect(BlockPartition(1, 2, 1)).To(BeEmpty())
	})

	It("should panic on invalid parts", func() {
		Expect(func() { BlockPartition(4, 2, 2) }).To(Panic())
	})
})
