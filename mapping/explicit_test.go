package mapping

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Explicit", func() {
	var m *Explicit

	BeforeEach(func() {
		m = NewExplicit()
		m.PushBackElem(Pair{Rank: 1, Index: 5})
		m.PushBackElem(Pair{Rank: 1, Index: 6})
		m.PushBackElem(Pair{Rank: 2, Index: 0})
	})

	It("should derive distant domains", func() {
		Expect(m.NbElements()).To(Equal(3))
		Expect(m.NbDistantDomains()).To(Equal(2))
		Expect(m.DistantDomain(0)).To(Equal(1))
		Expect(m.NbDistantElems(0)).To(Equal(2))
		Expect(m.DistantDomain(1)).To(Equal(2))
		Expect(m.NbDistantElems(1)).To(Equal(1))
	})

	It("should invalidate the domains on mutation", func() {
		Expect(m.NbDistantDomains()).To(Equal(2))

		m.SetDistantElem(2, Pair{Rank: 1, Index: 7})
		Expect(m.NbDistantDomains()).To(Equal(1))
		Expect(m.DistantNumbering(2)).To(Equal(Pair{Rank: 1, Index: 7}))

		m.PushBackElem(Pair{Rank: 0, Index: 3})
		Expect(m.NbDistantDomains()).To(Equal(2))
		Expect(m.DistantDomain(0)).To(Equal(0))
	})

	It("should panic when overwriting a missing entry", func() {
		Expect(func() { m.SetDistantElem(3, Pair{}) }).To(Panic())
	})

	It("should serialize grouped by destination", func() {
		m.PushBackElem(Pair{Rank: 0, Index: 9})

		sizes, buf := m.Serialize(4, 3)

		Expect(sizes).To(Equal([]int{1, 2, 1}))
		Expect(buf).To(Equal([]int{4, 9, 4, 5, 4, 6, 4, 0}))
		Expect(m.BufferIndex()).To(Equal([]int{3, 0, 1, 2}))
		Expect(m.Counts(3)).To(Equal([]int{1, 2, 1}))
	})

	It("should panic when serializing for too few ranks", func() {
		Expect(func() { m.Serialize(0, 2) }).To(Panic())
	})

	It("should round trip", func() {
		sizes, buf := m.Serialize(0, 3)

		back := NewExplicit()
		back.Unserialize(sizes, nil, buf)

		entries := []Pair{}
		for i := 0; i < back.NbElements(); i++ {
			entries = append(entries, back.DistantNumbering(i))
		}

		Expect(entries).To(ConsistOf(
			Pair{Rank: 1, Index: 5},
			Pair{Rank: 1, Index: 6},
			Pair{Rank: 2, Index: 0},
		))
		Expect(back.NbDistantDomains()).To(Equal(2))
	})

	It("should report domains in the given rank order", func() {
		back := NewExplicit()
		back.Unserialize(
			[]int{1, 0, 2},
			[]int{2, 1, 0},
			[]int{7, 10, 8, 20, 8, 21},
		)

		Expect(back.NbElements()).To(Equal(3))
		Expect(back.DistantNumbering(0)).To(Equal(Pair{Rank: 0, Index: 10}))
		Expect(back.DistantNumbering(2)).To(Equal(Pair{Rank: 2, Index: 21}))
		Expect(back.NbDistantDomains()).To(Equal(2))
		Expect(back.DistantDomain(0)).To(Equal(2))
		Expect(back.NbDistantElems(0)).To(Equal(2))
		Expect(back.DistantDomain(1)).To(Equal(0))
	})

	It("should panic on a short buffer", func() {
		back := NewExplicit()
		Expect(func() {
			back.Unserialize([]int{2}, nil, []int{0, 1})
		}).To(Panic())
	})
})
