package request

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coupling/transport"
)

var _ = Describe("Tags", func() {
	It("should wrap to the base tag after the max tag", func() {
		prev := 0
		for i := 1; i <= 10; i++ {
			prev = nextTag(prev, 0, 100)
			Expect(prev).To(Equal(i * 10))
		}

		Expect(nextTag(prev, 0, 100)).To(Equal(0))
	})

	It("should ignore the discriminator of the previous tag", func() {
		Expect(nextTag(23, 0, 100)).To(Equal(30))
		Expect(nextTag(103, 0, 1000)).To(Equal(110))
	})

	It("should give identical sequences to identically seeded counters", func() {
		sender := newTagCounter(0, 100)
		receiver := newTagCounter(0, 100)
		types := []transport.Datatype{
			transport.IntType,
			transport.Float64Type,
			transport.TimeMessageType,
		}

		for i := 0; i < 25; i++ {
			dtype := types[i%len(types)]
			Expect(sender.peek(3, dtype)).To(Equal(receiver.peek(3, dtype)))
			sender.advance(3)
			receiver.advance(3)
		}
	})

	It("should keep counters independent per peer", func() {
		c := newTagCounter(0, 100)
		c.advance(1)
		c.advance(1)

		Expect(c.peek(1, transport.IntType)).To(Equal(32))
		Expect(c.peek(2, transport.IntType)).To(Equal(12))
	})

	It("should decode the payload type of a tag", func() {
		Expect(DatatypeOfTag(41)).To(Equal(transport.TimeMessageType))
		Expect(DatatypeOfTag(42)).To(Equal(transport.IntType))
		Expect(DatatypeOfTag(43)).To(Equal(transport.Float64Type))
		Expect(DatatypeOfTag(40)).To(Equal(transport.UnknownType))
	})
})
