package request

import "github.com/sarchlab/coupling/transport"

// TagModulo is the number of low-order tag values reserved for the payload
// discriminator. A wire tag is seq*TagModulo + discriminator.
const TagModulo = 10

// Payload discriminators stored in the low-order digit of a tag.
const (
	unknownTagCode = iota
	timeMessageTagCode
	intTagCode
	float64TagCode
)

func tagCode(dtype transport.Datatype) int {
	switch dtype {
	case transport.TimeMessageType:
		return timeMessageTagCode
	case transport.IntType:
		return intTagCode
	case transport.Float64Type:
		return float64TagCode
	default:
		return unknownTagCode
	}
}

// DatatypeOfTag decodes the payload datatype carried in the low-order digit
// of a wire tag. Tags with an unknown discriminator map to UnknownType.
func DatatypeOfTag(tag int) transport.Datatype {
	switch tag % TagModulo {
	case timeMessageTagCode:
		return transport.TimeMessageType
	case intTagCode:
		return transport.IntType
	case float64TagCode:
		return transport.Float64Type
	default:
		return transport.UnknownType
	}
}

// nextTag advances a (peer, direction) tag counter. The result carries no
// discriminator; it wraps to baseTag once it exceeds maxTag.
func nextTag(prev, baseTag, maxTag int) int {
	next := ((prev / TagModulo) + 1) * TagModulo
	if next > maxTag {
		next = baseTag
	}

	return next
}

// tagCounter holds the last sequence value used per peer for one direction.
type tagCounter struct {
	baseTag, maxTag int
	last            map[int]int
}

func newTagCounter(baseTag, maxTag int) *tagCounter {
	return &tagCounter{
		baseTag: baseTag,
		maxTag:  maxTag,
		last:    make(map[int]int),
	}
}

func (c *tagCounter) current(peer int) int {
	seq, ok := c.last[peer]
	if !ok {
		return c.baseTag
	}

	return seq
}

// peek returns the tag the next call to advance would commit.
func (c *tagCounter) peek(peer int, dtype transport.Datatype) int {
	return nextTag(c.current(peer), c.baseTag, c.maxTag) + tagCode(dtype)
}

func (c *tagCounter) advance(peer int) {
	c.last[peer] = nextTag(c.current(peer), c.baseTag, c.maxTag)
}

func (c *tagCounter) restore(peer, seq int) {
	c.last[peer] = seq
}
