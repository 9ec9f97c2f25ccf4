// Package mapping provides the table that links local element indices to
// elements owned by other ranks.
package mapping

import (
	"fmt"
	"log"
	"sort"
)

// A Pair locates an element on a remote rank.
type Pair struct {
	Rank  int
	Index int
}

func (p Pair) String() string {
	return fmt.Sprintf("(%d,%d)", p.Rank, p.Index)
}

// Explicit maps each local element index to a Pair. Entry i describes local
// element i.
//
// The distant domains, the distinct remote ranks that appear in the entries,
// are derived lazily and cached until the next mutation.
type Explicit struct {
	entries []Pair

	domainsValid bool
	domains      []int
	domainCounts []int
}

// NewExplicit creates an empty mapping.
func NewExplicit() *Explicit {
	return &Explicit{}
}

// PushBackElem appends an entry for the next local element.
func (m *Explicit) PushBackElem(p Pair) {
	m.entries = append(m.entries, p)
	m.domainsValid = false
}

// SetDistantElem overwrites entry i.
func (m *Explicit) SetDistantElem(i int, p Pair) {
	if i < 0 || i >= len(m.entries) {
		log.Panicf("entry %d out of mapping of %d elements", i, len(m.entries))
	}

	m.entries[i] = p
	m.domainsValid = false
}

// DistantNumbering returns entry i.
func (m *Explicit) DistantNumbering(i int) Pair {
	return m.entries[i]
}

// NbElements returns the number of entries.
func (m *Explicit) NbElements() int {
	return len(m.entries)
}

// NbDistantDomains returns the number of distinct remote ranks.
func (m *Explicit) NbDistantDomains() int {
	m.computeDomains()
	return len(m.domains)
}

// DistantDomain returns the rank of the i-th distant domain.
func (m *Explicit) DistantDomain(i int) int {
	m.computeDomains()
	return m.domains[i]
}

// NbDistantElems returns the number of entries that point to the i-th
// distant domain.
func (m *Explicit) NbDistantElems(i int) int {
	m.computeDomains()
	return m.domainCounts[i]
}

func (m *Explicit) computeDomains() {
	if m.domainsValid {
		return
	}

	counts := make(map[int]int)
	for _, p := range m.entries {
		counts[p.Rank]++
	}

	m.domains = make([]int, 0, len(counts))
	for rank := range counts {
		m.domains = append(m.domains, rank)
	}
	sort.Ints(m.domains)

	m.domainCounts = make([]int, len(m.domains))
	for i, rank := range m.domains {
		m.domainCounts[i] = counts[rank]
	}

	m.domainsValid = true
}

// Counts returns, for every rank below nbProcs, the number of entries that
// point to it.
func (m *Explicit) Counts(nbProcs int) []int {
	counts := make([]int, nbProcs)
	for _, p := range m.entries {
		rankMustBeInRange(p.Rank, nbProcs)
		counts[p.Rank]++
	}

	return counts
}

// BufferIndex returns the local indices in the order Serialize emits them:
// grouped by remote rank in ascending order, and in local order within a
// group.
func (m *Explicit) BufferIndex() []int {
	order := make([]int, len(m.entries))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return m.entries[order[a]].Rank < m.entries[order[b]].Rank
	})

	return order
}

// Serialize flattens the entries for transmission to the ranks they point
// to. For each destination rank it emits one (selfRank, remoteIndex) word
// pair per entry. sizes[r] is the number of pairs destined to rank r and the
// groups appear in buf in ascending rank order.
func (m *Explicit) Serialize(selfRank, nbProcs int) (sizes []int, buf []int) {
	sizes = m.Counts(nbProcs)
	buf = make([]int, 0, 2*len(m.entries))

	for _, i := range m.BufferIndex() {
		buf = append(buf, selfRank, m.entries[i].Index)
	}

	return sizes, buf
}

// Unserialize replaces the entries with the ones carried by buf. sizes[i] is
// the number of word pairs received from rank i, and the groups appear in buf
// in rank order. Each entry points to the rank it came from and to the
// index carried in the second word of its pair.
//
// targetRanks lists the ranks that may have sent data, in the order the
// distant domains should be reported. A nil list means every rank in
// ascending order.
func (m *Explicit) Unserialize(sizes []int, targetRanks []int, buf []int) {
	total := 0
	for _, s := range sizes {
		total += s
	}

	if len(buf) < 2*total {
		log.Panicf("mapping buffer holds %d words, %d needed",
			len(buf), 2*total)
	}

	m.entries = make([]Pair, 0, total)

	offset := 0
	for rank, s := range sizes {
		for k := 0; k < s; k++ {
			m.entries = append(m.entries, Pair{
				Rank:  rank,
				Index: buf[offset+2*k+1],
			})
		}
		offset += 2 * s
	}

	if targetRanks == nil {
		targetRanks = make([]int, len(sizes))
		for i := range targetRanks {
			targetRanks[i] = i
		}
	}

	m.domains = m.domains[:0]
	m.domainCounts = m.domainCounts[:0]
	for _, rank := range targetRanks {
		rankMustBeInRange(rank, len(sizes))

		if sizes[rank] > 0 {
			m.domains = append(m.domains, rank)
			m.domainCounts = append(m.domainCounts, sizes[rank])
		}
	}
	m.domainsValid = true
}

// String lists the entries.
func (m *Explicit) String() string {
	return fmt.Sprintf("%v", m.entries)
}

func rankMustBeInRange(rank, nbProcs int) {
	if rank < 0 || rank >= nbProcs {
		log.Panicf("rank %d out of range [0, %d)", rank, nbProcs)
	}
}
