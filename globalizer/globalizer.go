// Package globalizer sums values that several working ranks contribute for
// the same element and hands the sums back, without a global reduction.
//
// Working ranks own partial values. Each of them declares, per lazy rank,
// which of its local elements correspond to which element of the lazy rank.
// Lazy ranks add up the contributions by element id and return the sums for
// exactly the ids each working rank sent.
//
// A round runs in this order: working ranks SendSumToLazySide, lazy ranks
// RecvFromWorkingSide then SendToWorkingSide, working ranks
// RecvSumFromLazySide. A rank may be on both sides, in which case it calls
// the four steps in that order.
package globalizer

import (
	"fmt"
	"log"
	"slices"

	"github.com/sarchlab/coupling/field"
	"github.com/sarchlab/coupling/request"
	"github.com/sarchlab/coupling/transport"
)

type interest struct {
	localIDs   []int
	distantIDs []int
}

// WorkingSide is the producer role.
type WorkingSide struct {
	manager   *request.Manager
	data      field.Data
	lazyRanks []int
	interests map[int]*interest
}

// NewWorkingSide creates the producer role over the given values. Every
// lazy rank receives a message each round, even when no interest was
// declared for it.
func NewWorkingSide(
	m *request.Manager,
	data field.Data,
	lazyRanks []int,
) *WorkingSide {
	ranksMustBeValid(m, lazyRanks)

	return &WorkingSide{
		manager:   m,
		data:      data,
		lazyRanks: append([]int(nil), lazyRanks...),
		interests: make(map[int]*interest),
	}
}

// AddInterest declares that local element localIDs[i] contributes to element
// distantIDs[i] of the lazy rank.
func (w *WorkingSide) AddInterest(lazyRank int, localIDs, distantIDs []int) {
	if len(localIDs) != len(distantIDs) {
		log.Panicf("%d local ids for %d distant ids",
			len(localIDs), len(distantIDs))
	}

	if !slices.Contains(w.lazyRanks, lazyRank) {
		log.Panicf("rank %d is not a lazy rank", lazyRank)
	}

	in, ok := w.interests[lazyRank]
	if !ok {
		in = &interest{}
		w.interests[lazyRank] = in
	}

	in.localIDs = append(in.localIDs, localIDs...)
	in.distantIDs = append(in.distantIDs, distantIDs...)
}

// NbInterests returns the number of elements declared for the lazy rank.
func (w *WorkingSide) NbInterests(lazyRank int) int {
	in, ok := w.interests[lazyRank]
	if !ok {
		return 0
	}

	return len(in.localIDs)
}

// SendSumToLazySide sends, to every lazy rank, the number of contributions,
// the distant ids and the contributed values.
func (w *WorkingSide) SendSumToLazySide() error {
	ncomp := w.data.NbComponents()
	values := w.data.Values()

	ids := []request.ID{}
	for _, lazy := range w.lazyRanks {
		in := w.interests[lazy]
		if in == nil {
			in = &interest{}
		}

		n := len(in.distantIDs)
		buf := make([]float64, n*ncomp)
		for i, local := range in.localIDs {
			copy(buf[i*ncomp:(i+1)*ncomp],
				values[local*ncomp:(local+1)*ncomp])
		}

		sent, err := w.sendAll(lazy, []int{n}, in.distantIDs, buf)
		ids = append(ids, sent...)
		if err != nil {
			return fmt.Errorf("sending to lazy rank %d: %w", lazy, err)
		}
	}

	if err := w.manager.WaitAll(ids); err != nil {
		return err
	}

	return w.manager.DeleteRequests(ids)
}

func (w *WorkingSide) sendAll(
	peer int,
	count, distantIDs []int,
	values []float64,
) ([]request.ID, error) {
	ids := make([]request.ID, 0, 3)

	id, err := w.manager.ISend(count, 1, transport.IntType, peer)
	if err != nil {
		return ids, err
	}
	ids = append(ids, id)

	id, err = w.manager.ISend(
		distantIDs, len(distantIDs), transport.IntType, peer)
	if err != nil {
		return ids, err
	}
	ids = append(ids, id)

	id, err = w.manager.ISend(values, len(values), transport.Float64Type, peer)
	if err != nil {
		return ids, err
	}
	ids = append(ids, id)

	return ids, nil
}

// RecvSumFromLazySide receives the sums for the ids sent to every lazy rank
// and writes them at the corresponding local elements.
func (w *WorkingSide) RecvSumFromLazySide() error {
	ncomp := w.data.NbComponents()
	values := w.data.Values()

	for _, lazy := range w.lazyRanks {
		in := w.interests[lazy]
		if in == nil {
			continue
		}

		buf := make([]float64, len(in.localIDs)*ncomp)
		_, _, err := w.manager.Recv(buf, len(buf), transport.Float64Type, lazy)
		if err != nil {
			return fmt.Errorf("receiving from lazy rank %d: %w", lazy, err)
		}

		for i, local := range in.localIDs {
			copy(values[local*ncomp:(local+1)*ncomp],
				buf[i*ncomp:(i+1)*ncomp])
		}
	}

	return nil
}

// LazySide is the consumer role.
type LazySide struct {
	manager      *request.Manager
	workingRanks []int
	nbComponents int
	valuesAdded  []float64
	receivedIDs  map[int][]int
}

// NewLazySide creates the consumer role for nbElements elements of
// nbComponents values each.
func NewLazySide(
	m *request.Manager,
	workingRanks []int,
	nbElements, nbComponents int,
) *LazySide {
	ranksMustBeValid(m, workingRanks)

	if nbElements < 0 || nbComponents <= 0 {
		log.Panicf("invalid lazy side shape %dx%d", nbElements, nbComponents)
	}

	return &LazySide{
		manager:      m,
		workingRanks: append([]int(nil), workingRanks...),
		nbComponents: nbComponents,
		valuesAdded:  make([]float64, nbElements*nbComponents),
		receivedIDs:  make(map[int][]int),
	}
}

// ValuesAdded returns the accumulated sums indexed by element id times the
// number of components.
func (l *LazySide) ValuesAdded() []float64 {
	return l.valuesAdded
}

// Reset zeroes the accumulated sums.
func (l *LazySide) Reset() {
	clear(l.valuesAdded)
}

// RecvFromWorkingSide receives the contributions of every working rank and
// adds them to the values of their element ids.
func (l *LazySide) RecvFromWorkingSide() error {
	ncomp := l.nbComponents

	for _, working := range l.workingRanks {
		count := make([]int, 1)
		_, _, err := l.manager.Recv(count, 1, transport.IntType, working)
		if err != nil {
			return fmt.Errorf("receiving count from working rank %d: %w",
				working, err)
		}

		n := count[0]
		ids := make([]int, n)
		_, _, err = l.manager.Recv(ids, n, transport.IntType, working)
		if err != nil {
			return fmt.Errorf("receiving ids from working rank %d: %w",
				working, err)
		}

		buf := make([]float64, n*ncomp)
		_, _, err = l.manager.Recv(buf, len(buf), transport.Float64Type, working)
		if err != nil {
			return fmt.Errorf("receiving values from working rank %d: %w",
				working, err)
		}

		for i, id := range ids {
			if id < 0 || (id+1)*ncomp > len(l.valuesAdded) {
				return fmt.Errorf("working rank %d sent element %d out of %d",
					working, id, len(l.valuesAdded)/ncomp)
			}

			for c := 0; c < ncomp; c++ {
				l.valuesAdded[id*ncomp+c] += buf[i*ncomp+c]
			}
		}

		l.receivedIDs[working] = append(l.receivedIDs[working], ids...)
	}

	return nil
}

// SendToWorkingSide sends back, to every working rank, the sums of the ids it
// sent, then forgets those ids.
func (l *LazySide) SendToWorkingSide() error {
	ncomp := l.nbComponents

	ids := []request.ID{}
	for _, working := range l.workingRanks {
		received := l.receivedIDs[working]
		if len(received) == 0 {
			continue
		}

		buf := make([]float64, len(received)*ncomp)
		for i, id := range received {
			copy(buf[i*ncomp:(i+1)*ncomp],
				l.valuesAdded[id*ncomp:(id+1)*ncomp])
		}

		id, err := l.manager.ISend(
			buf, len(buf), transport.Float64Type, working)
		if err != nil {
			return fmt.Errorf("sending to working rank %d: %w", working, err)
		}
		ids = append(ids, id)

		delete(l.receivedIDs, working)
	}

	if err := l.manager.WaitAll(ids); err != nil {
		return err
	}

	return l.manager.DeleteRequests(ids)
}

func ranksMustBeValid(m *request.Manager, ranks []int) {
	if m == nil {
		panic("a request manager is required")
	}

	for _, r := range ranks {
		if r < 0 || r >= m.Size() {
			log.Panicf("rank %d out of communicator of size %d", r, m.Size())
		}
	}
}
