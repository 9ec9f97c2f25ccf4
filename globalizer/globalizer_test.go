package globalizer

import (
	"fmt"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coupling/field"
	"github.com/sarchlab/coupling/request"
	"github.com/sarchlab/coupling/transport"
)

var _ = Describe("Globalizer", func() {
	It("should sum shared elements and hand the sums back", func() {
		lazyValues := make([]float64, 0)

		err := transport.NewLocalWorld(3).Run(func(comm transport.Comm) error {
			m := request.MakeBuilder().Build(comm)

			if comm.Rank() == 2 {
				l := NewLazySide(m, []int{0, 1}, 50, 1)

				if err := l.RecvFromWorkingSide(); err != nil {
					return err
				}
				lazyValues = append(lazyValues, l.ValuesAdded()[42])

				return l.SendToWorkingSide()
			}

			partial := []float64{3, 100}
			if comm.Rank() == 1 {
				partial = []float64{-1, 4}
			}

			local := 0
			if comm.Rank() == 1 {
				local = 1
			}

			data := field.NewArrayFromValues(partial, 1)
			w := NewWorkingSide(m, data, []int{2})
			w.AddInterest(2, []int{local}, []int{42})

			if err := w.SendSumToLazySide(); err != nil {
				return err
			}

			if err := w.RecvSumFromLazySide(); err != nil {
				return err
			}

			if data.Values()[local] != 7 {
				return fmt.Errorf("rank %d got %v", comm.Rank(), data.Values())
			}

			if m.NbRequests() != 0 {
				return fmt.Errorf("rank %d leaked requests", comm.Rank())
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(lazyValues).To(Equal([]float64{7}))
	})

	It("should let a rank work and gather at once", func() {
		err := transport.NewLocalWorld(2).Run(func(comm transport.Comm) error {
			m := request.MakeBuilder().Build(comm)
			rank := comm.Rank()

			// Tuple 0 is shared through element 1 of rank 0. Tuple 1 of
			// rank 1 is element 0 of rank 1 alone.
			data := field.NewArrayFromValues([]float64{1, 10, 0, 0}, 2)
			if rank == 1 {
				data = field.NewArrayFromValues([]float64{2, 20, 5, 50}, 2)
			}

			w := NewWorkingSide(m, data, []int{0, 1})
			w.AddInterest(0, []int{0}, []int{1})
			if rank == 1 {
				w.AddInterest(1, []int{1}, []int{0})
			}

			l := NewLazySide(m, []int{0, 1}, 2, 2)

			if err := w.SendSumToLazySide(); err != nil {
				return err
			}

			if err := l.RecvFromWorkingSide(); err != nil {
				return err
			}

			if err := l.SendToWorkingSide(); err != nil {
				return err
			}

			if err := w.RecvSumFromLazySide(); err != nil {
				return err
			}

			want := []float64{3, 30, 0, 0}
			if rank == 1 {
				want = []float64{3, 30, 5, 50}
			}

			if !slices.Equal(data.Values(), want) {
				return fmt.Errorf("rank %d got %v", rank, data.Values())
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject ids outside the lazy array", func() {
		err := transport.NewLocalWorld(2).Run(func(comm transport.Comm) error {
			m := request.MakeBuilder().Build(comm)

			if comm.Rank() == 0 {
				w := NewWorkingSide(m, field.NewArray(1, 1), []int{1})
				w.AddInterest(1, []int{0}, []int{5})

				return w.SendSumToLazySide()
			}

			l := NewLazySide(m, []int{0}, 5, 1)
			if err := l.RecvFromWorkingSide(); err == nil {
				return fmt.Errorf("out of range id accepted")
			}

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should panic on misuse", func() {
		m := request.MakeBuilder().Build(transport.NewLocalWorld(2).Comm(0))
		w := NewWorkingSide(m, field.NewArray(2, 1), []int{1})

		Expect(func() { w.AddInterest(0, []int{0}, []int{0}) }).To(Panic())
		Expect(func() { w.AddInterest(1, []int{0, 1}, []int{0}) }).To(Panic())
		Expect(func() { NewLazySide(m, []int{2}, 1, 1) }).To(Panic())
		Expect(func() { NewWorkingSide(nil, nil, nil) }).To(Panic())

		w.AddInterest(1, []int{0, 1}, []int{3, 4})
		Expect(w.NbInterests(1)).To(Equal(2))
	})

	It("should reset the sums", func() {
		m := request.MakeBuilder().Build(transport.NewLocalWorld(1).Comm(0))
		l := NewLazySide(m, nil, 2, 1)
		l.ValuesAdded()[1] = 4

		l.Reset()
		Expect(l.ValuesAdded()).To(Equal([]float64{0, 0}))
	})
})
