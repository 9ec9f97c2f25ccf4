package cmd

import (
	"fmt"
	"strconv"

	"github.com/sarchlab/coupling/field"
	"github.com/sarchlab/coupling/globalizer"
	"github.com/sarchlab/coupling/request"
	"github.com/sarchlab/coupling/topology"
	"github.com/sarchlab/coupling/transport"
	"github.com/spf13/cobra"
)

type aggregateParams struct {
	working  int
	elements int
	rounds   int
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Sum the contributions of working ranks on lazy ranks.",
	Long: "`aggregate --working W` lets the first W ranks contribute a " +
		"value for every element. The other ranks own the elements in " +
		"blocks, sum the contributions and hand the sums back.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		p := aggregateParams{}
		p.working, _ = flags.GetInt("working")
		p.elements, _ = flags.GetInt("elements")
		p.rounds, _ = flags.GetInt("rounds")

		if p.working < 1 || p.working >= cfg.ranks {
			return fmt.Errorf("working must be in [1, %d)", cfg.ranks)
		}

		s, err := newSession(cfg)
		if err != nil {
			return err
		}

		s.start("aggregate", map[string]string{
			"Working":  strconv.Itoa(p.working),
			"Elements": strconv.Itoa(p.elements),
			"Rounds":   strconv.Itoa(p.rounds),
		})

		bar := s.progressBar("Aggregate", p.rounds)
		defer s.completeProgressBar(bar)

		err = s.runRanks(func(comm transport.Comm) error {
			m := s.managerBuilder().WithName("Aggregate").Build(comm)
			s.watchManager(m)

			for round := 0; round < p.rounds; round++ {
				if err := aggregate(m, p, round); err != nil {
					return fmt.Errorf("rank %d round %d: %w",
						comm.Rank(), round, err)
				}

				if comm.Rank() == 0 {
					bar.IncrementFinished(1)
				}
			}

			return nil
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"%d rounds of %d elements summed from %d to %d ranks\n",
			p.rounds, p.elements, p.working, cfg.ranks-p.working)

		return s.finish(cmd.OutOrStdout())
	},
}

func contribution(rank, global, round int) float64 {
	return float64((rank + 1) * (global + 1 + round))
}

func aggregate(m *request.Manager, p aggregateParams, round int) error {
	rank := m.Rank()
	nbLazy := m.Size() - p.working

	working := make([]int, p.working)
	for i := range working {
		working[i] = i
	}

	lazy := make([]int, nbLazy)
	for i := range lazy {
		lazy[i] = p.working + i
	}

	if rank >= p.working {
		block := topology.BlockPartition(p.elements, nbLazy, rank-p.working)
		l := globalizer.NewLazySide(m, working, len(block), 1)

		if err := l.RecvFromWorkingSide(); err != nil {
			return err
		}

		factor := float64(p.working * (p.working + 1) / 2)
		for i, g := range block {
			if want := factor * float64(g+1+round); l.ValuesAdded()[i] != want {
				return fmt.Errorf("element %d summed to %g, want %g",
					g, l.ValuesAdded()[i], want)
			}
		}

		return l.SendToWorkingSide()
	}

	data := field.NewArray(p.elements, 1)
	for g := 0; g < p.elements; g++ {
		data.Values()[g] = contribution(rank, g, round)
	}

	w := globalizer.NewWorkingSide(m, data, lazy)
	for i, l := range lazy {
		block := topology.BlockPartition(p.elements, nbLazy, i)

		distant := make([]int, len(block))
		for k := range distant {
			distant[k] = k
		}

		w.AddInterest(l, block, distant)
	}

	if err := w.SendSumToLazySide(); err != nil {
		return err
	}

	if err := w.RecvSumFromLazySide(); err != nil {
		return err
	}

	factor := float64(p.working * (p.working + 1) / 2)
	for g, v := range data.Values() {
		if want := factor * float64(g+1+round); v != want {
			return fmt.Errorf("element %d came back as %g, want %g", g, v, want)
		}
	}

	return nil
}

func init() {
	rootCmd.AddCommand(aggregateCmd)

	flags := aggregateCmd.Flags()
	flags.Int("working", 2, "number of contributing ranks")
	flags.Int("elements", 100, "number of elements owned by the lazy ranks")
	flags.Int("rounds", 1, "number of aggregation rounds")
}
