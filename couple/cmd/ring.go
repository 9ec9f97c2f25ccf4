package cmd

import (
	"fmt"
	"strconv"

	"github.com/sarchlab/coupling/request"
	"github.com/sarchlab/coupling/transport"
	"github.com/spf13/cobra"
)

var ringCmd = &cobra.Command{
	Use:   "ring",
	Short: "Pass a counter around all ranks.",
	Long: "`ring --rounds N` passes the values 0..N-1 from rank to rank " +
		"around the world and checks that every rank sees them in order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		rounds, _ := cmd.Flags().GetInt("rounds")

		s, err := newSession(cfg)
		if err != nil {
			return err
		}

		s.start("ring", map[string]string{"Rounds": strconv.Itoa(rounds)})

		err = s.runRanks(func(comm transport.Comm) error {
			m := s.managerBuilder().WithName("Ring").Build(comm)
			s.watchManager(m)

			return ring(m, rounds)
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "ring of %d ranks passed %d values\n",
			cfg.ranks, rounds)

		return s.finish(cmd.OutOrStdout())
	},
}

// ring forwards every value from the previous rank to the next one. Rank 0
// injects the values.
func ring(m *request.Manager, rounds int) error {
	rank := m.Rank()
	next := (rank + 1) % m.Size()
	prev := (rank + m.Size() - 1) % m.Size()
	buf := make([]int, 1)

	for i := 0; i < rounds; i++ {
		if rank == 0 {
			if _, err := m.Send([]int{i}, 1, transport.IntType, next); err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
		}

		if _, _, err := m.Recv(buf, 1, transport.IntType, prev); err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}

		if buf[0] != i {
			return fmt.Errorf("rank %d received %d, want %d", rank, buf[0], i)
		}

		if rank != 0 {
			if _, err := m.Send(buf, 1, transport.IntType, next); err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
		}
	}

	if n := m.NbRequests(); n != 0 {
		return fmt.Errorf("rank %d leaked %d requests", rank, n)
	}

	return nil
}

func init() {
	rootCmd.AddCommand(ringCmd)
	ringCmd.Flags().Int("rounds", 10, "number of values passed around")
}
