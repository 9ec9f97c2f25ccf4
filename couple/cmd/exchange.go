package cmd

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/sarchlab/coupling/dec"
	"github.com/sarchlab/coupling/field"
	"github.com/sarchlab/coupling/group"
	"github.com/sarchlab/coupling/monitoring"
	"github.com/sarchlab/coupling/topology"
	"github.com/sarchlab/coupling/transport"
	"github.com/spf13/cobra"
)

type exchangeParams struct {
	sources      int
	elements     int
	components   int
	rounds       int
	timeStamps   bool
	roundTripped bool
}

var exchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Move a field from a source group to a target group.",
	Long: "`exchange --sources S` splits the world into a source group of S " +
		"ranks and a target group made of the other ranks. Both groups " +
		"partition the same elements in blocks, the targets numbering " +
		"them backwards. Each round the sources advance their field and " +
		"send it; the targets check the values they receive.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		p := exchangeParams{}
		p.sources, _ = flags.GetInt("sources")
		p.elements, _ = flags.GetInt("elements")
		p.components, _ = flags.GetInt("components")
		p.rounds, _ = flags.GetInt("rounds")
		p.timeStamps, _ = flags.GetBool("time-stamps")
		p.roundTripped, _ = flags.GetBool("round-trip")

		if p.sources < 1 || p.sources >= cfg.ranks {
			return fmt.Errorf("sources must be in [1, %d)", cfg.ranks)
		}

		s, err := newSession(cfg)
		if err != nil {
			return err
		}

		s.start("exchange", map[string]string{
			"Sources":    strconv.Itoa(p.sources),
			"Elements":   strconv.Itoa(p.elements),
			"Components": strconv.Itoa(p.components),
			"Rounds":     strconv.Itoa(p.rounds),
		})

		bar := s.progressBar("Exchange", p.rounds)
		defer s.completeProgressBar(bar)

		err = s.runRanks(func(comm transport.Comm) error {
			return exchange(s, comm, p, bar)
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"%d rounds of %d elements moved from %d to %d ranks\n",
			p.rounds, p.elements, p.sources, cfg.ranks-p.sources)

		return s.finish(cmd.OutOrStdout())
	},
}

func exchangeValue(global, comp, round int) float64 {
	return float64(global*100+comp) + float64(round)/10
}

func exchange(
	s *session,
	comm transport.Comm,
	p exchangeParams,
	bar *monitoring.ProgressBar,
) error {
	source := group.Range(comm, 0, p.sources-1)
	target := group.Range(comm, p.sources, comm.Size()-1)

	b := dec.MakeBuilder().
		WithName("Exchange").
		WithSourceGroup(source).
		WithTargetGroup(target).
		WithRequestManagerBuilder(s.managerBuilder())
	if p.timeStamps {
		b = b.WithTimeStamps()
	}

	c := b.Build()
	s.watchChannel(c)

	g, ids := source, []int(nil)
	if source.ContainsMyRank() {
		ids = topology.BlockPartition(p.elements, source.Size(), source.MyRank())
	} else {
		g = target
		ids = topology.BlockPartition(p.elements, target.Size(), target.MyRank())
		slices.Reverse(ids)
	}

	topo := topology.NewExplicit(g, ids, p.components)
	f := field.NewLinear("exchanged", topo, 0, 1)
	c.AttachLocalField(f)

	if err := c.Synchronize(); err != nil {
		return err
	}

	for round := 0; round < p.rounds; round++ {
		if err := exchangeRound(c, f, round, p); err != nil {
			return fmt.Errorf("rank %d round %d: %w", comm.Rank(), round, err)
		}

		if comm.Rank() == 0 {
			bar.IncrementFinished(1)
		}
	}

	return nil
}

func exchangeRound(
	c *dec.Channel,
	f *field.Field,
	round int,
	p exchangeParams,
) error {
	data := f.Data()
	topo := f.Topology

	if c.IsInSourceSide() {
		f.Discretization.Advance(1)
		for i := 0; i < topo.NbLocalElements(); i++ {
			for k := 0; k < p.components; k++ {
				data.Values()[i*p.components+k] =
					exchangeValue(topo.LocalToGlobal(i), k, round)
			}
		}
	}

	if err := c.SendRecvData(true); err != nil {
		return err
	}

	if c.IsInTargetSide() {
		for i := 0; i < topo.NbLocalElements(); i++ {
			for k := 0; k < p.components; k++ {
				want := exchangeValue(topo.LocalToGlobal(i), k, round)
				if got := data.Values()[i*p.components+k]; got != want {
					return fmt.Errorf("element %d component %d holds %g, want %g",
						topo.LocalToGlobal(i), k, got, want)
				}
			}
		}

		if p.timeStamps {
			msgs := c.LastTimeMessages()
			if len(msgs) == 0 || msgs[0].Tag != c.Round()-1 {
				return fmt.Errorf("time stamps %v do not match round %d",
					msgs, c.Round()-1)
			}
		}
	}

	if !p.roundTripped {
		return nil
	}

	if c.IsInTargetSide() {
		for i := range data.Values() {
			data.Values()[i]++
		}
	}

	if err := c.SendRecvData(false); err != nil {
		return err
	}

	if c.IsInSourceSide() {
		for i := 0; i < topo.NbLocalElements(); i++ {
			want := exchangeValue(topo.LocalToGlobal(i), 0, round) + 1
			if got := data.Tuple(i)[0]; got != want {
				return fmt.Errorf("element %d came back as %g, want %g",
					topo.LocalToGlobal(i), got, want)
			}
		}
	}

	return nil
}

func init() {
	rootCmd.AddCommand(exchangeCmd)

	flags := exchangeCmd.Flags()
	flags.Int("sources", 1, "number of ranks in the source group")
	flags.Int("elements", 100, "number of elements of the mesh")
	flags.Int("components", 1, "number of components per element")
	flags.Int("rounds", 10, "number of transfers")
	flags.Bool("time-stamps", false, "send a time message ahead of the data")
	flags.Bool("round-trip", false, "send the values back after each round")
}
