package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/sarchlab/coupling/datarecording"
	"github.com/spf13/cobra"
)

type runInfoRow struct {
	Property string
	Value    string
}

type traceRow struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

var reportCmd = &cobra.Command{
	Use:   "report [database.sqlite3]",
	Short: "Summarize a recorded run.",
	Long: "`report` prints the run information and, per request kind and " +
		"location, the number of requests and the time they took.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := datarecording.NewReader(args[0])
		defer reader.Close()

		reader.MapTable("run_info", runInfoRow{})
		reader.MapTable("trace", traceRow{})

		return report(cmd.Context(), reader, cmd.OutOrStdout())
	},
}

type traceSummary struct {
	kind, location string
	count          int
	unfinished     int
	total          float64
}

func report(ctx context.Context, reader datarecording.DataReader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	infos, _, err := reader.Query(ctx, "run_info", datarecording.QueryParams{})
	if err != nil {
		return err
	}

	for _, row := range infos {
		info := row.(*runInfoRow)
		fmt.Fprintf(out, "%-20s %s\n", info.Property, info.Value)
	}

	tasks, total, err := reader.Query(ctx, "trace",
		datarecording.QueryParams{OrderBy: "Location, Kind"})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d requests traced\n", total)

	summaries := map[[2]string]*traceSummary{}
	for _, row := range tasks {
		t := row.(*traceRow)
		key := [2]string{t.Location, t.Kind}

		s, ok := summaries[key]
		if !ok {
			s = &traceSummary{kind: t.Kind, location: t.Location}
			summaries[key] = s
		}

		s.count++
		if t.EndTime < 0 {
			s.unfinished++
			continue
		}

		s.total += t.EndTime - t.StartTime
	}

	list := make([]*traceSummary, 0, len(summaries))
	for _, s := range summaries {
		list = append(list, s)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].location != list[j].location {
			return list[i].location < list[j].location
		}

		return list[i].kind < list[j].kind
	})

	for _, s := range list {
		fmt.Fprintf(out, "%-40s %-8s %6d %12.6fs", s.location, s.kind,
			s.count, s.total)
		if s.unfinished > 0 {
			fmt.Fprintf(out, " (%d unfinished)", s.unfinished)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
