// Package cmd provides the command-line interface of couple.
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "couple",
	Short: "couple runs coupling scenarios between groups of ranks hosted " +
		"in one process.",
	Long: `couple runs coupling scenarios between groups of ranks hosted ` +
		`in one process. Each scenario can record request traces to SQLite ` +
		`or ClickHouse and serve a monitoring page while it runs. Defaults ` +
		`are read from COUPLE_* variables, which may come from a .env file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	// A missing .env file only means there is nothing to load.
	_ = godotenv.Load()

	flags := rootCmd.PersistentFlags()
	flags.Int("ranks", envInt("COUPLE_RANKS", 4),
		"number of ranks in the world")
	flags.Int("base-tag", envInt("COUPLE_BASE_TAG", 0),
		"first tag used by request managers")
	flags.Int("max-tag", envInt("COUPLE_MAX_TAG", -1),
		"last tag used by request managers, -1 derives it from the transport")
	flags.String("record", os.Getenv("COUPLE_RECORD"),
		"SQLite file or clickhouse:// URL to record traces to")
	flags.Int("monitor-port", envInt("COUPLE_MONITOR_PORT", -1),
		"port of the monitoring server, 0 picks a free port, -1 disables it")
	flags.Bool("open-monitor", false,
		"open the monitoring page in a browser")
	flags.Bool("trace", false, "log every request operation")
}

func envInt(name string, def int) int {
	value, ok := os.LookupEnv(name)
	if !ok {
		return def
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ignoring %s=%q: %v\n", name, value, err)
		return def
	}

	return n
}
