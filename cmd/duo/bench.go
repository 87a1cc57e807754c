package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/duoapp/duo/internal/benchmark"
	"github.com/duoapp/duo/internal/config"
	"github.com/duoapp/duo/internal/store"
	"github.com/duoapp/duo/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "setup",
	Short:   "Measure store round trips under concurrent sessions",
	Long: `Run add, list, rename and remove cycles from several concurrent sessions
and report per-operation latency and throughput.

By default the run uses a throwaway SQLite database. With --configured it
runs against the configured store instead; records created by the run are
removed afterwards.

Examples:
  duo bench
  duo bench --sessions 32 --cycles 50
  duo bench --configured --json`,
	Args: cobra.NoArgs,
	Run:  runBench,
}

func init() {
	d := benchmark.DefaultConfig()
	benchCmd.Flags().Int("sessions", d.Sessions, "number of concurrent sessions")
	benchCmd.Flags().Int("cycles", d.Cycles, "add/list/rename/remove cycles per session")
	benchCmd.Flags().Int("seed", d.Seed, "records inserted before timing starts")
	benchCmd.Flags().Bool("configured", false, "benchmark the configured store instead of a temporary SQLite file")
	benchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) {
	sessions, _ := cmd.Flags().GetInt("sessions")
	cycles, _ := cmd.Flags().GetInt("cycles")
	seed, _ := cmd.Flags().GetInt("seed")
	configured, _ := cmd.Flags().GetBool("configured")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	dbCfg := cfg.Database
	if !configured {
		dir, err := os.MkdirTemp("", "duo-bench-")
		if err != nil {
			exitf("failed to create temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		dbCfg = config.DatabaseConfig{Driver: config.DriverSQLite, DSN: filepath.Join(dir, "bench.db")}
	}

	ctx, cancel := signalContext()
	defer cancel()

	gw, err := store.Open(dbCfg, store.WithLogger(logger.Named("store")))
	if err != nil {
		exitf("%v", err)
	}
	defer gw.Close()
	if err := gw.Initialize(ctx); err != nil {
		exitf("Could not initialize the database: %v", err)
	}

	if !jsonOutput {
		fmt.Printf("%s Running %d sessions x %d cycles against %s...\n",
			ui.RenderAccent("⏱"), sessions, cycles, gw.Driver())
	}

	result, err := benchmark.Run(ctx, gw, gw.Driver(), benchmark.Config{
		Sessions: sessions,
		Cycles:   cycles,
		Seed:     seed,
	})
	if err != nil {
		exitf("%v", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			exitf("%v", err)
		}
		return
	}
	benchmark.PrintResult(os.Stdout, *result)
}
