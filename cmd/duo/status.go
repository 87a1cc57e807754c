package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duoapp/duo/internal/config"
	"github.com/duoapp/duo/internal/store"
	"github.com/duoapp/duo/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create the Items table if it does not exist",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		gw, err := openGateway(ctx)
		if err != nil {
			exitf("Could not initialize the database: %v", err)
		}
		defer gw.Close()

		fmt.Printf("%s Items table ready (%s)\n", ui.RenderPass("✓"), gw.Driver())
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "setup",
	Short:   "Check the database connection and count items",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		fmt.Printf("\n%s duo status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("  Driver:   %s\n", cfg.Database.Driver)
		if cfg.Database.Driver == config.DriverSQLite {
			fmt.Printf("  Database: %s\n", cfg.Database.DSN)
		}

		gw, err := store.Open(cfg.Database, store.WithLogger(logger.Named("store")))
		if err != nil {
			exitf("%v", err)
		}
		defer gw.Close()

		if err := gw.Ping(ctx); err != nil {
			fmt.Printf("  Connection: %s %v\n\n", ui.RenderFail("✗"), err)
			return
		}
		fmt.Printf("  Connection: %s\n", ui.RenderPass("✓ ok"))

		n, err := gw.Count(ctx)
		if err != nil {
			fmt.Printf("  Items:      %s %v\n", ui.RenderWarn("⚠"), err)
			fmt.Println("  Run \"duo init\" to create the Items table.")
			fmt.Println()
			return
		}
		fmt.Printf("  Items:      %d\n\n", n)
	},
}

func init() {
	rootCmd.AddCommand(initCmd, statusCmd)
}
