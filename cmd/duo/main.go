package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/duoapp/duo/internal/config"
	"github.com/duoapp/duo/internal/items"
	"github.com/duoapp/duo/internal/logging"
	"github.com/duoapp/duo/internal/store"
	"github.com/duoapp/duo/internal/ui"
)

var (
	configPath string
	noColor    bool

	cfg        *config.Config
	logger     = zap.NewNop()
	logCleanup = func() {}
)

// skipConfigAnnotation marks commands that run on defaults instead of the
// loaded configuration.
const skipConfigAnnotation = "duo/skip-config"

var rootCmd = &cobra.Command{
	Use:   "duo",
	Short: "Manage a list of items and preview markdown",
	Long: `duo keeps a list of named items in a SQL table and renders markdown
previews.

The list lives in a single Items(Id, Name) table. SQLite is used by default;
SQL Server, PostgreSQL and MySQL are selected with database.driver.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !ui.IsTerminal(os.Stdout) {
			ui.DisableColor()
		}

		if _, skip := cmd.Annotations[skipConfigAnnotation]; skip {
			d := config.Default()
			cfg = &d
			return
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded

		l, cleanup, err := logging.New(cfg.Log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
			os.Exit(1)
		}
		logger, logCleanup = l, cleanup
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logCleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .duo/duo.toml or ~/.config/duo/duo.toml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "items", Title: "List Commands:"},
		&cobra.Group{ID: "preview", Title: "Preview Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openGateway opens the configured store and makes sure the Items table
// exists. The caller closes the gateway.
func openGateway(ctx context.Context) (*store.Gateway, error) {
	gw, err := store.Open(cfg.Database, store.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, err
	}
	if err := gw.Initialize(ctx); err != nil {
		_ = gw.Close()
		return nil, err
	}
	return gw, nil
}

// openController opens the store and loads the list into a new controller.
func openController(ctx context.Context) (*store.Gateway, *items.Controller, error) {
	gw, err := openGateway(ctx)
	if err != nil {
		return nil, nil, err
	}

	ctrl := items.New(gw, items.WithLogger(logger.Named("items")))
	if err := ctrl.Load(ctx); err != nil {
		_ = gw.Close()
		return nil, nil, err
	}
	return gw, ctrl, nil
}

// mustOpenController is openController for one-shot commands: failures are
// reported once and the process exits.
func mustOpenController(ctx context.Context) (*store.Gateway, *items.Controller) {
	gw, ctrl, err := openController(ctx)
	if err != nil {
		exitf("Could not initialize the database: %v", err)
	}
	return gw, ctrl
}

func exitf(format string, args ...any) {
	logCleanup()
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("✗"), fmt.Sprintf(format, args...))
	os.Exit(1)
}
