package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/duoapp/duo/internal/items"
	"github.com/duoapp/duo/internal/store"
	"github.com/duoapp/duo/internal/ui"
)

var itemsCmd = &cobra.Command{
	Use:     "items",
	GroupID: "items",
	Short:   "List, add, rename and remove items",
	Long: `Work with the Items list.

Each subcommand opens the store, loads the list, performs one operation and
exits. Use "duo items edit" for an interactive session.`,
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all items in id order",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		ctx, cancel := signalContext()
		defer cancel()

		gw, ctrl := mustOpenController(ctx)
		defer gw.Close()

		if err := writeItems(os.Stdout, format, ctrl.Items()); err != nil {
			exitf("%v", err)
		}
	},
}

var itemsAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add an item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		gw, ctrl := mustOpenController(ctx)
		defer gw.Close()

		var added store.Record
		unsubscribe := ctrl.OnCollectionChanged(func(change items.CollectionChange) {
			if change.Kind == items.ChangeAdded {
				added = change.Record
			}
		})
		defer unsubscribe()

		ctrl.SetNewName(args[0])
		if err := ctrl.Add(ctx); err != nil {
			exitf("%v", describe(err))
		}
		fmt.Printf("%s Added item %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(strconv.FormatInt(added.ID, 10)), added.Name)
	},
}

var itemsRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename an item",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])

		ctx, cancel := signalContext()
		defer cancel()

		gw, ctrl := mustOpenController(ctx)
		defer gw.Close()

		if err := ctrl.Select(id); err != nil {
			exitf("%v", err)
		}
		if err := ctrl.SetSelectedName(args[1]); err != nil {
			exitf("%v", err)
		}
		if err := ctrl.Update(ctx); err != nil {
			exitf("%v", describe(err))
		}
		fmt.Printf("%s Renamed item %s to %q\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), args[1])
	},
}

var itemsRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Remove an item",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])

		ctx, cancel := signalContext()
		defer cancel()

		gw, ctrl := mustOpenController(ctx)
		defer gw.Close()

		if err := ctrl.Select(id); err != nil {
			exitf("%v", err)
		}
		if err := ctrl.Remove(ctx); err != nil {
			exitf("%v", describe(err))
		}
		fmt.Printf("%s Removed item %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
	},
}

func init() {
	itemsListCmd.Flags().StringP("format", "f", "table", "output format: table, json or yaml")

	itemsCmd.AddCommand(itemsListCmd, itemsAddCmd, itemsRenameCmd, itemsRemoveCmd)
	rootCmd.AddCommand(itemsCmd)
}

// writeItems renders records in the requested format.
func writeItems(w io.Writer, format string, records []store.Record) error {
	switch format {
	case "table", "":
		ui.WriteItemTable(w, records, 0)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

// describe adds a hint to the surfaced message for connection failures.
// Constraint messages already name the rejected limit.
func describe(err error) error {
	if store.IsUnavailable(err) {
		return fmt.Errorf("%w (check database.driver and database.dsn)", err)
	}
	return err
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		exitf("invalid item id %q", s)
	}
	return id
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
