package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/duoapp/duo/internal/items"
	"github.com/duoapp/duo/internal/ui"
)

const (
	actionSetName = "set-name"
	actionSelect  = "select"
	actionClear   = "clear"
	actionRename  = "rename"
	actionReload  = "reload"
	actionQuit    = "quit"
)

var itemsEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the list interactively",
	Long: `Open an interactive session on the Items list.

Type a name and add it, select an item to rename or remove it. Menu entries
only appear when the action is available: add needs a non-blank name, rename
and remove need a selection.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if !ui.IsTerminal(os.Stdin) || !ui.IsTerminal(os.Stdout) {
			exitf("duo items edit needs an interactive terminal; use the other items subcommands in scripts")
		}

		ctx, cancel := signalContext()
		defer cancel()

		gw, ctrl := mustOpenController(ctx)
		defer gw.Close()

		unsubscribe := ctrl.OnError(func(f *items.Failure) {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("✗"), f.Message)
		})
		defer unsubscribe()

		if err := editLoop(ctx, ctrl); err != nil && !errors.Is(err, huh.ErrUserAborted) {
			exitf("%v", err)
		}
	},
}

func init() {
	itemsCmd.AddCommand(itemsEditCmd)
}

// editLoop shows the list and a menu until the user quits. Operation
// failures are printed by the OnError subscriber and the loop continues.
func editLoop(ctx context.Context, ctrl *items.Controller) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		sel, hasSel := ctrl.Selected()
		var selID int64
		if hasSel {
			selID = sel.ID
		}
		fmt.Println()
		ui.WriteItemTable(os.Stdout, ctrl.Items(), selID)
		fmt.Println()

		var action string
		menu := huh.NewSelect[string]().
			Title("What next?").
			Options(menuOptions(ctrl)...).
			Value(&action)
		if err := menu.Run(); err != nil {
			return err
		}

		var err error
		switch action {
		case actionQuit:
			return nil
		case actionSetName:
			err = promptNewName(ctrl)
		case actionSelect:
			err = promptSelect(ctrl)
		case actionClear:
			ctrl.ClearSelection()
		case actionRename:
			err = promptRename(ctx, ctrl)
		case actionReload:
			_ = ctrl.Load(ctx)
		case string(items.CommandAdd), string(items.CommandRemove), string(items.CommandUpdate):
			// Failures reach the user through OnError.
			_ = ctrl.Execute(ctx, items.CommandID(action))
		}
		if err != nil {
			return err
		}
	}
}

// menuOptions lists the actions currently available. Command entries are
// included only while their guard holds.
func menuOptions(ctrl *items.Controller) []huh.Option[string] {
	opts := []huh.Option[string]{
		huh.NewOption("Type a new item name", actionSetName),
	}

	for _, c := range ctrl.Commands() {
		if !c.CanExecute() {
			continue
		}
		switch c.ID {
		case items.CommandAdd:
			opts = append(opts, huh.NewOption(fmt.Sprintf("Add %q", ctrl.NewName()), string(c.ID)))
		case items.CommandUpdate:
			sel, _ := ctrl.Selected()
			opts = append(opts,
				huh.NewOption("Rename selected item", actionRename),
				huh.NewOption(fmt.Sprintf("Save selected item as %q", sel.Name), string(c.ID)))
		case items.CommandRemove:
			opts = append(opts, huh.NewOption("Remove selected item", string(c.ID)))
		}
	}

	if len(ctrl.Items()) > 0 {
		opts = append(opts, huh.NewOption("Select an item", actionSelect))
	}
	if ctrl.CanMutateSelection() {
		opts = append(opts, huh.NewOption("Clear selection", actionClear))
	}
	return append(opts,
		huh.NewOption("Reload from database", actionReload),
		huh.NewOption("Quit", actionQuit),
	)
}

func promptNewName(ctrl *items.Controller) error {
	name := ctrl.NewName()
	err := huh.NewInput().
		Title("New item name").
		Value(&name).
		Run()
	if err != nil {
		return err
	}
	ctrl.SetNewName(name)
	return nil
}

func promptSelect(ctrl *items.Controller) error {
	records := ctrl.Items()
	opts := make([]huh.Option[int64], 0, len(records))
	for _, r := range records {
		opts = append(opts, huh.NewOption(strconv.FormatInt(r.ID, 10)+"  "+r.Name, r.ID))
	}

	var id int64
	err := huh.NewSelect[int64]().
		Title("Select an item").
		Options(opts...).
		Value(&id).
		Run()
	if err != nil {
		return err
	}
	return ctrl.Select(id)
}

// promptRename edits the selection's working copy and pushes it.
func promptRename(ctx context.Context, ctrl *items.Controller) error {
	sel, ok := ctrl.Selected()
	if !ok {
		return nil
	}

	name := sel.Name
	err := huh.NewInput().
		Title(fmt.Sprintf("Rename item %d", sel.ID)).
		Value(&name).
		Run()
	if err != nil {
		return err
	}
	if err := ctrl.SetSelectedName(name); err != nil {
		return err
	}
	_ = ctrl.Update(ctx)
	return nil
}
