package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duoapp/duo/internal/migrate"
	"github.com/duoapp/duo/internal/ui"
)

var itemsExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write all items to a JSONL file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		gw, ctrl := mustOpenController(ctx)
		defer gw.Close()

		n, err := migrate.Export(ctrl, args[0])
		if err != nil {
			exitf("%v", err)
		}
		fmt.Printf("%s Exported %d items to %s\n", ui.RenderPass("✓"), n, args[0])
	},
}

var itemsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Add the items listed in a JSONL file",
	Long: `Add the items listed in a JSONL file, one {"name": "..."} object per line.

Ids in the file are ignored; the store assigns new ones. Blank names are
skipped. A rejected name is reported and the import continues.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx, cancel := signalContext()
		defer cancel()

		gw, ctrl := mustOpenController(ctx)
		defer gw.Close()

		result, err := migrate.Import(ctx, ctrl, migrate.ImportOptions{FromJSONL: args[0], DryRun: dryRun})
		if err != nil {
			exitf("%v", err)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d of %d items", ui.RenderPass("✓"), verb, result.Imported, result.Read)
		if result.Skipped > 0 {
			fmt.Printf(" (%d blank skipped)", result.Skipped)
		}
		fmt.Println()
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn("⚠"), msg)
		}
		if len(result.Errors) > 0 {
			logCleanup()
			os.Exit(1)
		}
	},
}

func init() {
	itemsImportCmd.Flags().Bool("dry-run", false, "parse and report without adding")

	itemsCmd.AddCommand(itemsExportCmd, itemsImportCmd)
}
