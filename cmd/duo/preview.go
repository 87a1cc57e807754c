package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duoapp/duo/internal/preview"
	"github.com/duoapp/duo/internal/ui"
)

var previewCmd = &cobra.Command{
	Use:     "preview FILE",
	GroupID: "preview",
	Short:   "Render a markdown file as HTML",
	Long: `Render a markdown file as HTML.

Without --out the preview page is written to stdout. It embeds the raw text
and renders it in the browser with a client-side markdown library, exactly as
the live preview of "duo serve --watch" does.

With --out the markdown is rendered to static HTML on the spot and written to
the given path.

The preview page only escapes backslash, backtick, CR, LF and tab in the
embedded text. Do not preview untrusted documents.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("out")

		data, err := os.ReadFile(args[0])
		if err != nil {
			exitf("failed to read %s: %v", args[0], err)
		}

		if out == "" {
			fmt.Print(preview.Page(string(data)))
			return
		}

		title := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		doc, err := preview.RenderDocument(title, data)
		if err != nil {
			exitf("%v", err)
		}
		if err := os.WriteFile(out, doc, 0644); err != nil {
			exitf("failed to write %s: %v", out, err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), out)
	},
}

func init() {
	previewCmd.Flags().StringP("out", "o", "", "write rendered HTML to this file")

	rootCmd.AddCommand(previewCmd)
}
