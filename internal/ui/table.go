package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/duoapp/duo/internal/store"
)

// WriteItemTable prints records as an aligned two-column table. The selected
// id, if non-zero, is marked.
func WriteItemTable(w io.Writer, records []store.Record, selected int64) {
	if len(records) == 0 {
		fmt.Fprintln(w, RenderMuted("(no items)"))
		return
	}

	idWidth := len("ID")
	for _, r := range records {
		if n := len(strconv.FormatInt(r.ID, 10)); n > idWidth {
			idWidth = n
		}
	}
	idCol := lipgloss.NewStyle().Width(idWidth).Align(lipgloss.Right)

	fmt.Fprintf(w, "  %s  %s\n", RenderHeader(idCol.Render("ID")), RenderHeader("Name"))
	for _, r := range records {
		marker := " "
		if selected != 0 && r.ID == selected {
			marker = RenderAccent(">")
		}
		name := r.Name
		if name == "" {
			name = RenderMuted("(empty)")
		}
		fmt.Fprintf(w, "%s %s  %s\n", marker, idCol.Render(strconv.FormatInt(r.ID, 10)), name)
	}
}
