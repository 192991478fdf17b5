package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/grovetools/rex/pkg/instance"
	"github.com/grovetools/rex/pkg/registry"
)

// ZombieLegend explains the discovered entries of a process table.
const ZombieLegend = registry.ZombieName + ": running runner not launched by this session; " +
	"it may be an orphan of this session or a job of another session on the same host"

// NewTable returns a bordered table styled with t.
func NewTable(t *Theme, headers ...string) *ltable.Table {
	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(t.Border).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return t.Header
			}
			return t.Cell
		})
}

// ProcessTable renders tracked processes with their 1-based kill index.
func ProcessTable(t *Theme, procs []registry.TrackedProcess) string {
	tbl := NewTable(t, "IDX", "NAME", "PID", "STATE", "TOKEN")
	for i, p := range procs {
		token := p.Token
		if token == "" {
			token = "-"
		}
		tbl.Row(strconv.Itoa(i+1), p.Name, strconv.Itoa(p.PID), strings.ToLower(p.State.String()), token)
	}
	return tbl.String()
}

// RenderProcesses writes the process table, and the zombie legend when the
// table holds discovered entries.
func RenderProcesses(w io.Writer, procs []registry.TrackedProcess) {
	t := NewTheme(w)
	if len(procs) == 0 {
		fmt.Fprintln(w, t.Muted.Render("No tracked processes."))
		return
	}
	fmt.Fprintln(w, ProcessTable(t, procs))
	for _, p := range procs {
		if p.Discovered() {
			fmt.Fprintln(w, t.Muted.Render(ZombieLegend))
			break
		}
	}
}

// InstanceTable renders configured instances with their 0-based index,
// marking the default one.
func InstanceTable(t *Theme, creds []instance.Credential, defaultIndex int) string {
	tbl := NewTable(t, "IDX", "LOGIN", "PORT", "AUTH", "DEFAULT")
	for i, c := range creds {
		port := "-"
		if c.Port != 0 {
			port = strconv.Itoa(c.Port)
		}
		auth := "password"
		switch {
		case c.IsLocal():
			auth = "local"
		case c.KeyPath != "":
			auth = "key"
		}
		def := ""
		if i == defaultIndex {
			def = "*"
		}
		tbl.Row(strconv.Itoa(i), c.String(), port, auth, def)
	}
	return tbl.String()
}
