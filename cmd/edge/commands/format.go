package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// report is where every command writes its human-readable report
var report io.Writer = os.Stdout

const ruleWidth = 59

// banner opens a report section
func banner(title string) {
	fmt.Fprintln(report, strings.Repeat("═", ruleWidth))
	fmt.Fprintf(report, "  %s\n", title)
	fmt.Fprintln(report, strings.Repeat("─", ruleWidth))
}

func okf(format string, args ...any) {
	fmt.Fprintf(report, "✅ "+format+"\n", args...)
}

func notef(format string, args ...any) {
	fmt.Fprintf(report, "ℹ️  "+format+"\n", args...)
}

// warnf is set off by blank lines so it is not lost in a table
func warnf(format string, args ...any) {
	fmt.Fprintf(report, "\n⚠️  "+format+"\n\n", args...)
}

func field(key, value string, width int) {
	fmt.Fprintf(report, "   %-*s : %s\n", width, key, value)
}

func bullets(items []string) {
	for _, item := range items {
		fmt.Fprintf(report, "   • %s\n", item)
	}
}

// table prints fixed-width columns separated by two spaces.
// Cells are padded by rune count so "●" lines up with ASCII cells.
type table struct {
	w      io.Writer
	widths []int
}

func newTable(widths ...int) *table {
	return &table{w: report, widths: widths}
}

func (t *table) header(cols ...string) {
	t.row(cols...)
	total := 2 * (len(t.widths) - 1)
	for _, w := range t.widths {
		total += w
	}
	fmt.Fprintln(t.w, strings.Repeat("─", total))
}

func (t *table) row(cells ...string) {
	fmt.Fprintln(t.w, t.format(cells))
}

func (t *table) format(cells []string) string {
	var b strings.Builder
	last := len(cells) - 1
	for i, cell := range cells {
		b.WriteString(cell)
		if i == last {
			break
		}
		if i < len(t.widths) {
			if pad := t.widths[i] - utf8.RuneCountInString(cell); pad > 0 {
				b.WriteString(strings.Repeat(" ", pad))
			}
		}
		b.WriteString("  ")
	}
	return b.String()
}
