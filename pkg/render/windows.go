package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/inputs"
)

var (
	colorCyan   = lipgloss.Color("51")
	colorYellow = lipgloss.Color("214")
	colorGreen  = lipgloss.Color("42")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var (
	windowTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	captionStyle     = lipgloss.NewStyle().Faint(true)
	labelStyle       = lipgloss.NewStyle().Foreground(colorWhite)
	valueStyle       = lipgloss.NewStyle().Foreground(colorYellow)
	hiddenStyle      = lipgloss.NewStyle().Foreground(colorDim).Faint(true)
	completedStyle   = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	pendingStyle     = lipgloss.NewStyle().Foreground(colorYellow)
)

// Glyphs used in window listings.
const (
	GlyphWindow = "▸"
	GlyphHidden = "◌"
)

// FormatValue renders a field value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "—"
	case string:
		if x == "" {
			return `""`
		}
		return x
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = FormatValue(p)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(x, ", ")
	default:
		return fmt.Sprint(x)
	}
}

// FieldLabel returns the label shown for a field: its label when set,
// otherwise its name.
func FieldLabel(f calc.Field) string {
	if f.Label != "" && f.Label != f.Name {
		return fmt.Sprintf("%s (%s)", f.Label, f.Name)
	}
	return f.Name
}

// Windows lists every window with its fields and current values. Lines are
// truncated to width when width > 0. Fields whose vif condition is false
// are shown dimmed.
func Windows(windows []calc.Window, width int) string {
	if len(windows) == 0 {
		return captionStyle.Render("(no input windows)")
	}

	var b strings.Builder
	for wi, w := range windows {
		if wi > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(windowTitleStyle.Render(fmt.Sprintf("%s [%d] %s", GlyphWindow, wi, w.Title)))
		b.WriteByte('\n')

		labelWidth := 0
		for _, f := range w.Fields {
			if lw := runewidth.StringWidth(FieldLabel(f)); lw > labelWidth {
				labelWidth = lw
			}
		}

		for _, f := range w.Fields {
			label := runewidth.FillRight(FieldLabel(f), labelWidth)
			value := FormatValue(f.Value)
			if len(f.Options) > 0 {
				value += "  {" + strings.Join(f.Options, "|") + "}"
			}
			line := "  " + label + "  " + value
			if width > 0 {
				line = runewidth.Truncate(line, width, "…")
			}

			visible, _ := inputs.Visible(w, f)
			if !visible {
				b.WriteString(hiddenStyle.Render(GlyphHidden + line[1:]))
			} else {
				prefix := "  " + label + "  "
				if runewidth.StringWidth(line) > runewidth.StringWidth(prefix) {
					b.WriteString(labelStyle.Render(prefix) + valueStyle.Render(line[len(prefix):]))
				} else {
					b.WriteString(labelStyle.Render(line))
				}
			}
			b.WriteByte('\n')
		}
		if w.Caption != "" {
			b.WriteString("  " + captionStyle.Render(w.Caption) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Status summarizes an execution result in one line.
func Status(res calc.ExecutionResult, executing bool) string {
	switch {
	case executing:
		return pendingStyle.Render("executing…")
	case res.ExecutionID == "":
		return captionStyle.Render("not started")
	case res.IsCompleted:
		return completedStyle.Render("completed") + " " + captionStyle.Render(res.ExecutionID)
	default:
		return pendingStyle.Render(fmt.Sprintf("waiting for input (%d windows)", len(res.Windows))) +
			" " + captionStyle.Render(res.ExecutionID)
	}
}
