package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/inputs"
	"github.com/uyoufu/uzoncalc/pkg/render"
)

// fieldRef addresses one field inside the window list.
type fieldRef struct {
	window int
	field  int
}

// fieldRefs flattens windows into a cursor-addressable list.
func fieldRefs(windows []calc.Window) []fieldRef {
	var refs []fieldRef
	for wi, w := range windows {
		for fi := range w.Fields {
			refs = append(refs, fieldRef{window: wi, field: fi})
		}
	}
	return refs
}

// renderFields draws the window list with the cursor on the selected field.
// Only the lines around the cursor are kept when height is exceeded.
func renderFields(windows []calc.Window, cursor, width, height int) string {
	if len(windows) == 0 {
		return infoStyle.Render("No input windows. Press s to start.")
	}

	var lines []string
	cursorLine := 0
	idx := 0
	for _, w := range windows {
		title := w.Title
		if w.Caption != "" {
			title += "  " + infoStyle.Render(w.Caption)
		}
		lines = append(lines, windowTitleStyle.Render(render.GlyphWindow+" "+title))
		for _, f := range w.Fields {
			label := render.FieldLabel(f)
			value := render.FormatValue(f.Value)
			line := runewidth.Truncate(label+": "+value, max(width-4, 8), "…")

			visible, _ := inputs.Visible(w, f)
			switch {
			case idx == cursor:
				cursorLine = len(lines)
				lines = append(lines, fieldCursorStyle.Render("▸ "+line))
			case !visible:
				lines = append(lines, fieldHiddenStyle.Render("  "+line))
			default:
				name, rest, _ := strings.Cut(line, ": ")
				lines = append(lines, "  "+fieldStyle.Render(name+": ")+valueStyle.Render(rest))
			}
			idx++
		}
	}

	if height > 0 && len(lines) > height {
		start := cursorLine - height/2
		if start < 0 {
			start = 0
		}
		if start+height > len(lines) {
			start = len(lines) - height
		}
		lines = lines[start : start+height]
	}
	return strings.Join(lines, "\n")
}
