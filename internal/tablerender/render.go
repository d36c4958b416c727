// Package tablerender serializes extracted table structures into plain,
// markdown, or HTML text for embedding inside page figures.
package tablerender

import (
	"fmt"
	"html"
	"strings"

	"github.com/yungbote/docingest/internal/domain"
)

type Mode string

const (
	ModePlain    Mode = "plain"
	ModeMarkdown Mode = "markdown"
	ModeHTML     Mode = "html"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModePlain):
		return ModePlain, nil
	case string(ModeMarkdown), "md":
		return ModeMarkdown, nil
	case string(ModeHTML):
		return ModeHTML, nil
	}
	return "", fmt.Errorf("unknown table render mode: %q", s)
}

// Render serializes t in the requested mode. A caption, when present, is
// prepended with a blank line before the table body.
func Render(t *domain.ExtractedTable, mode Mode) string {
	if t == nil {
		return ""
	}
	var body string
	switch mode {
	case ModeMarkdown:
		body = renderMarkdown(t)
	case ModeHTML:
		body = renderHTML(t)
	default:
		body = renderPlain(t)
	}
	caption := strings.TrimSpace(t.Caption)
	if caption == "" {
		return body
	}
	return caption + "\n\n" + body
}

// grid places each cell's content at its top-left and marks every spanned
// position occupied so widths account for merged regions.
func buildGrid(t *domain.ExtractedTable) ([][]string, [][]bool) {
	rows, cols := t.RowCount, t.ColCount
	if rows <= 0 || cols <= 0 {
		return nil, nil
	}
	grid := make([][]string, rows)
	occupied := make([][]bool, rows)
	for r := 0; r < rows; r++ {
		grid[r] = make([]string, cols)
		occupied[r] = make([]bool, cols)
	}
	for _, c := range t.Cells {
		if c.Row < 0 || c.Row >= rows || c.Col < 0 || c.Col >= cols {
			continue
		}
		grid[c.Row][c.Col] = strings.TrimSpace(c.Content)
		rs, cs := c.RowSpan, c.ColSpan
		if rs < 1 {
			rs = 1
		}
		if cs < 1 {
			cs = 1
		}
		for r := c.Row; r < c.Row+rs && r < rows; r++ {
			for col := c.Col; col < c.Col+cs && col < cols; col++ {
				occupied[r][col] = true
			}
		}
	}
	return grid, occupied
}

func renderPlain(t *domain.ExtractedTable) string {
	grid, occupied := buildGrid(t)
	if grid == nil {
		return ""
	}
	rows, cols := t.RowCount, t.ColCount

	widths := make([]int, cols)
	for c := 0; c < cols; c++ {
		widths[c] = 3
		for r := 0; r < rows; r++ {
			if occupied[r][c] && len(grid[r][c]) > widths[c] {
				widths[c] = len(grid[r][c])
			}
		}
	}

	var sep strings.Builder
	sep.WriteString("+")
	for c := 0; c < cols; c++ {
		sep.WriteString(strings.Repeat("-", widths[c]+2))
		sep.WriteString("+")
	}

	var b strings.Builder
	b.WriteString(sep.String())
	b.WriteString("\n")
	for r := 0; r < rows; r++ {
		b.WriteString("|")
		for c := 0; c < cols; c++ {
			b.WriteString(" ")
			b.WriteString(grid[r][c])
			b.WriteString(strings.Repeat(" ", widths[c]-len(grid[r][c])))
			b.WriteString(" |")
		}
		b.WriteString("\n")
		if r == 0 {
			b.WriteString(sep.String())
			b.WriteString("\n")
		}
	}
	b.WriteString(sep.String())
	return b.String()
}

// renderMarkdown emits row 0 as the header row. Merged cells lose their
// explicit span (best effort).
func renderMarkdown(t *domain.ExtractedTable) string {
	grid, _ := buildGrid(t)
	if grid == nil {
		return ""
	}
	rows, cols := t.RowCount, t.ColCount

	rowLine := func(r int) string {
		parts := make([]string, cols)
		for c := 0; c < cols; c++ {
			parts[c] = strings.ReplaceAll(grid[r][c], "|", "\\|")
		}
		return "| " + strings.Join(parts, " | ") + " |"
	}

	var b strings.Builder
	b.WriteString(rowLine(0))
	b.WriteString("\n|")
	for c := 0; c < cols; c++ {
		b.WriteString(" --- |")
	}
	for r := 1; r < rows; r++ {
		b.WriteString("\n")
		b.WriteString(rowLine(r))
	}
	return b.String()
}

func renderHTML(t *domain.ExtractedTable) string {
	rows := t.RowCount
	if rows <= 0 {
		return ""
	}
	byRow := make(map[int][]domain.TableCell, rows)
	for _, c := range t.Cells {
		byRow[c.Row] = append(byRow[c.Row], c)
	}

	var b strings.Builder
	b.WriteString("<table>")
	for r := 0; r < rows; r++ {
		b.WriteString("<tr>")
		for _, c := range byRow[r] {
			tag := "td"
			if c.Kind == domain.CellKindColumnHeader || c.Kind == domain.CellKindRowHeader {
				tag = "th"
			}
			b.WriteString("<")
			b.WriteString(tag)
			if c.ColSpan > 1 {
				fmt.Fprintf(&b, " colSpan=%d", c.ColSpan)
			}
			if c.RowSpan > 1 {
				fmt.Fprintf(&b, " rowSpan=%d", c.RowSpan)
			}
			b.WriteString(">")
			b.WriteString(html.EscapeString(strings.TrimSpace(c.Content)))
			b.WriteString("</")
			b.WriteString(tag)
			b.WriteString(">")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}
