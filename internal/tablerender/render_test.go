package tablerender

import (
	"strings"
	"testing"

	"github.com/yungbote/docingest/internal/domain"
)

func sampleTable() *domain.ExtractedTable {
	return &domain.ExtractedTable{
		TableID:  "table_0",
		RowCount: 3,
		ColCount: 2,
		Cells: []domain.TableCell{
			{Row: 0, Col: 0, RowSpan: 1, ColSpan: 1, Content: "Part", Kind: domain.CellKindColumnHeader},
			{Row: 0, Col: 1, RowSpan: 1, ColSpan: 1, Content: "Torque", Kind: domain.CellKindColumnHeader},
			{Row: 1, Col: 0, RowSpan: 1, ColSpan: 1, Content: "Axle nut", Kind: domain.CellKindContent},
			{Row: 1, Col: 1, RowSpan: 1, ColSpan: 1, Content: "80 Nm", Kind: domain.CellKindContent},
			{Row: 2, Col: 0, RowSpan: 1, ColSpan: 2, Content: "Lubricate before fitting", Kind: domain.CellKindContent},
		},
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
	}{
		{"", ModePlain},
		{"plain", ModePlain},
		{"md", ModeMarkdown},
		{"markdown", ModeMarkdown},
		{"HTML", ModeHTML},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseMode(%q): want=%q got=%q", tc.in, tc.want, got)
		}
	}
	if _, err := ParseMode("csv"); err == nil {
		t.Fatalf("ParseMode(csv): expected error")
	}
}

func TestRenderPlain(t *testing.T) {
	got := Render(sampleTable(), ModePlain)
	lines := strings.Split(got, "\n")
	if len(lines) != 6 {
		t.Fatalf("lines: want=6 got=%d\n%s", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "+-") || !strings.HasSuffix(lines[0], "-+") {
		t.Fatalf("missing top separator: %q", lines[0])
	}
	if lines[0] != lines[2] || lines[0] != lines[5] {
		t.Fatalf("separators differ:\n%s", got)
	}
	if !strings.Contains(lines[1], "| Part") || !strings.Contains(lines[1], "| Torque") {
		t.Fatalf("header row wrong: %q", lines[1])
	}
	if !strings.Contains(lines[3], "Axle nut") || !strings.Contains(lines[3], "80 Nm") {
		t.Fatalf("body row wrong: %q", lines[3])
	}
	// The spanned cell drives the first column width.
	if !strings.Contains(lines[4], "Lubricate before fitting") {
		t.Fatalf("spanned row wrong: %q", lines[4])
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := Render(sampleTable(), ModeMarkdown)
	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("lines: want=4 got=%d\n%s", len(lines), got)
	}
	if lines[0] != "| Part | Torque |" {
		t.Fatalf("header: want=%q got=%q", "| Part | Torque |", lines[0])
	}
	if lines[1] != "| --- | --- |" {
		t.Fatalf("separator: want=%q got=%q", "| --- | --- |", lines[1])
	}
	if lines[2] != "| Axle nut | 80 Nm |" {
		t.Fatalf("row 1: got=%q", lines[2])
	}
}

func TestRenderHTML(t *testing.T) {
	got := Render(sampleTable(), ModeHTML)
	if !strings.HasPrefix(got, "<table><tr><th>Part</th><th>Torque</th></tr>") {
		t.Fatalf("header row wrong: %q", got)
	}
	if !strings.Contains(got, "<td colSpan=2>Lubricate before fitting</td>") {
		t.Fatalf("span attribute missing: %q", got)
	}
	if !strings.HasSuffix(got, "</table>") {
		t.Fatalf("unterminated table: %q", got)
	}
}

func TestRenderHTMLEscapes(t *testing.T) {
	table := &domain.ExtractedTable{
		RowCount: 1,
		ColCount: 1,
		Cells: []domain.TableCell{
			{Row: 0, Col: 0, RowSpan: 1, ColSpan: 1, Content: "a < b & c", Kind: domain.CellKindContent},
		},
	}
	got := Render(table, ModeHTML)
	if !strings.Contains(got, "a &lt; b &amp; c") {
		t.Fatalf("content not escaped: %q", got)
	}
}

func TestRenderCaptionPrepended(t *testing.T) {
	table := sampleTable()
	table.Caption = "Table 3-1 Torque values"
	got := Render(table, ModeMarkdown)
	if !strings.HasPrefix(got, "Table 3-1 Torque values\n\n| Part") {
		t.Fatalf("caption missing: %q", got)
	}
}

func TestRenderNilAndEmpty(t *testing.T) {
	if got := Render(nil, ModePlain); got != "" {
		t.Fatalf("nil table: want empty got=%q", got)
	}
	if got := Render(&domain.ExtractedTable{}, ModePlain); got != "" {
		t.Fatalf("empty table: want empty got=%q", got)
	}
}
