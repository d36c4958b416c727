package chunker

import (
	"strings"
	"testing"
)

func TestExtractHeaderFromMarker(t *testing.T) {
	text := `<!--PageHeader="2-4 Engine Removal"-->` + "\nBody text follows."
	cleaned, header := ExtractHeader(text)
	if header != "Engine Removal" {
		t.Fatalf("header: want=%q got=%q", "Engine Removal", header)
	}
	if strings.Contains(cleaned, "PageHeader") {
		t.Fatalf("marker not stripped: %q", cleaned)
	}
}

func TestExtractHeaderCollapsesDoubledTitle(t *testing.T) {
	text := `<!--PageHeader="Fuel System Fuel System"-->` + "\nBody."
	_, header := ExtractHeader(text)
	if header != "Fuel System" {
		t.Fatalf("header: want=%q got=%q", "Fuel System", header)
	}
}

func TestExtractHeaderDeduplicatesMarkers(t *testing.T) {
	text := `<!--PageHeader="Brakes"--> mid <!--PageHeader="brakes"--> end <!--PageHeader="Wheels"-->`
	_, header := ExtractHeader(text)
	if header != "Brakes | Wheels" {
		t.Fatalf("header: want=%q got=%q", "Brakes | Wheels", header)
	}
}

func TestExtractHeaderMarkdownFallback(t *testing.T) {
	text := "intro line\n## Torque Specifications\nmore text"
	_, header := ExtractHeader(text)
	if header != "Torque Specifications" {
		t.Fatalf("header: want=%q got=%q", "Torque Specifications", header)
	}
}

func TestExtractHeaderMarkdownTooShortSkipped(t *testing.T) {
	text := "# Short\nbody with no other headings"
	_, header := ExtractHeader(text)
	if header != "" {
		t.Fatalf("header: want empty got=%q", header)
	}
}

func TestExtractHeaderTableCaptionFallback(t *testing.T) {
	text := "some prose\n<figure id=\"table_0\">\nTable 3-2: Recommended Lubricants List\ncells here\n</figure>"
	_, header := ExtractHeader(text)
	if header != "Table: Recommended Lubricants List" {
		t.Fatalf("header: want=%q got=%q", "Table: Recommended Lubricants List", header)
	}
}

func TestExtractHeaderStripsFooterAndPageNumber(t *testing.T) {
	text := "body\n" + `<!--PageFooter="https://example.com/manual"-->` + "\n" + `<!--PageNumber="12"-->`
	cleaned, _ := ExtractHeader(text)
	if strings.Contains(cleaned, "<!--Page") {
		t.Fatalf("markers not stripped: %q", cleaned)
	}
}
