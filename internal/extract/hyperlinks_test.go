package extract

import "testing"

func TestDetectHyperlinks(t *testing.T) {
	text := "See https://example.com/manual. Also http://example.org/parts, " +
		"and again https://example.com/manual for good measure."
	links := detectHyperlinks(text, 3)

	if len(links) != 2 {
		t.Fatalf("links: want=2 got=%d (%+v)", len(links), links)
	}
	if links[0].URL != "https://example.com/manual" {
		t.Fatalf("first url: got=%q", links[0].URL)
	}
	if links[1].URL != "http://example.org/parts" {
		t.Fatalf("second url: got=%q", links[1].URL)
	}
	for _, l := range links {
		if l.PageNum != 3 {
			t.Fatalf("page num: got=%d", l.PageNum)
		}
		if l.LinkText != l.URL {
			t.Fatalf("link text should mirror the url: %+v", l)
		}
		if l.BBox != [4]float64{} {
			t.Fatalf("text-detected links carry no rectangle: %+v", l)
		}
	}
}

func TestDetectHyperlinksStripsTrailingPunctuation(t *testing.T) {
	cases := []struct{ in, want string }{
		{"go to https://example.com/a.", "https://example.com/a"},
		{"go to https://example.com/a;", "https://example.com/a"},
		{"really? https://example.com/a?!", "https://example.com/a"},
		{"(see https://example.com/a)", "https://example.com/a"},
	}
	for _, tc := range cases {
		links := detectHyperlinks(tc.in, 0)
		if len(links) != 1 || links[0].URL != tc.want {
			t.Fatalf("detectHyperlinks(%q): got=%+v", tc.in, links)
		}
	}
}

func TestDetectHyperlinksNone(t *testing.T) {
	if links := detectHyperlinks("no urls in here, not even ftp://old.example.com", 0); links != nil {
		t.Fatalf("want nil, got %+v", links)
	}
}
