package epub

import (
	"testing"

	"github.com/yuanying/readercore/internal/archive"
)

func TestSplitFragment(t *testing.T) {
	tests := []struct {
		name         string
		src          string
		wantPath     string
		wantFragment string
	}{
		{name: "path with fragment", src: "chapter1.xhtml#sec1", wantPath: "chapter1.xhtml", wantFragment: "sec1"},
		{name: "path without fragment", src: "chapter1.xhtml", wantPath: "chapter1.xhtml"},
		{name: "fragment only", src: "#sec1", wantFragment: "sec1"},
		{name: "empty string"},
		{name: "multiple hash signs", src: "chapter1.xhtml#sec1#subsec2", wantPath: "chapter1.xhtml", wantFragment: "sec1#subsec2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPath, gotFragment := splitFragment(tt.src)
			if gotPath != tt.wantPath {
				t.Errorf("splitFragment(%q) path = %q, want %q", tt.src, gotPath, tt.wantPath)
			}
			if gotFragment != tt.wantFragment {
				t.Errorf("splitFragment(%q) fragment = %q, want %q", tt.src, gotFragment, tt.wantFragment)
			}
		})
	}
}

func TestParseNCX_NestedNavPoints(t *testing.T) {
	ncxXML := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="nested-uid"/>
    <meta name="dtb:depth" content="3"/>
  </head>
  <docTitle><text>Nested Book</text></docTitle>
  <navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text>Part 1</text></navLabel>
      <content src="part1.xhtml"/>
      <navPoint id="np2" playOrder="2">
        <navLabel><text>Chapter 1.1</text></navLabel>
        <content src="ch1_1.xhtml"/>
        <navPoint id="np3" playOrder="3">
          <navLabel><text>Section 1.1.1</text></navLabel>
          <content src="ch1_1.xhtml#sec1"/>
        </navPoint>
      </navPoint>
    </navPoint>
    <navPoint id="np4" playOrder="4">
      <navLabel><text>  Part
        2 </text></navLabel>
      <content src="part2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`)

	ncx, err := parseNCX(ncxXML, "OEBPS/toc.ncx")
	if err != nil {
		t.Fatalf("parseNCX() error = %v", err)
	}

	if ncx.UID != "nested-uid" || ncx.Depth != 3 || ncx.DocTitle != "Nested Book" {
		t.Errorf("head = %q/%d/%q", ncx.UID, ncx.Depth, ncx.DocTitle)
	}
	if len(ncx.NavPoints) != 2 {
		t.Fatalf("got %d top-level nav points, want 2", len(ncx.NavPoints))
	}

	p1 := ncx.NavPoints[0]
	if p1.ID != "np1" || p1.PlayOrder != 1 || p1.ContentPath != "OEBPS/part1.xhtml" {
		t.Errorf("NavPoints[0] = %+v", p1)
	}
	if len(p1.Children) != 1 || len(p1.Children[0].Children) != 1 {
		t.Fatalf("unexpected nesting under Part 1: %+v", p1.Children)
	}
	sec := p1.Children[0].Children[0]
	if sec.ContentPath != "OEBPS/ch1_1.xhtml" || sec.Fragment != "sec1" {
		t.Errorf("section = %q#%q", sec.ContentPath, sec.Fragment)
	}
	if ncx.NavPoints[1].Label != "Part 2" {
		t.Errorf("NavPoints[1].Label = %q, want %q", ncx.NavPoints[1].Label, "Part 2")
	}
}

func TestParseNCX_PathNormalization(t *testing.T) {
	ncxXML := []byte(`<ncx><navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text>Chapter 1</text></navLabel>
      <content src="../text/chapter1.xhtml"/>
    </navPoint>
  </navMap></ncx>`)

	ncx, err := parseNCX(ncxXML, "OEBPS/toc/toc.ncx")
	if err != nil {
		t.Fatalf("parseNCX() error = %v", err)
	}
	if len(ncx.NavPoints) != 1 {
		t.Fatalf("got %d nav points, want 1", len(ncx.NavPoints))
	}
	if want := "OEBPS/text/chapter1.xhtml"; ncx.NavPoints[0].ContentPath != want {
		t.Errorf("ContentPath = %q, want %q", ncx.NavPoints[0].ContentPath, want)
	}
}

func TestParseNAV(t *testing.T) {
	navHTML := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Navigation</title></head>
<body>
<nav epub:type="landmarks">
  <ol><li><a href="cover.xhtml">Cover</a></li></ol>
</nav>
<nav epub:type="toc">
  <h1>Table of Contents</h1>
  <ol>
    <li><a href="chapter1.xhtml">Chapter 1</a></li>
    <li><span><a href="chapter2.xhtml#top">Chapter 2</a></span></li>
    <li>Part 3
      <ol><li><a href="../chapter3.xhtml">Chapter 3</a></li></ol>
    </li>
  </ol>
</nav>
</body>
</html>`)

	ncx, err := parseNAV(navHTML, "OEBPS/nav/nav.xhtml")
	if err != nil {
		t.Fatalf("parseNAV() error = %v", err)
	}
	if len(ncx.NavPoints) != 3 {
		t.Fatalf("got %d nav points, want 3", len(ncx.NavPoints))
	}

	tests := []struct {
		np       NavPoint
		id       string
		label    string
		path     string
		fragment string
	}{
		{ncx.NavPoints[0], "nav-1", "Chapter 1", "OEBPS/nav/chapter1.xhtml", ""},
		{ncx.NavPoints[1], "nav-2", "Chapter 2", "OEBPS/nav/chapter2.xhtml", "top"},
		{ncx.NavPoints[2], "nav-3", "Part 3", "", ""},
	}
	for _, tt := range tests {
		if tt.np.ID != tt.id || tt.np.Label != tt.label || tt.np.ContentPath != tt.path || tt.np.Fragment != tt.fragment {
			t.Errorf("nav point = %+v, want id=%s label=%s path=%s fragment=%s", tt.np, tt.id, tt.label, tt.path, tt.fragment)
		}
	}

	children := ncx.NavPoints[2].Children
	if len(children) != 1 {
		t.Fatalf("got %d children, want 1", len(children))
	}
	if children[0].Label != "Chapter 3" || children[0].ContentPath != "OEBPS/chapter3.xhtml" || children[0].PlayOrder != 4 {
		t.Errorf("child = %+v", children[0])
	}
}

func TestLoadNCX(t *testing.T) {
	ncxContent := `<ncx><head><meta name="dtb:uid" content="ncx-uid"/></head><navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text>NCX Chapter 1</text></navLabel>
      <content src="chapter1.xhtml"/>
    </navPoint>
  </navMap></ncx>`
	navContent := `<html><body><nav epub:type="toc"><ol>
    <li><a href="chapter1.xhtml">NAV Chapter 1</a></li>
    <li><a href="chapter2.xhtml">NAV Chapter 2</a></li>
  </ol></nav></body></html>`

	manifest := map[string]ManifestItem{
		"ncx": {ID: "ncx", Href: "OEBPS/toc.ncx", MediaType: "application/x-dtbncx+xml"},
		"nav": {ID: "nav", Href: "OEBPS/nav.xhtml", MediaType: "application/xhtml+xml", Properties: []string{"nav"}},
	}

	tests := []struct {
		name      string
		entries   []zipEntry
		ncxID     string
		wantNil   bool
		wantLabel string
		wantCount int
	}{
		{
			name:      "ncx preferred",
			entries:   []zipEntry{{"OEBPS/toc.ncx", ncxContent}, {"OEBPS/nav.xhtml", navContent}},
			ncxID:     "ncx",
			wantLabel: "NCX Chapter 1",
			wantCount: 1,
		},
		{
			name:      "ncx found by media type",
			entries:   []zipEntry{{"OEBPS/toc.ncx", ncxContent}},
			wantLabel: "NCX Chapter 1",
			wantCount: 1,
		},
		{
			name:      "nav fallback when ncx entry is missing",
			entries:   []zipEntry{{"OEBPS/nav.xhtml", navContent}},
			ncxID:     "ncx",
			wantLabel: "NAV Chapter 1",
			wantCount: 2,
		},
		{
			name:    "neither exists",
			entries: []zipEntry{{"OEBPS/chapter1.xhtml", "<html/>"}},
			ncxID:   "ncx",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := archive.Open(createEPUB(t, tt.entries...))
			if err != nil {
				t.Fatalf("archive.Open() error = %v", err)
			}
			defer r.Close()

			pkg := &Package{NCXID: tt.ncxID, Manifest: manifest, ManifestOrder: []string{"ncx", "nav"}}
			ncx, err := LoadNCX(r, pkg)
			if err != nil {
				t.Fatalf("LoadNCX() error = %v", err)
			}
			if tt.wantNil {
				if ncx != nil {
					t.Errorf("LoadNCX() = %+v, want nil", ncx)
				}
				return
			}
			if ncx == nil {
				t.Fatal("LoadNCX() returned nil")
			}
			if len(ncx.NavPoints) != tt.wantCount {
				t.Fatalf("got %d nav points, want %d", len(ncx.NavPoints), tt.wantCount)
			}
			if ncx.NavPoints[0].Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", ncx.NavPoints[0].Label, tt.wantLabel)
			}
		})
	}
}

func TestNCXTitles_FirstLabelWins(t *testing.T) {
	ncx := &NCX{NavPoints: []NavPoint{
		{Label: "Part 1", ContentPath: "a.xhtml", Children: []NavPoint{
			{Label: "Section", ContentPath: "a.xhtml", Fragment: "s1"},
			{Label: "Chapter B", ContentPath: "b.xhtml"},
		}},
		{Label: "", ContentPath: "c.xhtml"},
	}}

	got := ncx.Titles()
	if got["a.xhtml"] != "Part 1" || got["b.xhtml"] != "Chapter B" {
		t.Errorf("Titles() = %v", got)
	}
	if _, ok := got["c.xhtml"]; ok {
		t.Errorf("empty labels should not be recorded: %v", got)
	}
}
