package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/readercore/internal/archive"
)

const ncxMediaType = "application/x-dtbncx+xml"

// NCX represents the parsed navigation control structure from NCX or NAV document.
type NCX struct {
	UID       string
	Depth     int
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint represents a single navigation point in the table of contents.
type NavPoint struct {
	ID          string
	PlayOrder   int
	Label       string
	ContentPath string // fragment-free, absolute path within EPUB
	Fragment    string // fragment identifier (without #)
	Children    []NavPoint
}

type ncxDocument struct {
	Head struct {
		Meta []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"head"`
	DocTitle string `xml:"docTitle>text"`
	NavMap   struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	ID        string `xml:"id,attr"`
	PlayOrder string `xml:"playOrder,attr"`
	Label     string `xml:"navLabel>text"`
	Content   struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// LoadNCX loads the table of contents of pkg. The NCX document named by the
// spine is preferred; the EPUB 3 navigation document is the fallback.
// It returns nil, nil when the book carries neither.
func LoadNCX(r *archive.Reader, pkg *Package) (*NCX, error) {
	if ncxPath, ok := findNCXPath(pkg); ok {
		data, err := r.ReadFile(ncxPath)
		switch {
		case err == nil:
			return parseNCX(data, ncxPath)
		case !errors.Is(err, archive.ErrEntryNotFound):
			return nil, fmt.Errorf("failed to read NCX: %w", err)
		}
	}

	navPath, ok := findNAVPath(pkg)
	if !ok {
		return nil, nil
	}
	data, err := r.ReadFile(navPath)
	if err != nil {
		if errors.Is(err, archive.ErrEntryNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read navigation document: %w", err)
	}
	return parseNAV(data, navPath)
}

// loadTOC returns navigation labels keyed by archive path. A missing or
// unreadable table of contents yields an empty map.
func loadTOC(r *archive.Reader, pkg *Package) map[string]string {
	ncx, err := LoadNCX(r, pkg)
	if err != nil || ncx == nil {
		return map[string]string{}
	}
	return ncx.Titles()
}

// Titles flattens the navigation tree into a path to label map.
// The first label seen for a document wins.
func (n *NCX) Titles() map[string]string {
	titles := make(map[string]string)
	var walk func(points []NavPoint)
	walk = func(points []NavPoint) {
		for _, np := range points {
			if np.ContentPath != "" && np.Label != "" {
				if _, seen := titles[np.ContentPath]; !seen {
					titles[np.ContentPath] = np.Label
				}
			}
			walk(np.Children)
		}
	}
	walk(n.NavPoints)
	return titles
}

func findNCXPath(pkg *Package) (string, bool) {
	if item, ok := pkg.Manifest[pkg.NCXID]; ok && item.Href != "" {
		return item.Href, true
	}
	for _, id := range pkg.ManifestOrder {
		if item := pkg.Manifest[id]; item.MediaType == ncxMediaType && item.Href != "" {
			return item.Href, true
		}
	}
	return "", false
}

func findNAVPath(pkg *Package) (string, bool) {
	for _, id := range pkg.ManifestOrder {
		if item := pkg.Manifest[id]; item.HasProperty("nav") && item.Href != "" {
			return item.Href, true
		}
	}
	return "", false
}

// parseNCX parses an NCX document located at docPath.
func parseNCX(data []byte, docPath string) (*NCX, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity

	var doc ncxDocument
	if err := d.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX: %w", err)
	}

	ncx := &NCX{DocTitle: collapseSpace(doc.DocTitle)}
	for _, m := range doc.Head.Meta {
		switch m.Name {
		case "dtb:uid":
			ncx.UID = strings.TrimSpace(m.Content)
		case "dtb:depth":
			ncx.Depth, _ = strconv.Atoi(strings.TrimSpace(m.Content))
		}
	}
	ncx.NavPoints = convertNavPoints(doc.NavMap.NavPoints, docPath)
	return ncx, nil
}

func convertNavPoints(points []ncxNavPoint, docPath string) []NavPoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]NavPoint, 0, len(points))
	for _, p := range points {
		order, _ := strconv.Atoi(strings.TrimSpace(p.PlayOrder))
		np := NavPoint{
			ID:        p.ID,
			PlayOrder: order,
			Label:     collapseSpace(p.Label),
			Children:  convertNavPoints(p.Children, docPath),
		}
		np.ContentPath, np.Fragment = resolveNavTarget(docPath, p.Content.Src)
		out = append(out, np)
	}
	return out
}

// parseNAV parses the toc nav element of an EPUB 3 navigation document.
func parseNAV(data []byte, docPath string) (*NCX, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse navigation document: %w", err)
	}

	nav := doc.Find("nav").FilterFunction(func(_ int, s *goquery.Selection) bool {
		for _, t := range strings.Fields(s.AttrOr("epub:type", "")) {
			if t == "toc" {
				return true
			}
		}
		return false
	}).First()
	if nav.Length() == 0 {
		nav = doc.Find("nav").First()
	}

	ncx := &NCX{DocTitle: collapseSpace(doc.Find("title").First().Text())}
	order := 0
	ncx.NavPoints = parseNavList(nav.Find("ol").First(), docPath, &order)
	return ncx, nil
}

func parseNavList(list *goquery.Selection, docPath string, order *int) []NavPoint {
	var out []NavPoint
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		*order++
		np := NavPoint{
			ID:        "nav-" + strconv.Itoa(*order),
			PlayOrder: *order,
		}

		// The item's own link, ignoring links of nested lists.
		link := li.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
			return a.ParentsUntilSelection(li).Filter("ol").Length() == 0
		}).First()
		if link.Length() > 0 {
			np.Label = collapseSpace(link.Text())
			np.ContentPath, np.Fragment = resolveNavTarget(docPath, link.AttrOr("href", ""))
		} else {
			np.Label = collapseSpace(li.Contents().Not("ol").Text())
		}

		np.Children = parseNavList(li.ChildrenFiltered("ol").First(), docPath, order)
		out = append(out, np)
	})
	return out
}

func resolveNavTarget(docPath, src string) (contentPath, fragment string) {
	p, fragment := splitFragment(strings.TrimSpace(src))
	if p == "" {
		return "", fragment
	}
	return archive.ResolveHref(docPath, p), fragment
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
