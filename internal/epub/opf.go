package epub

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yuanying/readercore/internal/archive"
)

// parseOPF stream-parses an OPF package document.
// opfPath is the archive path of the document; manifest hrefs are resolved against it.
// A malformed text node yields an empty value instead of failing the whole parse.
func parseOPF(r io.Reader, opfPath string) (*Package, error) {
	d := xml.NewDecoder(r)
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity
	d.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		// Package documents are UTF-8 in practice; accept other labels as-is.
		return input, nil
	}

	pkg := &Package{
		OPFPath:  opfPath,
		Manifest: make(map[string]ManifestItem),
	}

	var (
		uniqueRef   string
		identifiers = make(map[string]string) // id attr -> text
		firstID     string
		sawPackage  bool
	)

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if sawPackage {
				// Keep what was read before the damage.
				break
			}
			return nil, fmt.Errorf("failed to parse OPF XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "package":
			sawPackage = true
			uniqueRef = attr(start, "unique-identifier")
		case "identifier":
			text := readText(d)
			if id := attr(start, "id"); id != "" {
				identifiers[id] = text
			}
			if firstID == "" {
				firstID = text
			}
		case "title":
			setFirst(&pkg.Metadata.Title, readText(d))
		case "description":
			setFirst(&pkg.Metadata.Description, readText(d))
		case "language":
			setFirst(&pkg.Metadata.Language, readText(d))
		case "publisher":
			setFirst(&pkg.Metadata.Publisher, readText(d))
		case "date":
			setFirst(&pkg.Metadata.Date, readText(d))
		case "creator":
			if text := readText(d); text != "" {
				pkg.Metadata.Creators = append(pkg.Metadata.Creators, text)
			}
		case "subject":
			if text := readText(d); text != "" {
				pkg.Metadata.Subjects = append(pkg.Metadata.Subjects, text)
			}
		case "meta":
			// EPUB 2.0 cover meta element
			if strings.EqualFold(attr(start, "name"), "cover") && pkg.Metadata.CoverID == "" {
				pkg.Metadata.CoverID = strings.TrimSpace(attr(start, "content"))
			}
		case "item":
			id := attr(start, "id")
			if id == "" {
				continue
			}
			item := ManifestItem{
				ID:         id,
				Href:       archive.ResolveHref(opfPath, attr(start, "href")),
				MediaType:  attr(start, "media-type"),
				Properties: strings.Fields(attr(start, "properties")),
			}
			if _, dup := pkg.Manifest[id]; !dup {
				pkg.ManifestOrder = append(pkg.ManifestOrder, id)
			}
			pkg.Manifest[id] = item
		case "spine":
			pkg.NCXID = attr(start, "toc")
		case "itemref":
			idref := attr(start, "idref")
			if idref == "" {
				continue
			}
			pkg.Spine = append(pkg.Spine, SpineItem{
				IDRef:  idref,
				Linear: attr(start, "linear") != "no",
			})
		}
	}

	if !sawPackage {
		return nil, fmt.Errorf("failed to parse OPF XML: no package element")
	}

	// Identifier (find the one marked as unique-identifier)
	if uniqueRef != "" {
		pkg.UniqueID = identifiers[uniqueRef]
	}
	// If not found, use first one
	if pkg.UniqueID == "" {
		pkg.UniqueID = firstID
	}

	return pkg, nil
}

// readText collects the character data of the element whose start tag was just
// read, including nested elements, and consumes its end tag.
// Any decoding error yields "".
func readText(d *xml.Decoder) string {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return strings.TrimSpace(sb.String())
			}
			depth--
		}
	}
}

// attr returns the value of the attribute with the given local name.
func attr(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Local == local {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// setFirst stores value into dst unless dst already holds a non-empty value.
func setFirst(dst *string, value string) {
	if *dst == "" && value != "" {
		*dst = value
	}
}
