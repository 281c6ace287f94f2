package epub

import (
	"fmt"
	"strings"

	"github.com/yuanying/readercore/internal/archive"
	"github.com/yuanying/readercore/internal/imagecache"
	"github.com/yuanying/readercore/internal/source"
)

// coverIDAliases are manifest ids conventionally used for cover images when
// no meta element names one.
var coverIDAliases = []string{"coverimage", "cover_image", "cover-image"}

// detectCover returns the archive path of the cover image.
// Methods are tried in priority order:
//  1. meta name="cover" (EPUB 2.0)
//  2. a manifest item whose id is a known cover alias
//  3. properties="cover-image" (EPUB 3.0)
//
// Returns "" if no cover image is found.
func (p *Package) detectCover() string {
	if p.Metadata.CoverID != "" {
		if item, ok := p.Manifest[p.Metadata.CoverID]; ok && item.Href != "" {
			return item.Href
		}
	}

	for _, id := range p.ManifestOrder {
		for _, alias := range coverIDAliases {
			if strings.EqualFold(id, alias) && p.Manifest[id].Href != "" {
				return p.Manifest[id].Href
			}
		}
	}

	for _, id := range p.ManifestOrder {
		item := p.Manifest[id]
		if item.HasProperty("cover-image") && item.Href != "" {
			return item.Href
		}
	}

	return ""
}

// ExtractCover copies the cover image of pkg into the image cache and returns
// its local path. It returns "" without error when the book has no cover.
func ExtractCover(src source.Source, pkg *Package, cache *imagecache.Cache) (string, error) {
	if pkg.CoverHref == "" {
		return "", nil
	}

	data, err := archive.ExtractEntry(src, pkg.CoverHref)
	if err != nil {
		return "", fmt.Errorf("failed to read cover %s: %w", pkg.CoverHref, err)
	}

	img, err := cache.Put(src.Name()+"#"+pkg.CoverHref, pkg.mediaType(pkg.CoverHref), data, true)
	if err != nil {
		return "", fmt.Errorf("failed to cache cover %s: %w", pkg.CoverHref, err)
	}
	return img.Path, nil
}

// mediaType returns the manifest media type declared for an archive path.
func (p *Package) mediaType(href string) string {
	for _, item := range p.Manifest {
		if item.Href == href {
			return item.MediaType
		}
	}
	return ""
}
