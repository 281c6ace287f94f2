package epub

// Package represents the resolved structure of an EPUB file
type Package struct {
	OPFPath       string
	UniqueID      string
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // ids in document order
	Spine         []SpineItem
	NCXID         string // spine toc attribute
	CoverHref     string // archive path of the cover image, "" if none

	// entry sizes and titles collected while resolving, keyed by archive path
	sizes     map[string]int64
	titles    map[string]string // from the table of contents
	docTitles map[string]string // from document <title> elements
}

// Metadata represents the metadata section of the OPF
type Metadata struct {
	Title       string
	Creators    []string
	Language    string
	Publisher   string
	Date        string
	Description string
	Subjects    []string
	CoverID     string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID         string
	Href       string // archive path, resolved against the OPF directory
	MediaType  string
	Properties []string
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// HasProperty reports whether the manifest item declares prop.
func (m ManifestItem) HasProperty(prop string) bool {
	for _, p := range m.Properties {
		if p == prop {
			return true
		}
	}
	return false
}
