package archive

import (
	"net/url"
	"path"
	"strings"
)

// syntheticRoot anchors archive paths so RFC 3986 reference resolution can be
// applied to them. It never leaves this package.
var syntheticRoot = &url.URL{Scheme: "epub", Host: "archive", Path: "/"}

// ResolveHref resolves href (as found in OPF or XHTML documents) against the
// archive path of the document that contains it. The result is URL-decoded,
// fragment-free and relative to the archive root. An empty string is returned
// for external references and for paths escaping the archive.
func ResolveHref(basePath, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		// Unescaped '%' and similar: treat the href as a literal path.
		ref = &url.URL{Path: href}
	}
	if ref.Scheme != "" || ref.Host != "" {
		return ""
	}
	if ref.Path == "" {
		// Fragment-only reference points at the base document itself.
		return normalizePath(basePath)
	}

	base := syntheticRoot.ResolveReference(&url.URL{Path: normalizePath(basePath)})
	resolved := base.ResolveReference(&url.URL{Path: ref.Path})

	p := strings.TrimPrefix(resolved.Path, "/")
	if !IsSafePath(p) {
		return ""
	}
	return p
}

// StripFragment removes a "#fragment" suffix.
func StripFragment(href string) string {
	p, _, _ := strings.Cut(href, "#")
	return p
}

// Dir returns the directory part of an archive path, "" for root entries.
func Dir(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

// IsSafePath reports whether p stays inside the archive root.
func IsSafePath(p string) bool {
	if p == "" {
		return false
	}
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return true
}
