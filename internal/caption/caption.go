// Package caption reconnects uploaded media with the captions authors write
// in a free-text "filename: caption" field.
package caption

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// hashSuffix matches the "_<hex>" the media store inserts before the
// extension when it renames an upload.
var hashSuffix = regexp.MustCompile(`_[0-9a-fA-F]+(\.[A-Za-z0-9]+)$`)

// Map maps a filename to its caption.
type Map map[string]string

// Parse builds a Map from newline-separated "filename: caption" lines.
// Lines are split on the first colon. Each filename is also registered with
// hyphens and underscores swapped; an explicit line always wins over such a
// variant.
func Parse(blob string) Map {
	m := make(Map)
	explicit := make(map[string]bool)

	for _, line := range strings.Split(blob, "\n") {
		name, desc, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		desc = strings.TrimSpace(desc)
		if name == "" || desc == "" {
			continue
		}

		m[name] = desc
		explicit[name] = true
		for _, v := range variants(name) {
			if !explicit[v] {
				m[v] = desc
			}
		}
	}
	return m
}

func variants(name string) []string {
	var out []string
	if v := strings.ReplaceAll(name, "-", "_"); v != name {
		out = append(out, v)
	}
	if v := strings.ReplaceAll(name, "_", "-"); v != name {
		out = append(out, v)
	}
	return out
}

// Lookup finds the caption for filename: exact match first, then with a
// trailing hash suffix removed.
func (m Map) Lookup(filename string) (string, bool) {
	if filename == "" || len(m) == 0 {
		return "", false
	}
	if c, ok := m[filename]; ok {
		return c, true
	}
	if stripped := StripHash(filename); stripped != filename {
		if c, ok := m[stripped]; ok {
			return c, true
		}
	}
	return "", false
}

// Describe returns the best caption for the media at mediaURL, falling back
// to alt and then to "".
func (m Map) Describe(mediaURL, alt string) string {
	if c, ok := m.Lookup(FilenameFromURL(mediaURL)); ok {
		return c
	}
	return strings.TrimSpace(alt)
}

// StripHash removes a "_<hex>" suffix placed before the extension.
func StripHash(filename string) string {
	return hashSuffix.ReplaceAllString(filename, "$1")
}

// FilenameFromURL returns the last path segment of u, without query string
// or fragment.
func FilenameFromURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if parsed, err := url.Parse(u); err == nil {
		base := path.Base(parsed.Path)
		if base == "." || base == "/" {
			return ""
		}
		return base
	}

	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	return u
}
