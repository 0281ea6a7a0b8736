// Package filename derives display titles from upload paths and URLs.
package filename

import (
	"net/url"
	"path"
	"strings"
)

var separators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// Title turns "/tmp/hotel_booking-2026.pdf" into "hotel booking 2026".
// URLs contribute their last path segment. Empty or root paths give "".
func Title(uri string) string {
	if strings.Contains(uri, "://") {
		if u, err := url.Parse(uri); err == nil {
			uri = u.Path
		}
	}
	uri = strings.ReplaceAll(uri, `\`, "/")
	name := path.Base(strings.TrimRight(uri, "/"))
	if name == "." || name == "/" || name == "" {
		return ""
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	return strings.Join(strings.Fields(separators.Replace(name)), " ")
}
