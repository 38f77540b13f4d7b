package export

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Filename builds "<part>_<part>_...<suffix>.<ext>" with every run of
// non-alphanumeric characters collapsed to a single underscore.
func Filename(ext string, parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(nonAlnum.ReplaceAllString(p, "_"), "_")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, "export")
	}
	return strings.Join(cleaned, "_") + "." + ext
}
