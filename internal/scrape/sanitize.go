package scrape

import (
	"regexp"
	"strings"
)

var (
	reForbidden  = regexp.MustCompile(`[\\/*?:"<>|]`)
	reUnderscore = regexp.MustCompile(`_+`)
)

// SanitizeTitle turns a chapter title into a filesystem-safe name usable
// for the chapter directory and the PDF artifact.
func SanitizeTitle(title string) string {
	s := reForbidden.ReplaceAllString(title, "")
	s = strings.ReplaceAll(s, " ", "_")
	s = reUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_.- ")

	if s == "" {
		return "untitled"
	}
	return s
}
