package libraryclient

import "strings"

// PlaceholderCover is shown for books without a cover image.
const PlaceholderCover = "https://placehold.co/300x450?text=No+Cover"

// CoverURL resolves a cover reference. Absolute URLs pass through, an empty
// reference gives the placeholder and anything else is a file under /uploads.
func CoverURL(apiBase, ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return PlaceholderCover
	case strings.HasPrefix(ref, "http"):
		return ref
	default:
		return strings.TrimRight(apiBase, "/") + "/uploads/" + ref
	}
}
