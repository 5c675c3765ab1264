package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFetch wraps any failed listing call
	ErrFetch = errors.New("fetch failed")
	// ErrPlayback wraps a malformed track URI or a rejected play request
	ErrPlayback = errors.New("playback failed")
	// ErrMalformedID is returned when no catalog id can be extracted from an identifier
	ErrMalformedID = errors.New("malformed identifier")
)

const trackURIPrefix = "spotify:track:"

// CatalogID strips namespace and type prefixes from a resource reference:
// "spotify:playlist:abc" and "abc" both yield "abc".
func CatalogID(ref string) (string, error) {
	id := ref
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		id = ref[i+1:]
	}

	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedID, ref)
	}
	for _, r := range id {
		if !isBase62(r) {
			return "", fmt.Errorf("%w: %q", ErrMalformedID, ref)
		}
	}
	return id, nil
}

// TrackURI returns the canonical playable URI for a track catalog id
func TrackURI(id string) string {
	return trackURIPrefix + id
}

func isBase62(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
