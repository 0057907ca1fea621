// Package coordinate implements the artifact coordinate tuple and its
// mapping to an opaque object store key.
package coordinate

import (
	"fmt"
	"net/url"
	"strings"
)

// Coordinate is the (app, version, platform, filename) tuple that
// uniquely identifies a stored artifact. Callers never parse the derived
// object key; it is an adapter-internal concern.
type Coordinate struct {
	App      string
	Version  string
	Platform string
	Filename string
}

// Validate checks that every segment is non-empty and contains no path
// separators, which would otherwise let a coordinate escape its key
// namespace.
func (c Coordinate) Validate() error {
	segments := map[string]string{
		"app":      c.App,
		"version":  c.Version,
		"platform": c.Platform,
		"filename": c.Filename,
	}
	for name, val := range segments {
		if val == "" {
			return fmt.Errorf("coordinate %s must not be empty", name)
		}
		if strings.Contains(val, "/") || strings.Contains(val, "..") {
			return fmt.Errorf("coordinate %s must not contain path separators", name)
		}
	}
	return nil
}

// Key derives the opaque object store key for this coordinate. Each
// segment is URL-path-escaped individually so that arbitrary filenames
// cannot introduce spurious key-path structure.
func (c Coordinate) Key() string {
	return strings.Join([]string{
		url.PathEscape(c.App),
		url.PathEscape(c.Version),
		url.PathEscape(c.Platform),
		url.PathEscape(c.Filename),
	}, "/")
}

// String renders a human-readable form for logging.
func (c Coordinate) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", c.App, c.Version, c.Platform, c.Filename)
}

// Prefix returns the key prefix under which coordinates sharing (app) or
// (app, version) or (app, version, platform) live, for List operations.
func Prefix(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}
