package schema

import "strings"

// Path is an ordered sequence of segments locating a value or a field.
// Data paths include array row indices; schema paths never do.
type Path []string

// Append returns a new path with the segments added. The receiver is not modified.
func (p Path) Append(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// String joins the segments with dots (e.g., "breadcrumbs.2.url").
func (p Path) String() string {
	return strings.Join(p, ".")
}

// ParsePath splits a dotted path. The empty string is the root path.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "."))
}
