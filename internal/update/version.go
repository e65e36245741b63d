package update

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "launchpad/internal/errors"
)

// segmentDelimiter separates the numeric parts of a version identifier.
const segmentDelimiter = "."

// Version is an opaque release version identifier such as "2.0.1".
// The zero value is Absent and stands for "nothing installed".
type Version struct {
	raw     string
	present bool
}

// Absent is the installed version reported when no artifact exists.
var Absent = Version{}

// NewVersion wraps a version token. Surrounding whitespace is dropped.
func NewVersion(s string) Version {
	return Version{raw: strings.TrimSpace(s), present: true}
}

// IsAbsent reports whether v is the Absent sentinel.
func (v Version) IsAbsent() bool {
	return !v.present
}

// String returns the version token, or "none" for Absent.
func (v Version) String() string {
	if !v.present {
		return "none"
	}
	return v.raw
}

// Ordering is the result of comparing two versions.
type Ordering int

const (
	// Older means the left-hand version precedes the right-hand one.
	Older Ordering = iota - 1
	// Same means both versions identify the same release.
	Same
	// Newer means the left-hand version follows the right-hand one.
	Newer
)

// String returns the string representation of an Ordering.
func (o Ordering) String() string {
	switch o {
	case Older:
		return "older"
	case Same:
		return "same"
	case Newer:
		return "newer"
	default:
		return "unknown"
	}
}

// Compare orders a against b.
//
// Absent is older than every concrete version. Concrete versions are split on
// "." (an optional leading "v" is ignored) and compared numerically segment by
// segment; the shorter one is padded with zeros, so "1.2" and "1.2.0" are Same.
// A segment that is not a non-negative integer yields a malformed_version error.
func Compare(a, b Version) (Ordering, error) {
	switch {
	case a.IsAbsent() && b.IsAbsent():
		return Same, nil
	case a.IsAbsent():
		return Older, nil
	case b.IsAbsent():
		return Newer, nil
	}

	left, err := parseSegments(a.raw)
	if err != nil {
		return Same, err
	}
	right, err := parseSegments(b.raw)
	if err != nil {
		return Same, err
	}

	n := max(len(left), len(right))
	for i := 0; i < n; i++ {
		if c := compareUint(segmentAt(left, i), segmentAt(right, i)); c != Same {
			return c, nil
		}
	}
	return Same, nil
}

// NeedsUpdate reports whether installed should be replaced by latest.
// Comparison failures count as "needs update"; the error is returned so the
// caller can log it.
func NeedsUpdate(installed, latest Version) (bool, error) {
	ord, err := Compare(installed, latest)
	if err != nil {
		return true, err
	}
	return ord == Older, nil
}

func parseSegments(s string) ([]uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
	if trimmed == "" {
		return nil, malformed(s, fmt.Errorf("empty version"))
	}
	parts := strings.Split(trimmed, segmentDelimiter)
	segments := make([]uint64, 0, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, malformed(s, fmt.Errorf("segment %d %q is not a non-negative integer", i+1, part))
		}
		segments = append(segments, n)
	}
	return segments, nil
}

func malformed(s string, err error) error {
	return apperrors.New(apperrors.CodeMalformedVersion, fmt.Sprintf("malformed version %q", s), err)
}

func segmentAt(segments []uint64, i int) uint64 {
	if i < len(segments) {
		return segments[i]
	}
	return 0
}

func compareUint(a, b uint64) Ordering {
	if a < b {
		return Older
	}
	if a > b {
		return Newer
	}
	return Same
}
