// Package names turns entity display names into file-system-safe path
// segments and back.
//
// A segment is the sanitized display name. When two or more siblings of the
// same scope sanitize to the same segment, every one of them is suffixed with
// "-" and its id. Resolve is the inverse: an exact match on the sanitized
// name first, then a match of the trailing IDLength characters against the id.
package names

import (
	"errors"
	"fmt"
	"strings"
)

// IDLength is the length of the ids the service hands out. Resolve relies on
// it to recover the id from a disambiguated segment.
const IDLength = 8

var (
	// ErrNotFound is returned when no candidate matches a segment
	ErrNotFound = errors.New("no entity matches name")
	// ErrAmbiguous is returned when more than one candidate matches a segment
	ErrAmbiguous = errors.New("name matches more than one entity")
)

// Entity is anything with a stable id and a display name
type Entity interface {
	EntityID() string
	EntityName() string
}

var illegal = strings.NewReplacer(
	"/", "-",
	`\`, "-",
	"?", "-",
	"*", "-",
	":", "-",
	"|", "-",
	`"`, "-",
	"<", "-",
	">", "-",
)

// Sanitize replaces characters that are illegal in file names with "-" and
// strips a single trailing ".". A result that is empty or consists only of
// dots would be read as the current or parent directory, so each of its dots
// becomes "-" and an empty result becomes "-".
func Sanitize(name string) string {
	s := strings.TrimSuffix(illegal.Replace(name), ".")
	if strings.Trim(s, ".") == "" {
		return strings.Repeat("-", max(len(s), 1))
	}
	return s
}

// Disambiguate returns the path segment for item among siblings. siblings
// must be the complete comparison set of item's scope and include item.
func Disambiguate[E Entity](siblings []E, item E) string {
	return segment(tokenCounts(siblings), item)
}

// Segments computes Disambiguate for every sibling at once, keyed by id.
func Segments[E Entity](siblings []E) map[string]string {
	counts := tokenCounts(siblings)
	out := make(map[string]string, len(siblings))
	for _, s := range siblings {
		out[s.EntityID()] = segment(counts, s)
	}
	return out
}

// tokenCounts counts how many siblings share each sanitized name
func tokenCounts[E Entity](siblings []E) map[string]int {
	counts := make(map[string]int, len(siblings))
	for _, s := range siblings {
		counts[Sanitize(s.EntityName())]++
	}
	return counts
}

func segment[E Entity](counts map[string]int, item E) string {
	token := Sanitize(item.EntityName())
	if counts[token] > 1 {
		return token + "-" + item.EntityID()
	}
	return token
}

// Resolve finds the candidate a path segment was generated from. candidates
// must be the same sibling set that was passed to Disambiguate.
func Resolve[E Entity](candidates []E, segment string) (E, error) {
	var zero E

	var matches []E
	for _, c := range candidates {
		if Sanitize(c.EntityName()) == segment {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
	default:
		return zero, fmt.Errorf("%w: %q", ErrAmbiguous, segment)
	}

	if len(segment) < IDLength {
		return zero, fmt.Errorf("%w: %q", ErrNotFound, segment)
	}
	id := segment[len(segment)-IDLength:]
	for _, c := range candidates {
		if c.EntityID() == id {
			return c, nil
		}
	}
	return zero, fmt.Errorf("%w: %q", ErrNotFound, segment)
}
