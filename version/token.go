package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// tokenPattern is the grammar accepted by Parse: dotted numeric segments with an optional
// leading "v" and an optional alphanumeric qualifier (e.g. "1.2", "v2.0.1", "2241b", "1.4-beta").
var tokenPattern = regexp.MustCompile(`^[vV]?(\d+(?:\.\d+)*)(?:[-+]?([A-Za-z][A-Za-z0-9]*))?$`)

// Token is an ordered, comparable version identifier.
// The zero value represents "no version".
type Token struct {
	Segments  []uint64
	Qualifier string
	raw       string
}

// Parse parses a version string. The second return value is false when the text
// does not follow the version grammar.
func Parse(s string) (Token, bool) {
	s = strings.TrimSpace(s)
	m := tokenPattern.FindStringSubmatch(s)
	if m == nil {
		return Token{}, false
	}
	return fromParts(m[1], m[2], s)
}

// MustParse is like Parse but panics on invalid input. It is meant for tests and constants.
func MustParse(s string) Token {
	t, ok := Parse(s)
	if !ok {
		panic(fmt.Sprintf("version: invalid token %q", s))
	}
	return t
}

// fromParts builds a token from the dotted numeric part and the qualifier captured by a rule.
func fromParts(numeric, qualifier, raw string) (Token, bool) {
	parts := strings.Split(numeric, ".")
	segments := make([]uint64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Token{}, false
		}
		segments = append(segments, n)
	}
	if raw == "" {
		raw = numeric + qualifier
	}
	return Token{Segments: segments, Qualifier: qualifier, raw: raw}, true
}

// IsZero reports whether the token holds no version.
func (t Token) IsZero() bool {
	return len(t.Segments) == 0
}

// Compare returns -1, 0 or +1. Numeric segments are compared left to right with missing
// trailing segments treated as zero; ties are broken by the qualifier, compared
// case-insensitively, where an empty qualifier sorts first.
func Compare(a, b Token) int {
	n := max(len(a.Segments), len(b.Segments))
	for i := 0; i < n; i++ {
		var x, y uint64
		if i < len(a.Segments) {
			x = a.Segments[i]
		}
		if i < len(b.Segments) {
			y = b.Segments[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return strings.Compare(strings.ToLower(a.Qualifier), strings.ToLower(b.Qualifier))
}

// Less reports whether t orders before o.
func (t Token) Less(o Token) bool { return Compare(t, o) < 0 }

// Equal reports whether t and o occupy the same ordering position ("1.2" equals "1.2.0").
func (t Token) Equal(o Token) bool { return Compare(t, o) == 0 }

// Key returns a canonical form that is identical for all equal tokens. It is used as a
// map key when tokens become graph nodes.
func (t Token) Key() string {
	if t.IsZero() {
		return ""
	}
	end := len(t.Segments)
	for end > 1 && t.Segments[end-1] == 0 {
		end--
	}
	parts := make([]string, end)
	for i := 0; i < end; i++ {
		parts[i] = strconv.FormatUint(t.Segments[i], 10)
	}
	key := strings.Join(parts, ".")
	if t.Qualifier != "" {
		key += "-" + strings.ToLower(t.Qualifier)
	}
	return key
}

// String returns the text the token was parsed from, or its canonical key.
func (t Token) String() string {
	if t.raw != "" {
		return t.raw
	}
	return t.Key()
}

// MarshalText implements encoding.TextMarshaler.
func (t Token) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Token) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*t = Token{}
		return nil
	}
	parsed, ok := Parse(string(text))
	if !ok {
		return fmt.Errorf("invalid version %q", string(text))
	}
	*t = parsed
	return nil
}

// Max returns the greater of the given tokens; the first one wins on equality.
func Max(tokens ...Token) Token {
	var best Token
	for i, t := range tokens {
		if i == 0 || Compare(t, best) > 0 {
			best = t
		}
	}
	return best
}
