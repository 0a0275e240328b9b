// Package catalog turns the listing of one game directory into a Catalog of installers and
// patches with parsed versions.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/habedi/glm/repo"
	"github.com/habedi/glm/version"
	"github.com/rs/zerolog/log"
)

// Kind distinguishes full installers from patches.
type Kind int

const (
	FullInstaller Kind = iota
	Patch
)

func (k Kind) String() string {
	if k == Patch {
		return "patch"
	}
	return "installer"
}

// Artifact is one installer or patch file. Its identity is the remote path.
type Artifact struct {
	Kind     Kind
	From     version.Token // zero for installers
	To       version.Token
	Name     string
	Path     string
	Size     int64
	ModTime  time.Time
	Checksum Checksum
}

// ID returns the artifact identity.
func (a Artifact) ID() string { return a.Path }

func (a Artifact) String() string {
	if a.Kind == Patch {
		return fmt.Sprintf("patch(%s->%s)", a.From, a.To)
	}
	return fmt.Sprintf("installer(%s)", a.To)
}

// DuplicatePolicy picks the canonical artifact among several that produce the same version.
type DuplicatePolicy string

const (
	PolicyNewest  DuplicatePolicy = "newest"
	PolicyOldest  DuplicatePolicy = "oldest"
	PolicyLargest DuplicatePolicy = "largest"
)

// Policies lists the accepted policy names.
var Policies = []DuplicatePolicy{PolicyNewest, PolicyOldest, PolicyLargest}

// ParsePolicy accepts a policy name; the empty string selects PolicyNewest.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	if s == "" {
		return PolicyNewest, nil
	}
	for _, p := range Policies {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// prefers reports whether a should be canonical over b. Ties fall back to the smaller path.
func (p DuplicatePolicy) prefers(a, b Artifact) bool {
	switch p {
	case PolicyOldest:
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.Before(b.ModTime)
		}
	case PolicyLargest:
		if a.Size != b.Size {
			return a.Size > b.Size
		}
	default:
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.After(b.ModTime)
		}
	}
	return a.Path < b.Path
}

// Catalog is the set of artifacts for one game. It is rebuilt on every refresh and never
// modified afterwards.
type Catalog struct {
	GameID      string
	Title       string
	Developer   string
	Publisher   string
	ReleaseDate string
	Description string
	IGDBID      int
	Installers  []Artifact // canonical only, ordered by version
	Patches     []Artifact // canonical only, ordered by (from, to)
	Shadowed    []Artifact // non-canonical duplicates, kept for audit
}

// Options controls how a listing is interpreted.
type Options struct {
	Policy DuplicatePolicy
	Parser *version.Parser
	Info   *Info
	// Checksums maps an artifact path to its digest.
	Checksums map[string]Checksum
}

// FromListing builds a catalog from directory entries. Entries whose names match no
// convention are ignored, as are patches that do not move the version forward.
func FromListing(gameID string, entries []repo.Entry, opts Options) *Catalog {
	parser := opts.Parser
	if parser == nil {
		parser = version.NewParser()
	}

	c := &Catalog{GameID: gameID, Title: DefaultTitle(gameID)}
	if opts.Info != nil {
		c.applyInfo(*opts.Info)
	}

	installers := map[string][]Artifact{}
	patches := map[string][]Artifact{}
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		m, ok := parser.Match(e.Name)
		if !ok {
			continue
		}
		a := Artifact{
			To:       m.To,
			Name:     e.Name,
			Path:     e.Path,
			Size:     e.Size,
			ModTime:  e.ModTime,
			Checksum: opts.Checksums[e.Path],
		}
		if m.Kind == version.Patch {
			if !m.From.Less(m.To) {
				log.Debug().Str("game", gameID).Str("file", e.Name).Msg("Ignoring patch that does not move the version forward")
				continue
			}
			a.Kind = Patch
			a.From = m.From
			key := m.From.Key() + ">" + m.To.Key()
			patches[key] = append(patches[key], a)
			continue
		}
		a.Kind = FullInstaller
		installers[m.To.Key()] = append(installers[m.To.Key()], a)
	}

	c.Installers = c.pickCanonical(installers, opts.Policy)
	c.Patches = c.pickCanonical(patches, opts.Policy)

	sort.Slice(c.Installers, func(i, j int) bool {
		return version.Compare(c.Installers[i].To, c.Installers[j].To) < 0
	})
	sort.Slice(c.Patches, func(i, j int) bool {
		a, b := c.Patches[i], c.Patches[j]
		if cmp := version.Compare(a.From, b.From); cmp != 0 {
			return cmp < 0
		}
		return version.Compare(a.To, b.To) < 0
	})
	sort.Slice(c.Shadowed, func(i, j int) bool { return c.Shadowed[i].Path < c.Shadowed[j].Path })
	return c
}

func (c *Catalog) pickCanonical(groups map[string][]Artifact, policy DuplicatePolicy) []Artifact {
	out := make([]Artifact, 0, len(groups))
	for _, group := range groups {
		best := 0
		for i := 1; i < len(group); i++ {
			if policy.prefers(group[i], group[best]) {
				best = i
			}
		}
		out = append(out, group[best])
		for i, a := range group {
			if i != best {
				log.Info().Str("game", c.GameID).Str("canonical", group[best].Path).Str("shadowed", a.Path).
					Msg("Duplicate artifact for the same version")
				c.Shadowed = append(c.Shadowed, a)
			}
		}
	}
	return out
}

func (c *Catalog) applyInfo(info Info) {
	if info.Title != "" {
		c.Title = info.Title
	}
	c.Developer = info.Developer
	c.Publisher = info.Publisher
	c.ReleaseDate = info.ReleaseDate
	c.Description = info.Description
	c.IGDBID = info.IGDBID
}

// Artifacts returns installers followed by patches.
func (c *Catalog) Artifacts() []Artifact {
	all := make([]Artifact, 0, len(c.Installers)+len(c.Patches))
	all = append(all, c.Installers...)
	return append(all, c.Patches...)
}

// Latest returns the highest version any canonical artifact produces. It does not check
// that the version is reachable from an installer.
func (c *Catalog) Latest() version.Token {
	var tokens []version.Token
	for _, a := range c.Artifacts() {
		tokens = append(tokens, a.To)
	}
	return version.Max(tokens...)
}

// Summary is the short form of a catalog used for listings and the catalogue cache.
type Summary struct {
	GameID      string `json:"game_id"`
	Title       string `json:"title"`
	Developer   string `json:"developer,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	Description string `json:"description,omitempty"`
	Latest      string `json:"latest,omitempty"`
	Installers  int    `json:"installers"`
	Patches     int    `json:"patches"`
	Size        int64  `json:"size"`
}

// Summary condenses the catalog.
func (c *Catalog) Summary() Summary {
	s := Summary{
		GameID:      c.GameID,
		Title:       c.Title,
		Developer:   c.Developer,
		Publisher:   c.Publisher,
		ReleaseDate: c.ReleaseDate,
		Description: c.Description,
		Installers:  len(c.Installers),
		Patches:     len(c.Patches),
	}
	if latest := c.Latest(); !latest.IsZero() {
		s.Latest = latest.String()
	}
	for _, a := range c.Artifacts() {
		s.Size += a.Size
	}
	return s
}
