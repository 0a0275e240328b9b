package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/habedi/glm/repo"
	"github.com/habedi/glm/version"
	"github.com/rs/zerolog/log"
)

// maxMetaFileSize bounds how much of an info or checksum file is read.
const maxMetaFileSize = 1 << 20

// Builder reads one game directory from a repository and assembles its Catalog.
type Builder struct {
	Source repo.Source
	Policy DuplicatePolicy
	Parser *version.Parser
}

// Build lists the game directory and its immediate subdirectories, reads the optional info
// file and checksum sidecars, and returns a fresh catalog.
func (b *Builder) Build(ctx context.Context, gameID string) (*Catalog, error) {
	log.Debug().Str("game", gameID).Msg("Building catalog")
	top, err := b.Source.List(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game %s: %w", gameID, err)
	}

	entries := append([]repo.Entry(nil), top...)
	for _, e := range top {
		if !e.IsDir || strings.HasPrefix(e.Name, ".") || strings.HasPrefix(e.Name, "_") {
			continue
		}
		sub, err := b.Source.List(ctx, e.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", e.Path, err)
		}
		entries = append(entries, sub...)
	}

	opts := Options{
		Policy:    b.Policy,
		Parser:    b.Parser,
		Info:      b.readInfo(ctx, gameID, top),
		Checksums: b.readChecksums(ctx, entries),
	}
	c := FromListing(gameID, entries, opts)
	log.Info().Str("game", gameID).Int("installers", len(c.Installers)).Int("patches", len(c.Patches)).
		Int("shadowed", len(c.Shadowed)).Msg("Catalog built")
	return c, nil
}

func (b *Builder) readInfo(ctx context.Context, gameID string, top []repo.Entry) *Info {
	best := -1
	var file repo.Entry
	for _, e := range top {
		if e.IsDir {
			continue
		}
		if rank, ok := isInfoFile(e.Name); ok && (best < 0 || rank < best) {
			best, file = rank, e
		}
	}
	if best < 0 {
		return nil
	}

	content, err := b.readSmall(ctx, file.Path)
	if err != nil {
		log.Warn().Err(err).Str("game", gameID).Str("file", file.Path).Msg("Failed to read info file")
		return nil
	}
	info, err := ParseInfo(bytes.NewReader(content))
	if err != nil {
		log.Warn().Err(err).Str("game", gameID).Str("file", file.Path).Msg("Failed to parse info file")
		return nil
	}
	return &info
}

// readChecksums collects sidecar digests keyed by the path of the file they describe.
// When several algorithms exist for one file the strongest wins.
func (b *Builder) readChecksums(ctx context.Context, entries []repo.Entry) map[string]Checksum {
	present := map[string]bool{}
	for _, e := range entries {
		if !e.IsDir {
			present[e.Path] = true
		}
	}

	sums := map[string]Checksum{}
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		target, algo, ok := SidecarTarget(e.Name)
		if !ok {
			continue
		}
		targetPath := e.Path[:len(e.Path)-len(e.Name)] + target
		if !present[targetPath] {
			continue
		}
		if prev, ok := sums[targetPath]; ok && algoRank(prev.Algo) >= algoRank(algo) {
			continue
		}
		content, err := b.readSmall(ctx, e.Path)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Path).Msg("Failed to read checksum file")
			continue
		}
		sum, err := ParseSidecar(algo, content)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Path).Msg("Ignoring malformed checksum file")
			continue
		}
		sums[targetPath] = sum
	}
	return sums
}

func algoRank(algo string) int {
	switch algo {
	case "sha512":
		return 4
	case "sha256":
		return 3
	case "sha1":
		return 2
	case "md5":
		return 1
	}
	return 0
}

func (b *Builder) readSmall(ctx context.Context, p string) ([]byte, error) {
	stream, err := b.Source.Fetch(ctx, p, 0)
	if err != nil {
		return nil, err
	}
	defer stream.Body.Close()
	return io.ReadAll(io.LimitReader(stream.Body, maxMetaFileSize))
}
