package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// LocalSource reads the repository from a directory, typically an SMB or NFS share
// mounted by the operating system.
type LocalSource struct {
	Root    string
	Limiter *RateLimiter
}

func (s *LocalSource) resolve(rel string) (string, error) {
	info, err := os.Stat(s.Root)
	if err != nil || !info.IsDir() {
		log.Error().Err(err).Str("root", s.Root).Msg("Repository root is not reachable")
		return "", fmt.Errorf("%w: %s", ErrRemoteUnavailable, s.Root)
	}
	clean := filepath.Clean(string(filepath.Separator) + filepath.FromSlash(rel))
	return filepath.Join(s.Root, clean), nil
}

func mapLocalError(err error, p string) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s", ErrAccessDenied, p)
	default:
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
}

// List implements Lister.
func (s *LocalSource) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	items, err := os.ReadDir(full)
	if err != nil {
		return nil, mapLocalError(err, dir)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		info, err := item.Info()
		if err != nil {
			log.Warn().Err(err).Str("name", item.Name()).Msg("Skipping unreadable entry")
			continue
		}
		entries = append(entries, Entry{
			Name:    item.Name(),
			Path:    joinPath(dir, item.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   item.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Fetch implements Fetcher.
func (s *LocalSource) Fetch(ctx context.Context, file string, offset int64) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(file)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, mapLocalError(err, file)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapLocalError(err, file)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, file)
	}
	if offset > info.Size() {
		offset = 0
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrTransferInterrupted, err)
		}
	}
	log.Debug().Str("file", file).Int64("offset", offset).Msg("Opened local repository file")
	return &Stream{
		Body:   readCloser{Reader: s.Limiter.Wrap(f), Closer: f},
		Offset: offset,
		Total:  info.Size(),
	}, nil
}

// String returns the root directory.
func (s *LocalSource) String() string {
	return strings.TrimSpace(s.Root)
}
