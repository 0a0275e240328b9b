// Package repo gives read access to the remote game repository: one directory per game
// holding installers, patches and an optional info file.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrRemoteUnavailable   = errors.New("remote repository unavailable")
	ErrAccessDenied        = errors.New("access to remote repository denied")
	ErrNotFound            = errors.New("remote path not found")
	ErrTransferInterrupted = errors.New("transfer interrupted")
)

// Entry is one item of a directory listing. Path is slash separated and relative to the
// repository root.
type Entry struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Stream is an open remote file positioned at Offset. Total is the full file size, or -1
// when the backend cannot tell.
type Stream struct {
	Body   io.ReadCloser
	Offset int64
	Total  int64
}

// Lister lists a directory of the repository.
type Lister interface {
	List(ctx context.Context, dir string) ([]Entry, error)
}

// Fetcher opens a repository file for reading. A positive offset resumes a previous
// transfer at that byte.
type Fetcher interface {
	Fetch(ctx context.Context, file string, offset int64) (*Stream, error)
}

// Source is a complete repository backend.
type Source interface {
	Lister
	Fetcher
}

// Options selects and configures a backend.
type Options struct {
	URL       string
	Username  string
	Password  string
	BaseDir   string
	RateLimit int64 // bytes per second, 0 means unlimited
	Retries   int
}

// Open returns the HTTP backend for http(s) URLs and the mounted-directory backend for
// everything else.
func Open(opts Options) (Source, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("repository url is empty")
	}
	limiter := NewRateLimiter(opts.RateLimit)

	lower := strings.ToLower(opts.URL)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		base := strings.TrimRight(opts.URL, "/")
		if opts.BaseDir != "" {
			base += "/" + strings.Trim(opts.BaseDir, "/")
		}
		log.Debug().Str("url", base).Msg("Using HTTP repository backend")
		src := NewHTTPSource(base, opts.Username, opts.Password)
		src.Limiter = limiter
		if opts.Retries > 0 {
			src.MaxRetries = opts.Retries
		}
		return src, nil
	}

	root := strings.TrimPrefix(opts.URL, "file://")
	if opts.BaseDir != "" {
		root = path.Join(root, opts.BaseDir)
	}
	log.Debug().Str("root", root).Msg("Using local repository backend")
	return &LocalSource{Root: root, Limiter: limiter}, nil
}

// ListGames returns the game directories at the repository root sorted by name.
// Hidden and underscore-prefixed directories are skipped.
func ListGames(ctx context.Context, src Lister) ([]Entry, error) {
	entries, err := src.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var games []Entry
	for _, e := range entries {
		if !e.IsDir || strings.HasPrefix(e.Name, ".") || strings.HasPrefix(e.Name, "_") {
			continue
		}
		games = append(games, e)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
	return games, nil
}

// joinPath joins repository path elements with forward slashes.
func joinPath(elem ...string) string {
	return strings.TrimPrefix(path.Join(elem...), "/")
}

type readCloser struct {
	io.Reader
	io.Closer
}
