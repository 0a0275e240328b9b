package installer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/pkg/hasher"
	"github.com/habedi/glm/repo"
	"github.com/rs/zerolog/log"
)

// staged is a fetched artifact on local disk.
type staged struct {
	path   string
	size   int64
	digest string // hex, empty when no checksum was expected
}

// fetch streams an artifact into dir while hashing it. Interrupted transfers resume from
// the bytes already written. e.Retries bounds consecutive attempts without progress; an
// attempt that received data starts the count again.
func (e *Executor) fetch(ctx context.Context, a catalog.Artifact, dir string, em emitter, base Event) (*staged, error) {
	local := filepath.Join(dir, filepath.Base(filepath.FromSlash(a.Name)))
	if a.Name == "" {
		local = filepath.Join(dir, filepath.Base(filepath.FromSlash(a.Path)))
	}
	f, err := os.OpenFile(local, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer f.Close()

	var h hash.Hash
	if a.Checksum.Known() {
		if h, err = hasher.New(a.Checksum.Algo); err != nil {
			return nil, err
		}
	}

	var offset int64
	attempts := 0
	retry := func(cause error) error {
		if attempts >= e.Retries || ctx.Err() != nil {
			return cause
		}
		attempts++
		log.Warn().Err(cause).Str("artifact", a.ID()).Int("attempt", attempts).Int64("offset", offset).Msg("Retrying transfer")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.RetryDelay):
			return nil
		}
	}

	for {
		stream, err := e.Source.Fetch(ctx, a.Path, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if IsTransient(err) {
				if rerr := retry(err); rerr == nil {
					continue
				}
			}
			return nil, err
		}

		if stream.Offset != offset {
			// backend restarted the transfer from the beginning
			if err := restart(f, h); err != nil {
				stream.Body.Close()
				return nil, err
			}
			offset = 0
		}

		expected := a.Size
		if expected <= 0 {
			expected = stream.Total
		}
		ev := base
		ev.Phase = PhaseFetching
		ev.BytesTotal = expected
		pw := &progressWriter{ctx: ctx, em: em, base: ev, done: offset, last: offset}

		writers := []io.Writer{f, pw}
		if h != nil {
			writers = append(writers, h)
		}
		n, copyErr := io.Copy(io.MultiWriter(writers...), stream.Body)
		stream.Body.Close()
		offset += n
		if n > 0 {
			attempts = 0
		}

		if copyErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(copyErr, repo.ErrTransferInterrupted) {
				copyErr = fmt.Errorf("%w: %v", repo.ErrTransferInterrupted, copyErr)
			}
			if rerr := retry(copyErr); rerr == nil {
				continue
			}
			return nil, copyErr
		}

		switch {
		case expected >= 0 && offset < expected:
			short := fmt.Errorf("%w: received %d of %d bytes", repo.ErrTransferInterrupted, offset, expected)
			if rerr := retry(short); rerr == nil {
				continue
			}
			return nil, short
		case expected >= 0 && offset > expected:
			return nil, fmt.Errorf("%w: received %d bytes, expected %d", repo.ErrTransferInterrupted, offset, expected)
		}
		break
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to flush staging file: %w", err)
	}
	s := &staged{path: local, size: offset}
	if h != nil {
		s.digest = hex.EncodeToString(h.Sum(nil))
	}
	log.Debug().Str("artifact", a.ID()).Int64("bytes", offset).Msg("Artifact staged")
	return s, nil
}

func restart(f *os.File, h hash.Hash) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to reset staging file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to reset staging file: %w", err)
	}
	if h != nil {
		h.Reset()
	}
	return nil
}
