package installer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// extractArchive unpacks every entry of an archive into destDir. Entries that would land
// outside destDir are rejected.
func extractArchive(ctx context.Context, archivePath, destDir string) (int, error) {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive file: %w", err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}
	root, err := filepath.Abs(destDir)
	if err != nil {
		return 0, err
	}

	files := 0
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		target := filepath.Join(root, filepath.FromSlash(path))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return fmt.Errorf("archive entry escapes destination: %s", path)
		}
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info for %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			// links and devices are not needed by game data
			return nil
		}
		if err := writeEntry(fsys, path, target, info.Mode().Perm()); err != nil {
			return err
		}
		files++
		return nil
	})
	return files, err
}

func writeEntry(fsys fs.FS, path, target string, perm fs.FileMode) error {
	src, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", path, err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", path, err)
	}
	if perm == 0 {
		perm = 0o644
	}
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o200)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to extract %s: %w", path, err)
	}
	return dst.Close()
}
