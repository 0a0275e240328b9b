package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/habedi/glm/pkg/hasher"
	"github.com/habedi/glm/pkg/pool"
	"github.com/rs/zerolog/log"
)

// HashResult represents the result of a single file hashing operation.
type HashResult struct {
	File string
	Hash string
	Err  error
}

// DefaultHashExclusions is the list of patterns to exclude from hashing. Info files and
// existing sidecars never become artifacts, so they are never hashed.
var DefaultHashExclusions = []string{
	".git", ".gitignore", ".DS_Store", "Thumbs.db", "desktop.ini",
	"*.json", "*.xml", "*.csv", "*.log", "*.txt", "*.info", "*.md", "*.html", "*.htm",
	"*.md5", "*.sha1", "*.sha256", "*.sha512", "*.cksum", "*.sum", "*.sig", "*.asc", "*.gpg",
}

// FindFilesToHash walks a directory and returns a slice of file paths to be processed.
// Hidden directories and directories starting with "_" are skipped like the catalog
// builder skips them.
func FindFilesToHash(dir string, recursive bool, exclusions []string) ([]string, error) {
	var filesToProcess []string
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path == dir {
				return nil
			}
			if !recursive || strings.HasPrefix(info.Name(), ".") || strings.HasPrefix(info.Name(), "_") {
				return filepath.SkipDir
			}
			return nil
		}
		for _, pattern := range exclusions {
			if matched, _ := filepath.Match(pattern, info.Name()); matched {
				return nil
			}
		}
		filesToProcess = append(filesToProcess, path)
		return nil
	})
	return filesToProcess, walkErr
}

// GenerateHashes concurrently generates hashes for a list of files. The channel is
// closed once every file has been processed or ctx is cancelled.
func GenerateHashes(ctx context.Context, files []string, algo string, numThreads int) <-chan HashResult {
	results := make(chan HashResult, len(files))

	go func() {
		defer close(results)
		pool.Run(ctx, files, numThreads, func(ctx context.Context, filePath string) error {
			hash, err := hasher.GenerateHash(filePath, algo)
			results <- HashResult{File: filePath, Hash: hash, Err: err}
			return err
		})
	}()

	return results
}

// SidecarPath is where the checksum of file is stored for algo.
func SidecarPath(file, algo string) string {
	return file + "." + strings.ToLower(algo)
}

// WriteSidecar stores a digest next to the file it belongs to, in the "<hex>  <name>"
// format of the common checksum tools.
func WriteSidecar(file, algo, hash string) (string, error) {
	path := SidecarPath(file, algo)
	content := fmt.Sprintf("%s  %s\n", hash, filepath.Base(file))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write checksum file: %w", err)
	}
	return path, nil
}

// CleanHashes walks a directory and removes files with extensions matching known hash algorithms.
func CleanHashes(dir string, recursive bool) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		for _, algo := range hasher.HashAlgorithms {
			if strings.HasSuffix(info.Name(), "."+algo) {
				if err := os.Remove(path); err != nil {
					log.Warn().Err(err).Str("path", path).Msg("Failed to remove old hash file")
				}
				break
			}
		}
		return nil
	})
}
