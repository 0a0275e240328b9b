package validation

import (
	"fmt"
	"strings"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/pkg/hasher"
)

const (
	MinThreads = 1
	MaxThreads = 20
	MaxRetries = 10
)

func ValidateThreadCount(threads int) error {
	if threads < MinThreads || threads > MaxThreads {
		return fmt.Errorf("thread count must be between %d and %d, got %d", MinThreads, MaxThreads, threads)
	}
	return nil
}

func ValidateRetries(retries int) error {
	if retries < 0 || retries > MaxRetries {
		return fmt.Errorf("retries must be between 0 and %d, got %d", MaxRetries, retries)
	}
	return nil
}

// ValidateGameID accepts a single repository directory name.
func ValidateGameID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("game ID cannot be empty")
	case id == "." || id == "..":
		return fmt.Errorf("invalid game ID: %s", id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("game ID must be a directory name, got %s", id)
	case strings.HasPrefix(id, ".") || strings.HasPrefix(id, "_"):
		return fmt.Errorf("game ID cannot start with '.' or '_': %s", id)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

func ValidateDuplicatePolicy(policy string) error {
	if _, err := catalog.ParsePolicy(policy); err != nil {
		names := make([]string, len(catalog.Policies))
		for i, p := range catalog.Policies {
			names[i] = string(p)
		}
		return fmt.Errorf("invalid duplicate policy: %s (must be one of: %s)", policy, strings.Join(names, ", "))
	}
	return nil
}

func ValidateHashAlgo(algo string) error {
	if !hasher.IsValidHashAlgo(algo) {
		return fmt.Errorf("invalid hash algorithm: %s (must be one of: %s)", algo, strings.Join(hasher.HashAlgorithms, ", "))
	}
	return nil
}

func ValidateRateLimit(bytesPerSecond int64) error {
	if bytesPerSecond < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %d", bytesPerSecond)
	}
	return nil
}
