package catalog

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/habedi/glm/pkg/hasher"
)

// Checksum is a known digest of an artifact. The zero value means unknown.
type Checksum struct {
	Algo  string
	Value string // lower-case hex
}

// Known reports whether a digest is available.
func (c Checksum) Known() bool {
	return c.Algo != "" && c.Value != ""
}

func (c Checksum) String() string {
	if !c.Known() {
		return ""
	}
	return c.Algo + ":" + c.Value
}

// SidecarTarget splits a checksum sidecar name such as "setup_x_1.0.exe.sha256" into the
// artifact name and the algorithm.
func SidecarTarget(name string) (string, string, bool) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return "", "", false
	}
	algo := strings.ToLower(name[i+1:])
	if !hasher.IsValidHashAlgo(algo) {
		return "", "", false
	}
	return name[:i], algo, true
}

// ParseSidecar reads the digest from sidecar content. The first whitespace separated field
// must be a hex string of the length the algorithm produces.
func ParseSidecar(algo string, content []byte) (Checksum, error) {
	fields := strings.Fields(string(content))
	if len(fields) == 0 {
		return Checksum{}, fmt.Errorf("empty checksum file")
	}
	value := strings.ToLower(fields[0])
	raw, err := hex.DecodeString(value)
	if err != nil {
		return Checksum{}, fmt.Errorf("checksum is not hex: %w", err)
	}
	if want := hasher.Size(algo); want > 0 && len(raw) != want {
		return Checksum{}, fmt.Errorf("%s checksum has %d bytes, expected %d", algo, len(raw), want)
	}
	return Checksum{Algo: algo, Value: value}, nil
}
