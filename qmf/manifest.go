package qmf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Manifest is the sidecar JSON file spec.md §4.5 requires alongside
// every QMF container: the container's SHA-256 (for integrity
// checking without re-parsing the binary layout), a shape catalog for
// quick inspection, and a copy of the free-form metadata.
type Manifest struct {
	SHA256   string             `json:"sha256"`
	Shapes   map[string][2]uint64 `json:"shapes"`
	Metadata map[string]string `json:"metadata"`
}

// ManifestPath is the sidecar's conventional path for a container at
// containerPath.
func ManifestPath(containerPath string) string { return containerPath + ".manifest.json" }

// writeManifest computes the container's SHA-256 and writes its sidecar
// manifest, called by Write once the container file itself is fully
// flushed and synced.
func writeManifest(containerPath string, entries []DirEntry, metadata map[string]string) error {
	data, err := os.ReadFile(containerPath)
	if err != nil {
		return fmt.Errorf("qmf: reading container for manifest hash: %w", err)
	}
	sum := sha256.Sum256(data)

	shapes := make(map[string][2]uint64, len(entries))
	for _, e := range entries {
		shapes[e.Name] = [2]uint64{e.Rows, e.Cols}
	}

	m := Manifest{
		SHA256:   hex.EncodeToString(sum[:]),
		Shapes:   shapes,
		Metadata: metadata,
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("qmf: marshal manifest: %w", err)
	}
	return os.WriteFile(ManifestPath(containerPath), out, 0o644)
}

// ReadManifest loads and parses the sidecar manifest for containerPath.
func ReadManifest(containerPath string) (Manifest, error) {
	data, err := os.ReadFile(ManifestPath(containerPath))
	if err != nil {
		return Manifest{}, fmt.Errorf("qmf: reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("qmf: decoding manifest: %w", err)
	}
	return m, nil
}
