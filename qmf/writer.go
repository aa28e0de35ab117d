package qmf

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nanoforge/qmfrt/qerr"
	"github.com/nanoforge/qmfrt/weight"
)

// validateMetadataKeys enforces the general.*/<arch>.* namespacing
// convention fs/ggml/ggml_kv.go uses for its typed KV pairs: every key
// must carry at least one "." separator so it reads as
// "<namespace>.<field>". A bare key like "author" is rejected since it
// can't be disambiguated from a future namespace of the same name.
func validateMetadataKeys(metadata map[string]string) error {
	for k := range metadata {
		if !strings.Contains(k, ".") {
			return fmt.Errorf("%w: metadata key %q is not namespaced (expected \"<namespace>.<field>\")", qerr.ErrInvalidInput, k)
		}
	}
	return nil
}

// Write serializes tensors (and an opaque string metadata map, e.g.
// architecture/tokenizer identifiers) into a QMF container at path,
// following spec.md §4.5's bit-exact layout: a 20-byte fixed header,
// the metadata JSON blob, a fixed-size binary tensor directory, then
// every tensor's data and scale regions at their recorded, 16-byte-
// aligned offsets. Payloads are written concurrently via
// golang.org/x/sync/errgroup, mirroring the teacher's parallel GGUF
// tensor-data flush.
func Write(path string, metadata map[string]string, tensors []*weight.Tensor) error {
	if err := validateMetadataKeys(metadata); err != nil {
		return err
	}
	sorted := append([]*weight.Tensor(nil), tensors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	dataBlobs := make([][]byte, len(sorted))
	scaleBlobs := make([][]byte, len(sorted))
	entries := make([]DirEntry, len(sorted))

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("qmf: marshal metadata: %w", err)
	}

	dirStart := uint64(fixedHeaderSize) + uint64(len(metaJSON))
	payloadBase := padToAlignment(dirStart + uint64(len(sorted))*dirEntrySize)

	offset := payloadBase
	for i, t := range sorted {
		data, scale, err := encodeTensor(t)
		if err != nil {
			return fmt.Errorf("qmf: encode tensor %q: %w", t.Name, err)
		}
		dataBlobs[i] = data
		scaleBlobs[i] = scale

		dataOffset := offset
		offset = padToAlignment(offset + uint64(len(data)))
		scaleOffset := offset
		offset = padToAlignment(offset + uint64(len(scale)))

		entries[i] = DirEntry{
			Name:        t.Name,
			Scheme:      t.Scheme(),
			Rows:        uint64(t.Rows),
			Cols:        uint64(t.Cols),
			DataOffset:  dataOffset,
			DataLength:  uint64(len(data)),
			ScaleOffset: scaleOffset,
			ScaleLength: uint64(len(scale)),
		}
	}

	header := rawHeader{
		TensorCount: uint32(len(sorted)),
		MetadataLen: uint32(len(metaJSON)),
	}
	copy(header.Magic[:], Magic)
	header.Version = Version

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("qmf: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(header.encode()); err != nil {
		return fmt.Errorf("qmf: write header: %w", err)
	}
	if _, err := f.Write(metaJSON); err != nil {
		return fmt.Errorf("qmf: write metadata: %w", err)
	}
	for i, e := range entries {
		buf, err := e.encode()
		if err != nil {
			return fmt.Errorf("qmf: encode directory entry %q: %w", e.Name, err)
		}
		if _, err := f.WriteAt(buf, int64(dirStart)+int64(i)*dirEntrySize); err != nil {
			return fmt.Errorf("qmf: write directory entry %q: %w", e.Name, err)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range sorted {
		i := i
		g.Go(func() error {
			if len(dataBlobs[i]) > 0 {
				if _, err := f.WriteAt(dataBlobs[i], int64(entries[i].DataOffset)); err != nil {
					return err
				}
			}
			if len(scaleBlobs[i]) > 0 {
				if _, err := f.WriteAt(scaleBlobs[i], int64(entries[i].ScaleOffset)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("qmf: write tensor payloads: %w", err)
	}
	if err := f.Truncate(int64(offset)); err != nil {
		return fmt.Errorf("qmf: truncate %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("qmf: sync %s: %w", path, err)
	}
	return writeManifest(path, entries, metadata)
}
