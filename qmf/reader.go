package qmf

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nanoforge/qmfrt/qerr"
	"github.com/nanoforge/qmfrt/weight"
)

// Reader parses a QMF container's header, metadata and tensor directory
// eagerly on Open; individual tensor payloads are read lazily, only
// when Tensor is called with that tensor's name.
type Reader struct {
	f        *os.File
	metadata map[string]string
	entries  map[string]DirEntry
	order    []string
}

// Open parses a QMF container's header and directory without reading
// any tensor payload.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("qmf: open %s: %w", path, err)
	}
	r, err := newReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File) (*Reader, error) {
	fixed := make([]byte, fixedHeaderSize)
	if _, err := f.ReadAt(fixed, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", qerr.ErrContainerCorrupt, err)
	}
	h, err := decodeHeader(fixed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qerr.ErrContainerCorrupt, err)
	}

	metaBuf := make([]byte, h.MetadataLen)
	if _, err := f.ReadAt(metaBuf, fixedHeaderSize); err != nil {
		return nil, fmt.Errorf("%w: reading metadata: %v", qerr.ErrContainerCorrupt, err)
	}
	var metadata map[string]string
	if err := json.Unmarshal(metaBuf, &metadata); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %v", qerr.ErrContainerCorrupt, err)
	}

	dirStart := int64(fixedHeaderSize) + int64(h.MetadataLen)
	entries := make(map[string]DirEntry, h.TensorCount)
	order := make([]string, 0, h.TensorCount)
	entryBuf := make([]byte, dirEntrySize)
	for i := uint32(0); i < h.TensorCount; i++ {
		if _, err := f.ReadAt(entryBuf, dirStart+int64(i)*dirEntrySize); err != nil {
			return nil, fmt.Errorf("%w: reading directory entry %d: %v", qerr.ErrContainerCorrupt, i, err)
		}
		e, err := decodeDirEntry(entryBuf)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding directory entry %d: %v", qerr.ErrContainerCorrupt, i, err)
		}
		entries[e.Name] = e
		order = append(order, e.Name)
	}

	return &Reader{
		f:        f,
		metadata: metadata,
		entries:  entries,
		order:    order,
	}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// Names returns every tensor name in directory order.
func (r *Reader) Names() []string { return append([]string(nil), r.order...) }

// Metadata returns the container's string metadata map.
func (r *Reader) Metadata() map[string]string { return r.metadata }

// Tensor lazily reads and decodes one tensor's data and scale regions
// by name.
func (r *Reader) Tensor(name string) (*weight.Tensor, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: no tensor named %q", qerr.ErrInvalidInput, name)
	}
	data := make([]byte, entry.DataLength)
	if _, err := r.f.ReadAt(data, int64(entry.DataOffset)); err != nil {
		return nil, fmt.Errorf("%w: reading data for %q: %v", qerr.ErrContainerCorrupt, name, err)
	}
	var scale []byte
	if entry.ScaleLength > 0 {
		scale = make([]byte, entry.ScaleLength)
		if _, err := r.f.ReadAt(scale, int64(entry.ScaleOffset)); err != nil {
			return nil, fmt.Errorf("%w: reading scale for %q: %v", qerr.ErrContainerCorrupt, name, err)
		}
	}
	return decodeTensor(entry, data, scale)
}

// Inspect opens path, builds a Summary of its contents, and closes it
// again without retaining any tensor payload in memory.
func Inspect(path string) (Summary, error) {
	r, err := Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()

	s := Summary{
		TensorCount: len(r.order),
		Names:       r.Names(),
		Schemes:     make(map[string]string, len(r.order)),
		Metadata:    r.metadata,
	}
	for _, name := range r.order {
		e := r.entries[name]
		s.Schemes[name] = e.Scheme
		s.TotalBytes += e.DataLength + e.ScaleLength
	}
	return s, nil
}
