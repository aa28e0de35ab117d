// Package qmf implements the QMF (Quantized Model Format) binary model
// container: a fixed 20-byte header, a UTF-8 JSON metadata blob, a
// fixed-size binary tensor directory (one entry per tensor, no
// variable-length framing), and a payload section of 16-byte-aligned
// tensor data and scale arrays at the offsets each directory entry
// records. Readers parse the header/metadata/directory eagerly and
// defer every tensor's payload read until that tensor is requested by
// name; writers flush payloads to their pre-computed offsets in
// parallel.
//
// The on-disk layout is bit-exact per spec.md §4.5/§6 and is NOT
// GGUF-compatible: unlike fs/ggml's self-describing, variable-length
// GGUF KV+tensor-info format this grounds its eager-header/lazy-
// payload/parallel-flush shape on (fs/ggml/{gguf.go,gguf_write.go,
// gguf_reader.go,gguf_model.go}), QMF's directory is a flat array of
// fixed-size C-struct-like entries, matching the "bit-exact"
// requirement the spec places on this specific container.
package qmf

import (
	"encoding/binary"
	"fmt"

	"github.com/nanoforge/qmfrt/qerr"
)

// Magic identifies a QMF container. It is exactly 8 bytes.
const Magic = "QMFv0001"

// Alignment is the byte boundary every tensor's data and scale regions
// are padded to, per spec.md §4.5 ("payload alignment is 16 bytes")
// and §6 ("Payload alignment 16 bytes").
const Alignment = 16

// Version is the current container format version written by this
// package. Readers reject any other version.
const Version uint32 = 1

// fixedHeaderSize is offset 0..20: magic(8) + version(4) +
// tensor_count(4) + metadata_length(4), per spec.md §4.5's layout
// table. Metadata JSON itself follows immediately at offset 20.
const fixedHeaderSize = 8 + 4 + 4 + 4

// maxNameLen is the tensor-directory entry's fixed name field width.
const maxNameLen = 128

// dirEntrySize is one tensor-directory entry's fixed wire size:
// name(128) + dtype(2) + rank(2) + dims(8*8=64) + data_offset(8) +
// data_length(8) + scale_offset(8) + scale_length(8).
const dirEntrySize = maxNameLen + 2 + 2 + 8*8 + 8 + 8 + 8 + 8

// maxRank bounds the dims array width the directory entry carries;
// every tensor here is rank 2 (rows, cols), but the wire format
// reserves the full width spec.md §4.5 specifies.
const maxRank = 8

// dtype codes identify a tensor's quantization scheme in the binary
// directory (u16, spec.md §4.5's "dtype" field).
const (
	dtypeF32  uint16 = 0
	dtypeQ8_0 uint16 = 1
	dtypeQ4_0 uint16 = 2
	dtypeQ4_1 uint16 = 3
	dtypeQ4_K uint16 = 4
	dtypeQ6_K uint16 = 5
)

func dtypeFromScheme(scheme string) (uint16, error) {
	switch scheme {
	case "F32":
		return dtypeF32, nil
	case "Q8_0":
		return dtypeQ8_0, nil
	case "Q4_0":
		return dtypeQ4_0, nil
	case "Q4_1":
		return dtypeQ4_1, nil
	case "Q4_K":
		return dtypeQ4_K, nil
	case "Q6_K":
		return dtypeQ6_K, nil
	default:
		return 0, fmt.Errorf("%w: unknown scheme %q", qerr.ErrInvalidInput, scheme)
	}
}

func schemeFromDtype(dtype uint16) (string, error) {
	switch dtype {
	case dtypeF32:
		return "F32", nil
	case dtypeQ8_0:
		return "Q8_0", nil
	case dtypeQ4_0:
		return "Q4_0", nil
	case dtypeQ4_1:
		return "Q4_1", nil
	case dtypeQ4_K:
		return "Q4_K", nil
	case dtypeQ6_K:
		return "Q6_K", nil
	default:
		return "", fmt.Errorf("%w: unknown dtype code %d", qerr.ErrContainerCorrupt, dtype)
	}
}

type rawHeader struct {
	Magic       [8]byte
	Version     uint32
	TensorCount uint32
	MetadataLen uint32
}

func (h *rawHeader) encode() []byte {
	buf := make([]byte, fixedHeaderSize)
	copy(buf[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.TensorCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.MetadataLen)
	return buf
}

func decodeHeader(buf []byte) (rawHeader, error) {
	var h rawHeader
	if len(buf) < fixedHeaderSize {
		return h, fmt.Errorf("qmf: truncated header (%d bytes)", len(buf))
	}
	copy(h.Magic[:], buf[0:8])
	if string(h.Magic[:]) != Magic {
		return h, fmt.Errorf("qmf: bad magic %q", h.Magic[:])
	}
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	if h.Version != Version {
		return h, fmt.Errorf("qmf: unsupported version %d", h.Version)
	}
	h.TensorCount = binary.LittleEndian.Uint32(buf[12:16])
	h.MetadataLen = binary.LittleEndian.Uint32(buf[16:20])
	return h, nil
}

// DirEntry is one tensor's in-memory directory record: its binary
// wire encoding is dirEntrySize bytes (name/dtype/rank/dims/four
// offset+length fields), per spec.md §4.5. Rows/Cols are the first
// two entries of Dims; the remaining dims slots are unused (every
// tensor here is rank 2) but are still carried on the wire so the
// layout matches the spec exactly.
type DirEntry struct {
	Name   string
	Scheme string
	Rows   uint64
	Cols   uint64

	DataOffset  uint64
	DataLength  uint64
	ScaleOffset uint64
	ScaleLength uint64
}

func (e *DirEntry) encode() ([]byte, error) {
	if len(e.Name) > maxNameLen {
		return nil, fmt.Errorf("%w: tensor name %q exceeds %d bytes", qerr.ErrInvalidInput, e.Name, maxNameLen)
	}
	dtype, err := dtypeFromScheme(e.Scheme)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, dirEntrySize)
	copy(buf[0:maxNameLen], e.Name)
	off := maxNameLen
	binary.LittleEndian.PutUint16(buf[off:off+2], dtype)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], 2) // rank
	off += 2
	var dims [maxRank]uint64
	dims[0], dims[1] = e.Rows, e.Cols
	for _, d := range dims {
		binary.LittleEndian.PutUint64(buf[off:off+8], d)
		off += 8
	}
	binary.LittleEndian.PutUint64(buf[off:off+8], e.DataOffset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], e.DataLength)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], e.ScaleOffset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], e.ScaleLength)
	return buf, nil
}

func decodeDirEntry(buf []byte) (DirEntry, error) {
	var e DirEntry
	if len(buf) < dirEntrySize {
		return e, fmt.Errorf("%w: truncated directory entry", qerr.ErrContainerCorrupt)
	}
	nameBytes := buf[0:maxNameLen]
	nul := maxNameLen
	for i, b := range nameBytes {
		if b == 0 {
			nul = i
			break
		}
	}
	e.Name = string(nameBytes[:nul])
	off := maxNameLen
	dtype := binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	rank := binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	if rank < 2 {
		return e, fmt.Errorf("%w: tensor %q has rank %d, want >= 2", qerr.ErrContainerCorrupt, e.Name, rank)
	}
	var dims [maxRank]uint64
	for i := range dims {
		dims[i] = binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
	}
	e.Rows, e.Cols = dims[0], dims[1]
	e.DataOffset = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	e.DataLength = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	e.ScaleOffset = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	e.ScaleLength = binary.LittleEndian.Uint64(buf[off : off+8])

	scheme, err := schemeFromDtype(dtype)
	if err != nil {
		return e, err
	}
	e.Scheme = scheme
	return e, nil
}

func padToAlignment(n uint64) uint64 {
	rem := n % Alignment
	if rem == 0 {
		return n
	}
	return n + (Alignment - rem)
}

// Summary is a lightweight, read-only view of a container's contents,
// returned by Inspect without requiring the caller to load any tensor
// payload.
type Summary struct {
	TensorCount int
	Names       []string
	Schemes     map[string]string
	TotalBytes  uint64
	Metadata    map[string]string
}
