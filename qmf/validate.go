package qmf

import (
	"fmt"
	"os"
	"sort"
)

// Issue names one defect a Validate pass found. Validate never returns
// an error for a malformed container — it reports every issue it can
// detect and lets the caller decide what to do (spec.md §4.5:
// "Validator (non-throwing)"). An error return is reserved for I/O
// failures opening the file itself (a genuinely unrelated concern).
type Issue string

const (
	IssueBadMagic              Issue = "bad magic"
	IssueUnsupportedVersion    Issue = "unsupported version"
	IssueMetadataLengthOverrun Issue = "metadata-length overrun"
	IssueDirectoryTruncated    Issue = "tensor-directory truncation"
	IssueDataRegionOverlap     Issue = "data-region overlap"
	IssueSizeInconsistency     Issue = "size-inconsistency with declared dims"
	IssueMissingSidecar        Issue = "missing sidecar"
)

// Validate opens path and reports the structural issues it can find
// without panicking, covering every category spec.md §4.5 names. A bad
// magic or version does not stop the scan, but once the header,
// metadata or tensor directory runs past the end of the file the later
// checks are skipped and only the sidecar check is added.
func Validate(path string) ([]Issue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("qmf: open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("qmf: stat %s: %w", path, err)
	}
	size := stat.Size()

	var issues []Issue

	fixed := make([]byte, fixedHeaderSize)
	n, _ := f.ReadAt(fixed, 0)
	if n < fixedHeaderSize {
		issues = append(issues, IssueDirectoryTruncated)
		return append(issues, IssueMissingSidecarIfAbsent(path)...), nil
	}

	if string(fixed[0:8]) != Magic {
		issues = append(issues, IssueBadMagic)
	}
	h, err := decodeHeader(fixed)
	if err != nil && len(issues) == 0 {
		// decodeHeader failed for a reason other than bad magic (already
		// recorded above) — most likely an unsupported version.
		issues = append(issues, IssueUnsupportedVersion)
	}

	if int64(fixedHeaderSize)+int64(h.MetadataLen) > size {
		issues = append(issues, IssueMetadataLengthOverrun)
		return append(issues, IssueMissingSidecarIfAbsent(path)...), nil
	}

	dirStart := int64(fixedHeaderSize) + int64(h.MetadataLen)
	dirLen := int64(h.TensorCount) * dirEntrySize
	if dirStart+dirLen > size {
		issues = append(issues, IssueDirectoryTruncated)
		return append(issues, IssueMissingSidecarIfAbsent(path)...), nil
	}

	entries := make([]DirEntry, 0, h.TensorCount)
	entryBuf := make([]byte, dirEntrySize)
	for i := uint32(0); i < h.TensorCount; i++ {
		if _, err := f.ReadAt(entryBuf, dirStart+int64(i)*dirEntrySize); err != nil {
			issues = append(issues, IssueDirectoryTruncated)
			return append(issues, IssueMissingSidecarIfAbsent(path)...), nil
		}
		e, err := decodeDirEntry(entryBuf)
		if err != nil {
			issues = append(issues, IssueDirectoryTruncated)
			return append(issues, IssueMissingSidecarIfAbsent(path)...), nil
		}
		entries = append(entries, e)
	}

	issues = append(issues, checkDataRegions(entries, size)...)
	issues = append(issues, checkSizeConsistency(entries)...)
	issues = append(issues, IssueMissingSidecarIfAbsent(path)...)

	return issues, nil
}

// IssueMissingSidecarIfAbsent reports IssueMissingSidecar if path's
// manifest sidecar doesn't exist, exported so cliops's verify
// operation and tests can probe the same check independently of a
// full Validate pass.
func IssueMissingSidecarIfAbsent(path string) []Issue {
	if _, err := os.Stat(ManifestPath(path)); err != nil {
		return []Issue{IssueMissingSidecar}
	}
	return nil
}

// checkDataRegions reports IssueDataRegionOverlap if any two tensors'
// data or scale regions (by their recorded absolute offset/length)
// overlap, and flags any entry whose region extends past the file's
// end as a directory truncation (the directory claims more data than
// the file actually has). Every entry contributes up to two regions —
// data and scale — and both are checked against every other entry's
// regions, not just one per entry.
func checkDataRegions(entries []DirEntry, fileSize int64) []Issue {
	type region struct {
		start, end int64
		name       string
	}
	regions := make([]region, 0, len(entries)*2)
	var issues []Issue
	add := func(name string, offset, length uint64) {
		if length == 0 {
			return
		}
		start := int64(offset)
		end := start + int64(length)
		if end > fileSize {
			issues = append(issues, IssueDirectoryTruncated)
			return
		}
		regions = append(regions, region{start: start, end: end, name: name})
	}
	for _, e := range entries {
		add(e.Name, e.DataOffset, e.DataLength)
		add(e.Name, e.ScaleOffset, e.ScaleLength)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })
	for i := 1; i < len(regions); i++ {
		if regions[i].start < regions[i-1].end {
			issues = append(issues, IssueDataRegionOverlap)
			break
		}
	}
	return issues
}

// checkSizeConsistency reports IssueSizeInconsistency if any entry's
// recorded data-region length looks implausible for its declared
// rows*cols/scheme (below the minimum bytes any supported scheme would
// need for that element count, the loosest lower bound across all
// schemes).
func checkSizeConsistency(entries []DirEntry) []Issue {
	for _, e := range entries {
		elements := e.Rows * e.Cols
		if elements == 0 {
			continue
		}
		// The tightest-packed scheme (Q4_0/Q4_1/Q4_K) stores at least
		// 0.5 bytes/element; anything below that for the declared
		// element count cannot be a valid encoding of this shape.
		minBytes := elements / 2
		if e.DataLength < minBytes {
			return []Issue{IssueSizeInconsistency}
		}
	}
	return nil
}
