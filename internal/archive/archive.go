// Package archive implements the tiled-archive (pmtiles-style) source
// backend: a memory-mapped reader over a single-file tile store with an
// embedded directory mapping (z,x,y) to byte ranges.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"

	"github.com/nullisland/tileserv/internal/pmtiles"
	"github.com/nullisland/tileserv/internal/source"
	"github.com/nullisland/tileserv/internal/tilecoord"
	"github.com/nullisland/tileserv/internal/tileformat"
	"github.com/nullisland/tileserv/internal/tilejson"
)

// InvalidArchiveError wraps a header- or directory-parse failure that
// makes the file unusable as an archive source.
type InvalidArchiveError struct {
	Path  string
	Cause error
}

func (e *InvalidArchiveError) Error() string {
	return fmt.Sprintf("invalid archive %s: %v", e.Path, e.Cause)
}

func (e *InvalidArchiveError) Unwrap() error { return e.Cause }

// reader owns the memory map and parsed directory; it is shared by every
// clone of the Source that opened it via a reference count, released
// only when the last clone drops.
type reader struct {
	mu       sync.Mutex
	file     *os.File
	mmap     mmap.MMap
	refCount int32

	header       pmtiles.HeaderV3
	rootEntries  []pmtiles.EntryV3
	tileDataBase int64
}

func openReader(path string) (*reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	if len(m) < pmtiles.HeaderV3LenBytes {
		m.Unmap()
		f.Close()
		return nil, &InvalidArchiveError{Path: path, Cause: fmt.Errorf("file too small for a PMTiles header (%d bytes)", len(m))}
	}

	header, err := pmtiles.DeserializeHeader(m[:pmtiles.HeaderV3LenBytes])
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, &InvalidArchiveError{Path: path, Cause: err}
	}

	if header.RootOffset+header.RootLength > uint64(len(m)) {
		m.Unmap()
		f.Close()
		return nil, &InvalidArchiveError{Path: path, Cause: fmt.Errorf("root directory extends past end of file")}
	}

	rootBytes := m[header.RootOffset : header.RootOffset+header.RootLength]
	entries, err := pmtiles.DecompressEntries(rootBytes, header.InternalCompression)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, &InvalidArchiveError{Path: path, Cause: fmt.Errorf("parsing root directory: %w", err)}
	}

	return &reader{
		file:         f,
		mmap:         m,
		refCount:     1,
		header:       header,
		rootEntries:  entries,
		tileDataBase: int64(header.TileDataOffset),
	}, nil
}

func (r *reader) acquire() {
	atomic.AddInt32(&r.refCount, 1)
}

func (r *reader) release() {
	if atomic.AddInt32(&r.refCount, -1) == 0 {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.mmap.Unmap()
		r.file.Close()
	}
}

func (r *reader) metadata() (map[string]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.header.MetadataLength == 0 {
		return nil, nil
	}
	blob := r.mmap[r.header.MetadataOffset : r.header.MetadataOffset+r.header.MetadataLength]
	return pmtiles.DeserializeMetadata(blob, r.header.InternalCompression)
}

// getTile resolves tileID against the root directory. Archives large
// enough to need leaf directories (RunLength == 0 entries pointing at a
// leaf) are supported by one extra indirection; most archives this
// server serves fit in a single root directory.
func (r *reader) getTile(tileID uint64) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := pmtiles.FindTile(r.rootEntries, tileID)
	if !ok {
		return nil, false, nil
	}

	if entry.RunLength == 0 {
		leafBytes := r.mmap[r.header.LeafDirectoryOffset+entry.Offset : r.header.LeafDirectoryOffset+entry.Offset+uint64(entry.Length)]
		leafEntries, err := pmtiles.DecompressEntries(leafBytes, r.header.InternalCompression)
		if err != nil {
			return nil, false, fmt.Errorf("parsing leaf directory: %w", err)
		}
		entry, ok = pmtiles.FindTile(leafEntries, tileID)
		if !ok {
			return nil, false, nil
		}
	}

	start := r.tileDataBase + int64(entry.Offset)
	end := start + int64(entry.Length)
	if end > int64(len(r.mmap)) {
		return nil, false, fmt.Errorf("tile entry extends past end of file")
	}
	out := make([]byte, entry.Length)
	copy(out, r.mmap[start:end])
	return out, true, nil
}

// Source is the archive-backed implementation of source.Source.
type Source struct {
	id   string
	path string
	r    *reader

	minZoom *uint8
	maxZoom *uint8
	bounds  *tilecoord.Bounds
	meta    map[string]interface{}
}

var _ source.Source = (*Source)(nil)

// New opens path as a memory-mapped PMTiles archive and parses its
// header and root directory. Metadata parsing is attempted but its
// failure is recoverable: a warning is logged and TileJSON falls back to
// header-derived fields only.
func New(id, path string) (*Source, error) {
	r, err := openReader(path)
	if err != nil {
		if _, ok := err.(*InvalidArchiveError); ok {
			return nil, err
		}
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}

	s := &Source{id: id, path: path, r: r}

	minZ, maxZ := r.header.MinZoom, r.header.MaxZoom
	s.minZoom = &minZ
	s.maxZoom = &maxZ
	b := tilecoord.Bounds{
		West:  float64(r.header.MinLonE7) / 1e7,
		South: float64(r.header.MinLatE7) / 1e7,
		East:  float64(r.header.MaxLonE7) / 1e7,
		North: float64(r.header.MaxLatE7) / 1e7,
	}
	s.bounds = &b

	meta, err := r.metadata()
	if err != nil {
		slog.Warn("archive metadata parse failed, falling back to header-only tilejson", "id", id, "path", path, "error", err)
	} else {
		s.meta = meta
	}

	return s, nil
}

func (s *Source) ID() string { return s.id }

func (s *Source) Format() tileformat.DataFormat {
	switch s.r.header.TileType {
	case pmtiles.Mvt:
		return tileformat.Mvt
	case pmtiles.Png:
		return tileformat.Png
	case pmtiles.Jpeg:
		return tileformat.Jpeg
	case pmtiles.Webp:
		return tileformat.Webp
	default:
		return tileformat.Unknown
	}
}

func (s *Source) SupportsURLQuery() bool { return false }

func (s *Source) ValidZoom(z uint8) bool {
	return tilecoord.ValidZoom(z, s.minZoom, s.maxZoom)
}

func (s *Source) TileJSON() tilejson.TileJSON {
	tj := tilejson.New(s.id, s.minZoom, s.maxZoom, s.bounds)
	if name, ok := s.meta["name"].(string); ok && name != "" {
		tj.Name = name
	}
	return tj
}

func (s *Source) GetTile(ctx context.Context, xyz tilecoord.Xyz, _ *source.UrlQuery) ([]byte, error) {
	if xyz.Z > tilecoord.MaxZoom {
		return nil, &source.BadRequestError{Xyz: xyz, Reason: "zoom exceeds maximum representable archive zoom"}
	}
	if !xyz.Valid() {
		return nil, &source.BadRequestError{Xyz: xyz, Reason: "coordinate out of range"}
	}
	if !s.ValidZoom(xyz.Z) {
		return nil, &source.BadRequestError{Xyz: xyz, Reason: "zoom outside source range"}
	}

	tileID := pmtiles.ZxyToID(xyz.Z, xyz.X, xyz.Y)
	data, ok, err := s.r.getTile(tileID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &source.NotFoundError{ID: s.id, Xyz: xyz}
	}
	return data, nil
}

// CloneHandle returns a new Source sharing the same mmap reader, bumping
// its reference count. The clone is independently closable.
func (s *Source) CloneHandle() source.Source {
	s.r.acquire()
	clone := *s
	return &clone
}

// Close releases this handle's reference to the underlying memory map.
func (s *Source) Close() {
	s.r.release()
}
