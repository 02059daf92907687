package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nullisland/tileserv/internal/archive"
	"github.com/nullisland/tileserv/internal/idresolver"
	"github.com/nullisland/tileserv/internal/source"
)

const archiveExtension = ".pmtiles"

// ResolveArchiveGroup resolves an archive group's declared and
// discovered sources: explicit `sources` bindings are instantiated
// first, then `paths` are scanned (directories recorded for future
// rescans, files enumerated by extension), with canonicalization and a
// seen-set deduplicating repeated paths. On return, cfg has been
// rewritten to its canonical form: paths contains only directory roots,
// sources contains every concrete binding — making a second call on the
// rewritten config a no-op.
func ResolveArchiveGroup(cfg *ArchiveConfig, idr *idresolver.Resolver) (map[string]source.Source, error) {
	out := make(map[string]source.Source)
	seen := make(map[string]bool)
	finalSources := make(map[string]FileConfigSource)
	var finalDirs []string

	for id, src := range cfg.Sources {
		canonical, err := canonicalize(src.Path)
		if err != nil {
			return nil, &InvalidSourceFilePathError{ID: id, Path: src.Path}
		}
		info, err := os.Stat(canonical)
		if err != nil || !info.Mode().IsRegular() {
			return nil, &InvalidSourceFilePathError{ID: id, Path: src.Path}
		}

		if seen[canonical] {
			slog.Warn("duplicate archive path", "path", canonical, "id", id)
		}
		seen[canonical] = true

		resolvedID := idr.Resolve(id, canonical)
		if resolvedID != id {
			slog.Warn("archive source id renamed due to collision", "requested", id, "resolved", resolvedID)
		}

		s, err := archive.New(resolvedID, canonical)
		if err != nil {
			slog.Warn("failed to open archive source, skipping", "id", resolvedID, "path", canonical, "error", err)
			continue
		}
		out[resolvedID] = s
		finalSources[resolvedID] = FileConfigSource{Path: canonical}
	}

	for _, p := range cfg.Paths {
		info, err := os.Stat(p)
		switch {
		case err != nil:
			return nil, &InvalidFilePathError{Path: p}
		case info.IsDir():
			finalDirs = append(finalDirs, p)
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, &InvalidFilePathError{Path: p}
			}
			for _, entry := range entries {
				if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), archiveExtension) {
					continue
				}
				if err := instantiateArchiveFile(filepath.Join(p, entry.Name()), true, idr, seen, out, finalSources); err != nil {
					return nil, err
				}
			}
		case strings.EqualFold(filepath.Ext(p), archiveExtension):
			if err := instantiateArchiveFile(p, false, idr, seen, out, finalSources); err != nil {
				return nil, err
			}
		default:
			return nil, &InvalidFilePathError{Path: p}
		}
	}

	cfg.Paths = finalDirs
	cfg.Sources = finalSources

	return out, nil
}

func instantiateArchiveFile(path string, fromDirScan bool, idr *idresolver.Resolver, seen map[string]bool, out map[string]source.Source, finalSources map[string]FileConfigSource) error {
	canonical, err := canonicalize(path)
	if err != nil {
		return &InvalidFilePathError{Path: path}
	}

	if seen[canonical] {
		if !fromDirScan {
			slog.Warn("duplicate archive path", "path", canonical)
		}
		return nil
	}
	seen[canonical] = true

	id := strings.TrimSuffix(filepath.Base(canonical), filepath.Ext(canonical))
	if id == "" {
		id = "_unknown"
	}

	resolvedID := idr.Resolve(id, canonical)
	if resolvedID != id {
		slog.Warn("archive source id renamed due to collision", "requested", id, "resolved", resolvedID)
	}

	s, err := archive.New(resolvedID, canonical)
	if err != nil {
		slog.Warn("failed to open archive source, skipping", "id", resolvedID, "path", canonical, "error", err)
		return nil
	}

	out[resolvedID] = s
	finalSources[resolvedID] = FileConfigSource{Path: canonical}
	return nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
