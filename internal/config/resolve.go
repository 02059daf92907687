package config

import (
	"context"
	"log/slog"

	"github.com/nullisland/tileserv/internal/idresolver"
	"github.com/nullisland/tileserv/internal/pgpool"
	"github.com/nullisland/tileserv/internal/source"
)

// Resolved is the outcome of resolving a finalized Config into live
// sources: a populated registry plus the pool registry backing its
// database sources (kept around so callers can close pools on shutdown).
type Resolved struct {
	Registry *source.Registry
	Pools    *pgpool.Registry
}

// Resolve runs the archive-group and DB-group resolution algorithms
// against a shared id resolver. The archive group resolves first so a
// cross-backend id collision always lands the same way: the archive
// source keeps the bare id and the database source gets the ".1"
// suffix. Database pools then resolve concurrently among themselves.
// A failure in one group never aborts the other: an archive group with a
// malformed path (a configuration error, fatal for that group) is logged
// and contributes no sources, and per-pool and per-source database
// failures are likewise logged and skipped rather than propagated.
func Resolve(ctx context.Context, cfg *Config) (*Resolved, error) {
	idr := idresolver.New()
	pools := pgpool.NewRegistry()
	reg := source.NewRegistry()

	if cfg.PMTiles != nil {
		sources, err := ResolveArchiveGroup(cfg.PMTiles, idr)
		if err != nil {
			slog.Warn("archive group resolution failed, skipping group", "error", err)
		} else {
			reg.Set(sources)
		}
	}

	if cfg.Postgres != nil {
		sources, err := ResolvePgGroup(ctx, cfg.Postgres.Slice(), pools, idr)
		if err != nil {
			return nil, err
		}
		for _, s := range sources {
			reg.Add(s)
		}
	}

	return &Resolved{Registry: reg, Pools: pools}, nil
}
