// Package pgsource implements the database-backed source abstractions:
// table sources (query-built per request) and function sources (calling
// a user-defined SQL function), plus the introspection queries that
// discover both from a live database and the query builder that turns a
// table descriptor into MVT-producing SQL.
package pgsource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/nullisland/tileserv/internal/pgpool"
	"github.com/nullisland/tileserv/internal/source"
	"github.com/nullisland/tileserv/internal/tilecoord"
	"github.com/nullisland/tileserv/internal/tileformat"
	"github.com/nullisland/tileserv/internal/tilejson"
)

// Table descriptor defaults applied when a field is left unset.
const (
	DefaultExtent   uint32 = 4096
	DefaultBuffer   uint32 = 64
	DefaultClipGeom        = true
)

// TableDescriptor is the declarative shape of a database table source.
// It doubles as the YAML shape for a declared `table_sources` entry.
type TableDescriptor struct {
	Schema         string            `yaml:"schema"`
	Table          string            `yaml:"table"`
	SRID           uint32            `yaml:"srid"`
	GeometryColumn string            `yaml:"geometry_column"`
	IDColumn       *string           `yaml:"id_column,omitempty"`
	MinZoom        *uint8            `yaml:"minzoom,omitempty"`
	MaxZoom        *uint8            `yaml:"maxzoom,omitempty"`
	Bounds         *tilecoord.Bounds `yaml:"bounds,omitempty"`
	Extent         *uint32           `yaml:"extent,omitempty"`
	Buffer         *uint32           `yaml:"buffer,omitempty"`
	ClipGeom       *bool             `yaml:"clip_geom,omitempty"`
	GeometryType   string            `yaml:"geometry_type,omitempty"`
	Properties     map[string]string `yaml:"properties,omitempty"`
}

// Validate checks the invariants a table descriptor must satisfy:
// minzoom <= maxzoom when both are present, and extent != 0.
func (d TableDescriptor) Validate() error {
	if d.MinZoom != nil && d.MaxZoom != nil && *d.MinZoom > *d.MaxZoom {
		return fmt.Errorf("minzoom %d > maxzoom %d", *d.MinZoom, *d.MaxZoom)
	}
	if d.Extent != nil && *d.Extent == 0 {
		return fmt.Errorf("extent must not be zero")
	}
	return nil
}

// FormatID returns the fully qualified schema.table.column form used as
// the ID-resolver signature suffix (after the pool id prefix) and as the
// column-qualified id of an auto-discovered table.
func (d TableDescriptor) FormatID() string {
	return fmt.Sprintf("%s.%s.%s", d.Schema, d.Table, d.GeometryColumn)
}

func (d TableDescriptor) extent() uint32 {
	if d.Extent != nil {
		return *d.Extent
	}
	return DefaultExtent
}

func (d TableDescriptor) buffer() uint32 {
	if d.Buffer != nil {
		return *d.Buffer
	}
	return DefaultBuffer
}

func (d TableDescriptor) clipGeom() bool {
	if d.ClipGeom != nil {
		return *d.ClipGeom
	}
	return DefaultClipGeom
}

// TableSource is the Source implementation backing a database table.
type TableSource struct {
	id   string
	desc TableDescriptor
	pool *pgpool.Pool
}

var _ source.Source = (*TableSource)(nil)

// NewTableSource builds a TableSource bound to id, serving tiles from
// pool according to desc.
func NewTableSource(id string, desc TableDescriptor, pool *pgpool.Pool) *TableSource {
	return &TableSource{id: id, desc: desc, pool: pool}
}

func (s *TableSource) ID() string { return s.id }

func (s *TableSource) Format() tileformat.DataFormat { return tileformat.Mvt }

func (s *TableSource) SupportsURLQuery() bool { return false }

func (s *TableSource) ValidZoom(z uint8) bool {
	return tilecoord.ValidZoom(z, s.desc.MinZoom, s.desc.MaxZoom)
}

func (s *TableSource) TileJSON() tilejson.TileJSON {
	return tilejson.New(s.id, s.desc.MinZoom, s.desc.MaxZoom, s.desc.Bounds)
}

func (s *TableSource) CloneHandle() source.Source {
	clone := *s
	return &clone
}

// GetGeomQuery builds the geometry-selection subquery: ST_AsMVTGeom over
// the envelope CTE plus quoted property columns. The envelope is
// reprojected into the table's own SRID for the spatial filter when that
// SRID isn't already 3857.
func (s *TableSource) GetGeomQuery(xyz tilecoord.Xyz) string {
	var props strings.Builder
	for col := range s.desc.Properties {
		fmt.Fprintf(&props, ", %s", quoteIdent(col))
	}

	srcEnvelope := "bounds.mercator_envelope"
	if s.desc.SRID != 3857 {
		srcEnvelope = fmt.Sprintf("ST_Transform(bounds.mercator_envelope, %d)", s.desc.SRID)
	}

	return fmt.Sprintf(
		`SELECT ST_AsMVTGeom(ST_Transform(%s, 3857), bounds.mercator_envelope, %d, %d, %t) AS geom%s `+
			`FROM %s.%s, bounds `+
			`WHERE %s && %s`,
		quoteIdent(s.desc.GeometryColumn), s.desc.extent(), s.desc.buffer(), s.desc.clipGeom(), props.String(),
		quoteIdent(s.desc.Schema), quoteIdent(s.desc.Table),
		quoteIdent(s.desc.GeometryColumn), srcEnvelope,
	)
}

// GetTileQuery wraps GetGeomQuery in an ST_AsMVT aggregation returning a
// single bytea column.
func (s *TableSource) GetTileQuery(xyz tilecoord.Xyz) string {
	idColumn := ""
	if s.desc.IDColumn != nil {
		idColumn = fmt.Sprintf(", %s", quoteIdent(*s.desc.IDColumn))
	}

	return fmt.Sprintf(
		`SELECT ST_AsMVT(tile, %s, %d%s) AS mvt FROM (%s) AS tile`,
		quoteLiteral(s.id), s.desc.extent(), idColumn, s.GetGeomQuery(xyz),
	)
}

// BuildTileQuery prepends the tile-envelope CTE to GetTileQuery,
// completing the three-part query: envelope CTE, geometry selection,
// aggregation.
func (s *TableSource) BuildTileQuery(xyz tilecoord.Xyz) string {
	mb := tilecoord.TileMercatorBounds(xyz)
	cte := fmt.Sprintf(
		`WITH bounds AS (SELECT ST_MakeEnvelope(%f, %f, %f, %f, 3857) AS mercator_envelope) `,
		mb.MinX, mb.MinY, mb.MaxX, mb.MaxY,
	)
	return cte + s.GetTileQuery(xyz)
}

// quoteIdent double-quotes a SQL identifier, doubling any embedded
// quote, so arbitrary column/table/schema names are tolerated.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteLiteral single-quotes a SQL string literal, doubling any embedded
// quote.
func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

// GetTile executes the generated query and returns the single MVT bytea
// column. A missing row yields a zero-length tile rather than an error.
func (s *TableSource) GetTile(ctx context.Context, xyz tilecoord.Xyz, _ *source.UrlQuery) ([]byte, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &source.DbError{ID: s.id, Xyz: xyz, Cause: err}
	}
	defer conn.Release()

	query := s.BuildTileQuery(xyz)
	var tile []byte
	err = conn.QueryRow(ctx, query).Scan(&tile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []byte{}, nil
		}
		return nil, &source.DbError{ID: s.id, Xyz: xyz, Cause: err}
	}
	return tile, nil
}
