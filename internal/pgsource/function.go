package pgsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nullisland/tileserv/internal/pgpool"
	"github.com/nullisland/tileserv/internal/source"
	"github.com/nullisland/tileserv/internal/tilecoord"
	"github.com/nullisland/tileserv/internal/tileformat"
	"github.com/nullisland/tileserv/internal/tilejson"
)

// FunctionDescriptor is the declarative shape of a database function
// source. The referenced function must accept (z, x, y) and optionally
// a fourth JSON query parameter, returning bytea.
type FunctionDescriptor struct {
	Schema         string            `yaml:"schema"`
	Function       string            `yaml:"function"`
	MinZoom        *uint8            `yaml:"minzoom,omitempty"`
	MaxZoom        *uint8            `yaml:"maxzoom,omitempty"`
	Bounds         *tilecoord.Bounds `yaml:"bounds,omitempty"`
	HasQueryParams bool              `yaml:"-"`
}

// FormatID returns the fully qualified schema.function form used as the
// ID-resolver signature suffix.
func (d FunctionDescriptor) FormatID() string {
	return fmt.Sprintf("%s.%s", d.Schema, d.Function)
}

// FunctionSource is the Source implementation backing a database
// function.
type FunctionSource struct {
	id   string
	desc FunctionDescriptor
	pool *pgpool.Pool
}

var _ source.Source = (*FunctionSource)(nil)

// NewFunctionSource builds a FunctionSource bound to id, calling desc's
// function through pool.
func NewFunctionSource(id string, desc FunctionDescriptor, pool *pgpool.Pool) *FunctionSource {
	return &FunctionSource{id: id, desc: desc, pool: pool}
}

func (s *FunctionSource) ID() string { return s.id }

func (s *FunctionSource) Format() tileformat.DataFormat { return tileformat.Mvt }

func (s *FunctionSource) SupportsURLQuery() bool { return s.desc.HasQueryParams }

func (s *FunctionSource) ValidZoom(z uint8) bool {
	return tilecoord.ValidZoom(z, s.desc.MinZoom, s.desc.MaxZoom)
}

func (s *FunctionSource) TileJSON() tilejson.TileJSON {
	return tilejson.New(s.id, s.desc.MinZoom, s.desc.MaxZoom, s.desc.Bounds)
}

func (s *FunctionSource) CloneHandle() source.Source {
	clone := *s
	return &clone
}

// CallQuery builds `SELECT schema.function(z, x, y [, query_json])`.
func (s *FunctionSource) CallQuery(xyz tilecoord.Xyz, query *source.UrlQuery) (string, []interface{}) {
	args := []interface{}{int32(xyz.Z), int32(xyz.X), int32(xyz.Y)}
	placeholders := "$1, $2, $3"

	if s.desc.HasQueryParams && query != nil {
		args = append(args, queryToJSON(*query))
		placeholders += ", $4"
	}

	q := fmt.Sprintf("SELECT %s.%s(%s)", quoteIdent(s.desc.Schema), quoteIdent(s.desc.Function), placeholders)
	return q, args
}

func queryToJSON(q string) string {
	b, err := json.Marshal(q)
	if err != nil {
		return "null"
	}
	return string(b)
}

// GetTile executes the function call and returns the single MVT bytea
// column. A missing row yields a zero-length tile rather than an error.
func (s *FunctionSource) GetTile(ctx context.Context, xyz tilecoord.Xyz, query *source.UrlQuery) ([]byte, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &source.DbError{ID: s.id, Xyz: xyz, Cause: err}
	}
	defer conn.Release()

	q, args := s.CallQuery(xyz, query)
	var tile []byte
	err = conn.QueryRow(ctx, q, args...).Scan(&tile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []byte{}, nil
		}
		return nil, &source.DbError{ID: s.id, Xyz: xyz, Cause: err}
	}
	return tile, nil
}
