package pgsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/nullisland/tileserv/internal/pgpool"
	"github.com/nullisland/tileserv/internal/tilecoord"
)

// getTableSourcesSQL enumerates every spatial column registered in
// geometry_columns (or an equivalent catalog view).
const getTableSourcesSQL = `
SELECT
    f_table_schema,
    f_table_name,
    f_geometry_column,
    srid,
    type,
    COALESCE(
        (SELECT jsonb_object_agg(a.attname, pg_catalog.format_type(a.atttypid, a.atttypmod))
         FROM pg_attribute a
         WHERE a.attrelid = (quote_ident(f_table_schema) || '.' || quote_ident(f_table_name))::regclass
           AND a.attnum > 0 AND NOT a.attisdropped
           AND a.attname NOT IN (f_geometry_column)),
        '{}'::jsonb
    ) AS properties
FROM geometry_columns
ORDER BY f_table_schema, f_table_name, f_geometry_column
`

// getFunctionSourcesSQL enumerates callable tile functions matching the
// (z, x, y [, query]) -> bytea signature family.
const getFunctionSourcesSQL = `
SELECT n.nspname AS schema, p.proname AS function, pg_get_function_arguments(p.oid) AS args
FROM pg_proc p
JOIN pg_namespace n ON n.oid = p.pronamespace
WHERE p.prorettype = 'bytea'::regtype
  AND pg_get_function_arguments(p.oid) ILIKE 'z integer, x integer, y integer%'
ORDER BY n.nspname, p.proname
`

// getSourceBoundsSQLTemplate computes a table's bounding box in WGS-84; failure
// of this query is non-fatal and leaves bounds nil.
const getSourceBoundsSQLTemplate = `SELECT ST_AsText(ST_Extent(ST_Transform(%s, 4326))) AS bounds FROM %s.%s`

// DiscoveredTables is the three-level nested map schema -> table ->
// geometry_column -> descriptor. Callers iterate its keys in sorted
// order (see SortedSchemas) for deterministic materialization.
type DiscoveredTables map[string]map[string]map[string]TableDescriptor

// DiscoveredFunctions is the two-level nested map schema -> function ->
// descriptor.
type DiscoveredFunctions map[string]map[string]FunctionDescriptor

// DiscoverTables runs the table-discovery query against pool and builds
// the nested descriptor tree, applying the SRID-0 fallback/skip rule and
// computing bounds via a best-effort, non-fatal follow-up query. Tables
// with more than one geometry column are recorded under every column;
// the caller is responsible for registering both the bare table id and
// the column-qualified id when a table has more than one geometry
// column.
func DiscoverTables(ctx context.Context, pool *pgpool.Pool, defaultSRID *int32) (DiscoveredTables, error) {
	rows, err := pool.Raw().Query(ctx, getTableSourcesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(DiscoveredTables)
	duplicates := make(map[string]bool)
	seenTables := make(map[string]bool)

	for rows.Next() {
		var schema, table, geomCol, geomType string
		var srid int32
		var propsJSON []byte
		if err := rows.Scan(&schema, &table, &geomCol, &srid, &geomType, &propsJSON); err != nil {
			return nil, err
		}

		bareKey := schema + "." + table
		if seenTables[bareKey] {
			duplicates[bareKey] = true
		}
		seenTables[bareKey] = true

		srid, ok := resolveSRID(srid, defaultSRID, bareKey+"."+geomCol)
		if !ok {
			continue
		}

		var props map[string]string
		if err := json.Unmarshal(propsJSON, &props); err != nil {
			props = map[string]string{}
		}

		bounds := estimateBounds(ctx, pool, schema, table, geomCol, srid)

		ext, buf, clip := DefaultExtent, DefaultBuffer, DefaultClipGeom
		desc := TableDescriptor{
			Schema:         schema,
			Table:          table,
			SRID:           uint32(srid),
			GeometryColumn: geomCol,
			GeometryType:   geomType,
			Bounds:         bounds,
			Extent:         &ext,
			Buffer:         &buf,
			ClipGeom:       &clip,
			Properties:     props,
		}

		if out[schema] == nil {
			out[schema] = make(map[string]map[string]TableDescriptor)
		}
		if out[schema][table] == nil {
			out[schema][table] = make(map[string]TableDescriptor)
		}
		out[schema][table][geomCol] = desc
	}

	for bareKey := range duplicates {
		slog.Warn("table has multiple geometry columns", "table", bareKey)
		slog.Warn("specify the geometry column in the source name to disambiguate, e.g. schema.table.column")
	}

	return out, rows.Err()
}

// resolveSRID applies the SRID-0 fallback rule: a zero SRID takes the
// configured default_srid with a warning, or skips the column entirely
// (ok=false) when no default is configured.
func resolveSRID(srid int32, defaultSRID *int32, column string) (int32, bool) {
	if srid != 0 {
		return srid, true
	}
	if defaultSRID != nil {
		slog.Warn("table has SRID 0, using default_srid", "table", column, "default_srid", *defaultSRID)
		return *defaultSRID, true
	}
	slog.Warn("table has SRID 0 and no default_srid configured, skipping", "table", column)
	return 0, false
}

func estimateBounds(ctx context.Context, pool *pgpool.Pool, schema, table, geomCol string, srid int32) *tilecoord.Bounds {
	q := buildBoundsQuery(schema, table, geomCol)
	var wkt *string
	if err := pool.Raw().QueryRow(ctx, q).Scan(&wkt); err != nil || wkt == nil {
		return nil
	}
	b, ok := parseBoxWKT(*wkt)
	if !ok {
		return nil
	}
	return &b
}

func buildBoundsQuery(schema, table, geomCol string) string {
	return fmt.Sprintf(getSourceBoundsSQLTemplate, quoteIdent(geomCol), quoteIdent(schema), quoteIdent(table))
}

// parseBoxWKT parses PostGIS's ST_Extent text form, "BOX(west
// south,east north)", into Bounds. A malformed or empty string is
// reported via ok=false so the caller can fall back to nil bounds
// rather than erroring the whole discovery pass.
func parseBoxWKT(wkt string) (tilecoord.Bounds, bool) {
	wkt = strings.TrimSpace(wkt)
	wkt = strings.TrimPrefix(wkt, "BOX(")
	wkt = strings.TrimSuffix(wkt, ")")
	parts := strings.Split(wkt, ",")
	if len(parts) != 2 {
		return tilecoord.Bounds{}, false
	}
	min := strings.Fields(parts[0])
	max := strings.Fields(parts[1])
	if len(min) != 2 || len(max) != 2 {
		return tilecoord.Bounds{}, false
	}
	west, err1 := strconv.ParseFloat(min[0], 64)
	south, err2 := strconv.ParseFloat(min[1], 64)
	east, err3 := strconv.ParseFloat(max[0], 64)
	north, err4 := strconv.ParseFloat(max[1], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return tilecoord.Bounds{}, false
	}
	return tilecoord.Bounds{West: west, South: south, East: east, North: north}, true
}

// DiscoverFunctions runs the function-discovery query against pool.
func DiscoverFunctions(ctx context.Context, pool *pgpool.Pool) (DiscoveredFunctions, error) {
	rows, err := pool.Raw().Query(ctx, getFunctionSourcesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(DiscoveredFunctions)
	for rows.Next() {
		var schema, function, args string
		if err := rows.Scan(&schema, &function, &args); err != nil {
			return nil, err
		}
		desc := FunctionDescriptor{
			Schema:         schema,
			Function:       function,
			HasQueryParams: len(args) > len("z integer, x integer, y integer"),
		}
		if out[schema] == nil {
			out[schema] = make(map[string]FunctionDescriptor)
		}
		out[schema][function] = desc
	}
	return out, rows.Err()
}

// SortedSchemas returns m's keys sorted, so discovery output is
// deterministic at every nesting level.
func SortedSchemas[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
