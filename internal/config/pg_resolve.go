package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/nullisland/tileserv/internal/idresolver"
	"github.com/nullisland/tileserv/internal/pgpool"
	"github.com/nullisland/tileserv/internal/pgsource"
	"github.com/nullisland/tileserv/internal/source"
)

// ResolvePgGroup resolves every declared PgConfig into live table and
// function sources, running discovery where requested.
//
// Two or more PgConfig entries sharing the same connection_string are
// merged rather than rejected (see DESIGN.md): their table_sources and
// function_sources maps are combined (first entry's binding for a given
// id wins, later duplicates are logged and dropped), their
// discover_tables/discover_functions flags are OR'd, and non-source
// pool settings (pool size, TLS, default_srid) are taken from the first
// entry that declares the connection string.
func ResolvePgGroup(ctx context.Context, configs []PgConfig, pools *pgpool.Registry, idr *idresolver.Resolver) (map[string]source.Source, error) {
	merged := mergePgConfigsByConnection(configs)

	// Pools resolve concurrently; each writes into its own slot and the
	// results merge after the join. The shared id resolver serializes id
	// assignment internally, so cross-pool collisions stay safe.
	results := make([]map[string]source.Source, len(merged))
	g, ctx := errgroup.WithContext(ctx)
	for i, group := range merged {
		g.Go(func() error {
			pool, created, err := pools.Get(ctx, pgpool.Config{
				ConnectionString:         group.ConnectionString,
				PoolSize:                 valueOr(group.PoolSize, defaultPoolSize),
				CARootFile:               group.CARootFile,
				DangerAcceptInvalidCerts: group.DangerAcceptInvalidCerts,
			})
			if err != nil {
				slog.Warn("failed to open database pool, skipping group", "error", err)
				return nil
			}
			if created {
				slog.Info("opened database pool", "pool_id", pool.ID)
			}

			out := make(map[string]source.Source)
			if err := resolvePool(ctx, group, pool, idr, out); err != nil {
				slog.Warn("database group resolution failed, skipping remaining sources for this pool", "pool_id", pool.ID, "error", err)
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]source.Source)
	for _, m := range results {
		for id, s := range m {
			out[id] = s
		}
	}
	return out, nil
}

type mergedPgGroup struct {
	ConnectionString         string
	CARootFile               string
	DangerAcceptInvalidCerts bool
	DefaultSRID              *int32
	PoolSize                 *uint32
	DiscoverTables           bool
	DiscoverFunctions        bool
	TableSources             map[string]pgsource.TableDescriptor
	FunctionSources          map[string]pgsource.FunctionDescriptor
}

func mergePgConfigsByConnection(configs []PgConfig) []mergedPgGroup {
	order := make([]string, 0, len(configs))
	byConn := make(map[string]*mergedPgGroup)

	for _, c := range configs {
		g, ok := byConn[c.ConnectionString]
		if !ok {
			g = &mergedPgGroup{
				ConnectionString:         c.ConnectionString,
				CARootFile:               c.CARootFile,
				DangerAcceptInvalidCerts: c.DangerAcceptInvalidCerts,
				DefaultSRID:              c.DefaultSRID,
				PoolSize:                 c.PoolSize,
				TableSources:             map[string]pgsource.TableDescriptor{},
				FunctionSources:          map[string]pgsource.FunctionDescriptor{},
			}
			byConn[c.ConnectionString] = g
			order = append(order, c.ConnectionString)
		} else {
			slog.Warn("multiple postgres configs share a connection string; pool settings from the first one win", "connection_string", redactConnString(c.ConnectionString))
		}

		g.DiscoverTables = g.DiscoverTables || c.DiscoverTables
		g.DiscoverFunctions = g.DiscoverFunctions || c.DiscoverFunctions

		for id, d := range c.TableSources {
			if _, dup := g.TableSources[id]; dup {
				slog.Warn("duplicate table source id across merged postgres configs, keeping the first", "id", id)
				continue
			}
			g.TableSources[id] = d
		}
		for id, d := range c.FunctionSources {
			if _, dup := g.FunctionSources[id]; dup {
				slog.Warn("duplicate function source id across merged postgres configs, keeping the first", "id", id)
				continue
			}
			g.FunctionSources[id] = d
		}
	}

	out := make([]mergedPgGroup, 0, len(order))
	for _, conn := range order {
		out = append(out, *byConn[conn])
	}
	return out
}

func resolvePool(ctx context.Context, group mergedPgGroup, pool *pgpool.Pool, idr *idresolver.Resolver, out map[string]source.Source) error {
	tables, err := pgsource.DiscoverTables(ctx, pool, group.DefaultSRID)
	if err != nil {
		return fmt.Errorf("introspecting tables: %w", err)
	}
	functions, err := pgsource.DiscoverFunctions(ctx, pool)
	if err != nil {
		return fmt.Errorf("introspecting functions: %w", err)
	}

	return materializePoolSources(group, pool, tables, functions, idr, out)
}

// materializePoolSources turns a pool's discovery output into registered
// sources: declared table/function sources are merged over their
// discovered descriptors first, then auto-discovery emits whatever
// remains, in sorted key order so id assignment is deterministic across
// runs. It touches no database; everything it needs is in tables and
// functions.
func materializePoolSources(group mergedPgGroup, pool *pgpool.Pool, tables pgsource.DiscoveredTables, functions pgsource.DiscoveredFunctions, idr *idresolver.Resolver, out map[string]source.Source) error {
	usedTables := make(map[[3]string]bool)
	usedFunctions := make(map[[2]string]bool)

	for id, declared := range group.TableSources {
		discovered, ok := tables[declared.Schema][declared.Table][declared.GeometryColumn]
		if !ok {
			slog.Warn("declared table source not found in database, skipping", "id", id, "schema", declared.Schema, "table", declared.Table, "column", declared.GeometryColumn)
			continue
		}

		merged := mergeTableDescriptor(declared, discovered)
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("table source %q: %w", id, err)
		}

		resolvedID := idr.Resolve(id, pool.ID+"."+merged.FormatID())
		if resolvedID != id {
			slog.Warn("table source id renamed due to collision", "requested", id, "resolved", resolvedID)
		}

		out[resolvedID] = pgsource.NewTableSource(resolvedID, merged, pool)
		usedTables[[3]string{declared.Schema, declared.Table, declared.GeometryColumn}] = true
	}

	for id, declared := range group.FunctionSources {
		discovered, ok := functions[declared.Schema][declared.Function]
		if !ok {
			slog.Warn("declared function source not found in database, skipping", "id", id, "schema", declared.Schema, "function", declared.Function)
			continue
		}

		merged := mergeFunctionDescriptor(declared, discovered)
		resolvedID := idr.Resolve(id, pool.ID+"."+merged.FormatID())
		if resolvedID != id {
			slog.Warn("function source id renamed due to collision", "requested", id, "resolved", resolvedID)
		}

		out[resolvedID] = pgsource.NewFunctionSource(resolvedID, merged, pool)
		usedFunctions[[2]string{declared.Schema, declared.Function}] = true
	}

	if group.DiscoverTables {
		for _, schema := range pgsource.SortedSchemas(tables) {
			byTable := tables[schema]
			tableNames := make([]string, 0, len(byTable))
			for t := range byTable {
				tableNames = append(tableNames, t)
			}
			sortStrings(tableNames)

			for _, table := range tableNames {
				byGeom := byTable[table]
				geomCols := make([]string, 0, len(byGeom))
				for g := range byGeom {
					geomCols = append(geomCols, g)
				}
				sortStrings(geomCols)

				bareClaimed := false
				for _, geomCol := range geomCols {
					key := [3]string{schema, table, geomCol}
					if usedTables[key] {
						continue
					}
					desc := byGeom[geomCol]

					bareID := schema + "." + table
					explicitID := desc.FormatID()

					if !bareClaimed {
						bareClaimed = true
						id := idr.Resolve(bareID, pool.ID+"."+explicitID)
						out[id] = pgsource.NewTableSource(id, desc, pool)
					}
					id := idr.Resolve(explicitID, pool.ID+"."+explicitID)
					out[id] = pgsource.NewTableSource(id, desc, pool)
				}
			}
		}
	}

	if group.DiscoverFunctions {
		for _, schema := range pgsource.SortedSchemas(functions) {
			byFunc := functions[schema]
			names := make([]string, 0, len(byFunc))
			for n := range byFunc {
				names = append(names, n)
			}
			sortStrings(names)

			for _, name := range names {
				key := [2]string{schema, name}
				if usedFunctions[key] {
					continue
				}
				desc := byFunc[name]
				id := idr.Resolve(schema+"."+name, pool.ID+"."+desc.FormatID())
				out[id] = pgsource.NewFunctionSource(id, desc, pool)
			}
		}
	}

	return nil
}

// mergeTableDescriptor applies the declared descriptor's fields over the
// discovered one: declared wins wherever it's non-zero/non-nil, the
// discovered value fills in the rest (schema/table/geometry_column are
// always taken from declared since that's how the lookup key was
// formed).
func mergeTableDescriptor(declared, discovered pgsource.TableDescriptor) pgsource.TableDescriptor {
	out := discovered
	out.Schema, out.Table, out.GeometryColumn = declared.Schema, declared.Table, declared.GeometryColumn
	if declared.SRID != 0 {
		out.SRID = declared.SRID
	}
	if declared.IDColumn != nil {
		out.IDColumn = declared.IDColumn
	}
	if declared.MinZoom != nil {
		out.MinZoom = declared.MinZoom
	}
	if declared.MaxZoom != nil {
		out.MaxZoom = declared.MaxZoom
	}
	if declared.Bounds != nil {
		out.Bounds = declared.Bounds
	}
	if declared.Extent != nil {
		out.Extent = declared.Extent
	}
	if declared.Buffer != nil {
		out.Buffer = declared.Buffer
	}
	if declared.ClipGeom != nil {
		out.ClipGeom = declared.ClipGeom
	}
	if declared.GeometryType != "" {
		out.GeometryType = declared.GeometryType
	}
	if len(declared.Properties) > 0 {
		out.Properties = declared.Properties
	}
	return out
}

func mergeFunctionDescriptor(declared, discovered pgsource.FunctionDescriptor) pgsource.FunctionDescriptor {
	out := discovered
	out.Schema, out.Function = declared.Schema, declared.Function
	if declared.MinZoom != nil {
		out.MinZoom = declared.MinZoom
	}
	if declared.MaxZoom != nil {
		out.MaxZoom = declared.MaxZoom
	}
	if declared.Bounds != nil {
		out.Bounds = declared.Bounds
	}
	return out
}

func valueOr(v *uint32, def uint32) uint32 {
	if v != nil {
		return *v
	}
	return def
}

// redactConnString drops the password from a connection string before it
// reaches the logs.
func redactConnString(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	u.User = url.User(u.User.Username())
	return u.String()
}
