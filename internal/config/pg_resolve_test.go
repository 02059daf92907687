package config

import (
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/nullisland/tileserv/internal/idresolver"
	"github.com/nullisland/tileserv/internal/pgpool"
	"github.com/nullisland/tileserv/internal/pgsource"
	"github.com/nullisland/tileserv/internal/source"
	"github.com/nullisland/tileserv/internal/tilecoord"
)

func TestMergePgConfigsDistinctConnectionStringsStayIndependent(t *testing.T) {
	configs := []PgConfig{
		{ConnectionString: "postgres://a", DiscoverTables: true, DiscoverFunctions: true},
		{ConnectionString: "postgres://b", DiscoverTables: true, DiscoverFunctions: true},
	}

	merged := mergePgConfigsByConnection(configs)
	if len(merged) != 2 {
		t.Fatalf("mergePgConfigsByConnection() produced %d groups, want 2", len(merged))
	}
}

func TestMergePgConfigsSameConnectionStringMergesSourceMaps(t *testing.T) {
	size := uint32(5)
	configs := []PgConfig{
		{
			ConnectionString: "postgres://shared",
			PoolSize:         &size,
			TableSources: map[string]pgsource.TableDescriptor{
				"buildings": {Schema: "public", Table: "buildings", GeometryColumn: "geom"},
			},
		},
		{
			ConnectionString: "postgres://shared",
			PoolSize:         nil, // should not override the first group's pool size
			TableSources: map[string]pgsource.TableDescriptor{
				"roads": {Schema: "public", Table: "roads", GeometryColumn: "geom"},
			},
		},
	}

	merged := mergePgConfigsByConnection(configs)
	if len(merged) != 1 {
		t.Fatalf("mergePgConfigsByConnection() produced %d groups, want 1", len(merged))
	}

	g := merged[0]
	if g.PoolSize == nil || *g.PoolSize != 5 {
		t.Errorf("merged pool size = %v, want 5 (from the first config)", g.PoolSize)
	}
	if len(g.TableSources) != 2 {
		t.Fatalf("merged table sources = %v, want 2 entries", g.TableSources)
	}
	if _, ok := g.TableSources["buildings"]; !ok {
		t.Error("expected merged table sources to include \"buildings\"")
	}
	if _, ok := g.TableSources["roads"]; !ok {
		t.Error("expected merged table sources to include \"roads\"")
	}
}

func TestMergePgConfigsDuplicateSourceIDKeepsFirst(t *testing.T) {
	configs := []PgConfig{
		{
			ConnectionString: "postgres://shared",
			TableSources: map[string]pgsource.TableDescriptor{
				"buildings": {Schema: "public", Table: "buildings", GeometryColumn: "geom"},
			},
		},
		{
			ConnectionString: "postgres://shared",
			TableSources: map[string]pgsource.TableDescriptor{
				"buildings": {Schema: "other", Table: "structures", GeometryColumn: "geom"},
			},
		},
	}

	merged := mergePgConfigsByConnection(configs)
	got := merged[0].TableSources["buildings"]
	if got.Schema != "public" || got.Table != "buildings" {
		t.Errorf("merged \"buildings\" = %+v, want the first config's binding (public.buildings)", got)
	}
}

func TestMergeTableDescriptorDeclaredWinsOverDiscovered(t *testing.T) {
	declaredExtent := uint32(8192)
	declared := pgsource.TableDescriptor{
		Schema: "public", Table: "buildings", GeometryColumn: "geom",
		Extent: &declaredExtent,
	}
	discoveredExtent := pgsource.DefaultExtent
	discoveredBuffer := pgsource.DefaultBuffer
	discoveredClip := pgsource.DefaultClipGeom
	discovered := pgsource.TableDescriptor{
		Schema: "public", Table: "buildings", GeometryColumn: "geom",
		SRID: 4326, GeometryType: "POLYGON",
		Extent: &discoveredExtent, Buffer: &discoveredBuffer, ClipGeom: &discoveredClip,
	}

	merged := mergeTableDescriptor(declared, discovered)
	if merged.SRID != 4326 {
		t.Errorf("merged.SRID = %d, want discovered value 4326", merged.SRID)
	}
	if merged.Extent == nil || *merged.Extent != 8192 {
		t.Errorf("merged.Extent = %v, want declared override 8192", merged.Extent)
	}
	if merged.GeometryType != "POLYGON" {
		t.Errorf("merged.GeometryType = %q, want discovered value POLYGON", merged.GeometryType)
	}
}

func TestPgConfigFinalizeDefaultsDiscoveryFlags(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	c := &PgConfig{ConnectionString: "postgres://x"}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !c.DiscoverTables || !c.DiscoverFunctions {
		t.Errorf("Finalize() discovery flags = (%v,%v), want (true,true) with no declared sources", c.DiscoverTables, c.DiscoverFunctions)
	}
	if c.PoolSize == nil || *c.PoolSize != 20 {
		t.Errorf("Finalize() pool size = %v, want default 20", c.PoolSize)
	}
}

func TestPgConfigFinalizeDisablesDiscoveryWhenSourcesDeclared(t *testing.T) {
	c := &PgConfig{
		ConnectionString: "postgres://x",
		TableSources: map[string]pgsource.TableDescriptor{
			"buildings": {Schema: "public", Table: "buildings", GeometryColumn: "geom"},
		},
	}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if c.DiscoverTables || c.DiscoverFunctions {
		t.Errorf("Finalize() discovery flags = (%v,%v), want (false,false) with declared table sources", c.DiscoverTables, c.DiscoverFunctions)
	}
}

func TestPgConfigFinalizeFailsWithoutConnectionString(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	c := &PgConfig{}
	if err := c.Finalize(); err == nil {
		t.Error("Finalize() with no connection_string and no DATABASE_URL should fail")
	}
}

// discoveredTable builds a descriptor the way DiscoverTables would,
// with the standard extent/buffer/clip defaults filled in.
func discoveredTable(schema, table, geomCol string, srid uint32) pgsource.TableDescriptor {
	ext, buf, clip := pgsource.DefaultExtent, pgsource.DefaultBuffer, pgsource.DefaultClipGeom
	return pgsource.TableDescriptor{
		Schema: schema, Table: table, GeometryColumn: geomCol, SRID: srid,
		Extent: &ext, Buffer: &buf, ClipGeom: &clip,
	}
}

func sortedIDs(m map[string]source.Source) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func TestMaterializeAutoDiscoveryRegistersBareAndExplicitIDs(t *testing.T) {
	tables := pgsource.DiscoveredTables{
		"public": {
			"table_source": {
				"geom": discoveredTable("public", "table_source", "geom", 4326),
			},
		},
	}
	group := mergedPgGroup{DiscoverTables: true, DiscoverFunctions: true}
	pool := &pgpool.Pool{ID: "pg_test"}

	out := make(map[string]source.Source)
	if err := materializePoolSources(group, pool, tables, pgsource.DiscoveredFunctions{}, idresolver.New(), out); err != nil {
		t.Fatalf("materializePoolSources: %v", err)
	}

	want := []string{"public.table_source", "public.table_source.geom"}
	if got := sortedIDs(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("auto-discovered ids = %v, want %v", got, want)
	}

	ts, ok := out["public.table_source.geom"].(*pgsource.TableSource)
	if !ok {
		t.Fatalf("registered source has type %T, want *pgsource.TableSource", out["public.table_source.geom"])
	}
	q := ts.GetTileQuery(tilecoord.Xyz{})
	if !strings.Contains(q, "4096") {
		t.Errorf("discovered source query %q does not carry the default extent 4096", q)
	}
}

func TestMaterializeDeclaredSourceMissingInDatabaseIsSkipped(t *testing.T) {
	group := mergedPgGroup{
		TableSources: map[string]pgsource.TableDescriptor{
			"ghost": {Schema: "public", Table: "ghost", GeometryColumn: "geom"},
		},
	}
	pool := &pgpool.Pool{ID: "pg_test"}

	out := make(map[string]source.Source)
	if err := materializePoolSources(group, pool, pgsource.DiscoveredTables{}, pgsource.DiscoveredFunctions{}, idresolver.New(), out); err != nil {
		t.Fatalf("materializePoolSources: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected a missing declared table to be skipped, got %v", sortedIDs(out))
	}
}

func TestMaterializeDeclaredExtentZeroFails(t *testing.T) {
	zero := uint32(0)
	group := mergedPgGroup{
		TableSources: map[string]pgsource.TableDescriptor{
			"buildings": {Schema: "public", Table: "buildings", GeometryColumn: "geom", Extent: &zero},
		},
	}
	tables := pgsource.DiscoveredTables{
		"public": {
			"buildings": {"geom": discoveredTable("public", "buildings", "geom", 4326)},
		},
	}
	pool := &pgpool.Pool{ID: "pg_test"}

	out := make(map[string]source.Source)
	if err := materializePoolSources(group, pool, tables, pgsource.DiscoveredFunctions{}, idresolver.New(), out); err == nil {
		t.Error("materializePoolSources accepted a declared extent of 0")
	}
}

func TestMaterializeDiscoveryOrderingIsDeterministic(t *testing.T) {
	tables := pgsource.DiscoveredTables{
		"public": {
			"roads": {
				"geom":      discoveredTable("public", "roads", "geom", 4326),
				"geom_3857": discoveredTable("public", "roads", "geom_3857", 3857),
			},
			"buildings": {
				"geom": discoveredTable("public", "buildings", "geom", 4326),
			},
		},
		"tiger": {
			"blocks": {"geom": discoveredTable("tiger", "blocks", "geom", 4269)},
		},
	}
	functions := pgsource.DiscoveredFunctions{
		"public": {
			"get_tile": {Schema: "public", Function: "get_tile"},
		},
	}
	group := mergedPgGroup{DiscoverTables: true, DiscoverFunctions: true}
	pool := &pgpool.Pool{ID: "pg_test"}

	runs := make([][]string, 2)
	for i := range runs {
		out := make(map[string]source.Source)
		if err := materializePoolSources(group, pool, tables, functions, idresolver.New(), out); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		runs[i] = sortedIDs(out)
	}
	if !reflect.DeepEqual(runs[0], runs[1]) {
		t.Errorf("discovery produced different id sets across runs:\n  %v\n  %v", runs[0], runs[1])
	}

	// The bare public.roads id must always go to the first geometry
	// column in sorted order (geom, not geom_3857).
	found := false
	for _, id := range runs[0] {
		if id == "public.roads" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a bare public.roads id in %v", runs[0])
	}
}

func TestCrossBackendIDCollisionRenamesSecondSource(t *testing.T) {
	dir := t.TempDir()
	writeMinimalPMTiles(t, filepath.Join(dir, "points.pmtiles"))

	idr := idresolver.New()

	archiveCfg := &ArchiveConfig{FileConfig: FileConfig{Paths: []string{dir}}}
	archived, err := ResolveArchiveGroup(archiveCfg, idr)
	if err != nil {
		t.Fatalf("ResolveArchiveGroup: %v", err)
	}
	if _, ok := archived["points"]; !ok {
		t.Fatalf("archive group ids = %v, want \"points\"", keysOf(archived))
	}

	group := mergedPgGroup{
		TableSources: map[string]pgsource.TableDescriptor{
			"points": {Schema: "public", Table: "points", GeometryColumn: "geom"},
		},
	}
	tables := pgsource.DiscoveredTables{
		"public": {
			"points": {"geom": discoveredTable("public", "points", "geom", 4326)},
		},
	}
	pool := &pgpool.Pool{ID: "pg_test"}

	out := make(map[string]source.Source)
	if err := materializePoolSources(group, pool, tables, pgsource.DiscoveredFunctions{}, idr, out); err != nil {
		t.Fatalf("materializePoolSources: %v", err)
	}
	if _, ok := out["points.1"]; !ok {
		t.Errorf("database group ids = %v, want the colliding id renamed to \"points.1\"", sortedIDs(out))
	}
}

func TestConfigFinalizeFailsWithNoSources(t *testing.T) {
	c := &Config{}
	if err := c.Finalize(); err != ErrNoSources {
		t.Errorf("Finalize() error = %v, want ErrNoSources", err)
	}
}

func TestConfigFinalizeSucceedsWithArchiveOnly(t *testing.T) {
	c := &Config{PMTiles: &ArchiveConfig{FileConfig: FileConfig{Paths: []string{"/tmp"}}}}
	if err := c.Finalize(); err != nil {
		t.Errorf("Finalize() with a declared pmtiles path should succeed, got %v", err)
	}
}
