package pgsource

import "testing"

func TestResolveSRIDFallsBackToDefault(t *testing.T) {
	def := int32(900913)
	srid, ok := resolveSRID(0, &def, "public.table_source.geom")
	if !ok {
		t.Fatal("resolveSRID(0, default) ok = false, want true")
	}
	if srid != 900913 {
		t.Errorf("resolveSRID(0, 900913) = %d, want 900913", srid)
	}
}

func TestResolveSRIDSkipsZeroWithoutDefault(t *testing.T) {
	if _, ok := resolveSRID(0, nil, "public.table_source.geom"); ok {
		t.Error("resolveSRID(0, nil) ok = true, want the row skipped")
	}
}

func TestResolveSRIDKeepsNonzero(t *testing.T) {
	def := int32(900913)
	srid, ok := resolveSRID(4326, &def, "public.table_source.geom")
	if !ok || srid != 4326 {
		t.Errorf("resolveSRID(4326, default) = (%d, %v), want (4326, true)", srid, ok)
	}
}

func TestParseBoxWKTValid(t *testing.T) {
	b, ok := parseBoxWKT("BOX(-180 -85,180 85)")
	if !ok {
		t.Fatal("parseBoxWKT() ok = false, want true")
	}
	if b.West != -180 || b.South != -85 || b.East != 180 || b.North != 85 {
		t.Errorf("parseBoxWKT() = %+v, want West=-180 South=-85 East=180 North=85", b)
	}
}

func TestParseBoxWKTTrimsWhitespace(t *testing.T) {
	b, ok := parseBoxWKT("  BOX(0 0,10 10)  ")
	if !ok {
		t.Fatal("parseBoxWKT() ok = false, want true")
	}
	if b.West != 0 || b.North != 10 {
		t.Errorf("parseBoxWKT() = %+v, want West=0 North=10", b)
	}
}

func TestParseBoxWKTRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"BOX()",
		"BOX(0 0)",
		"BOX(a b,c d)",
		"not a box at all",
	}
	for _, wkt := range cases {
		if _, ok := parseBoxWKT(wkt); ok {
			t.Errorf("parseBoxWKT(%q) ok = true, want false", wkt)
		}
	}
}
