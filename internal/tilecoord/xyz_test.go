package tilecoord

import "testing"

func TestXyzValid(t *testing.T) {
	cases := []struct {
		name string
		c    Xyz
		want bool
	}{
		{"root", Xyz{0, 0, 0}, true},
		{"z1 corner", Xyz{1, 1, 1}, true},
		{"z1 out of range x", Xyz{1, 2, 0}, false},
		{"z1 out of range y", Xyz{1, 0, 2}, false},
		{"z beyond max", Xyz{MaxZoom + 1, 0, 0}, false},
		{"z2, x and y at limit", Xyz{2, 3, 3}, true},
		{"z2, x over limit", Xyz{2, 4, 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.c.Valid(); got != tc.want {
				t.Errorf("Xyz{%d,%d,%d}.Valid() = %v, want %v", tc.c.Z, tc.c.X, tc.c.Y, got, tc.want)
			}
		})
	}
}

func TestTileMercatorBoundsRootTileIsFullExtent(t *testing.T) {
	got := TileMercatorBounds(Xyz{0, 0, 0})
	const tol = 1e-6
	if !ApproxEqual(got.MinX, FullMercatorExtent.MinX, tol) ||
		!ApproxEqual(got.MinY, FullMercatorExtent.MinY, tol) ||
		!ApproxEqual(got.MaxX, FullMercatorExtent.MaxX, tol) ||
		!ApproxEqual(got.MaxY, FullMercatorExtent.MaxY, tol) {
		t.Errorf("TileMercatorBounds(0/0/0) = %+v, want %+v", got, FullMercatorExtent)
	}
}

func TestTileMercatorBoundsQuadrantsPartitionExtent(t *testing.T) {
	nw := TileMercatorBounds(Xyz{1, 0, 0})
	ne := TileMercatorBounds(Xyz{1, 1, 0})
	sw := TileMercatorBounds(Xyz{1, 0, 1})
	se := TileMercatorBounds(Xyz{1, 1, 1})

	const tol = 1e-6
	if !ApproxEqual(nw.MinX, FullMercatorExtent.MinX, tol) {
		t.Errorf("nw.MinX = %v, want %v", nw.MinX, FullMercatorExtent.MinX)
	}
	if !ApproxEqual(ne.MaxX, FullMercatorExtent.MaxX, tol) {
		t.Errorf("ne.MaxX = %v, want %v", ne.MaxX, FullMercatorExtent.MaxX)
	}
	if !ApproxEqual(nw.MaxX, ne.MinX, tol) {
		t.Errorf("quadrants should share a boundary: nw.MaxX=%v ne.MinX=%v", nw.MaxX, ne.MinX)
	}
	if !ApproxEqual(sw.MinY, FullMercatorExtent.MinY, tol) {
		t.Errorf("sw.MinY = %v, want %v", sw.MinY, FullMercatorExtent.MinY)
	}
	if !ApproxEqual(se.MaxY, nw.MinY, tol) {
		t.Errorf("se.MaxY should meet nw.MinY: se.MaxY=%v nw.MinY=%v", se.MaxY, nw.MinY)
	}
}

func TestValidZoom(t *testing.T) {
	z5, z10 := uint8(5), uint8(10)
	cases := []struct {
		name     string
		z        uint8
		min, max *uint8
		want     bool
	}{
		{"no bounds", 100, nil, nil, true},
		{"within bounds", 7, &z5, &z10, true},
		{"below min", 4, &z5, &z10, false},
		{"above max", 11, &z5, &z10, false},
		{"only min", 20, &z5, nil, true},
		{"only max, violated", 20, nil, &z10, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidZoom(tc.z, tc.min, tc.max); got != tc.want {
				t.Errorf("ValidZoom(%d, %v, %v) = %v, want %v", tc.z, tc.min, tc.max, got, tc.want)
			}
		})
	}
}
