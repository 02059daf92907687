// Package tilecoord holds the (z, x, y) tile address type and the
// Web-Mercator bbox arithmetic shared by the archive and database backends.
package tilecoord

import (
	"fmt"
	"math"

	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// MaxZoom is the highest zoom level this server will ever address.
// Requests above it are rejected with BadRequest before they reach a
// backend.
const MaxZoom = 30

// Xyz is an immutable tile coordinate. The zero value is the single root
// tile of zoom 0.
type Xyz struct {
	Z uint8
	X uint32
	Y uint32
}

func (c Xyz) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Valid reports whether c obeys x, y < 2^z and z <= MaxZoom.
func (c Xyz) Valid() bool {
	if c.Z > MaxZoom {
		return false
	}
	n := uint32(1) << c.Z
	return c.X < n && c.Y < n
}

// Bounds is a WGS-84 rectangle expressed as (west, south, east, north).
// Equality on Bounds is bitwise float equality, not semantic equality;
// callers comparing bounds derived from different computations should
// round or use a tolerance.
type Bounds struct {
	West  float64
	South float64
	East  float64
	North float64
}

// MercatorBounds is a rectangle in EPSG:3857 meters.
type MercatorBounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// TileMercatorBounds returns the Web-Mercator envelope of tile c.
func TileMercatorBounds(c Xyz) MercatorBounds {
	t := maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
	b := t.Bound()
	min := project.WGS84.ToMercator(b.Min)
	max := project.WGS84.ToMercator(b.Max)
	return MercatorBounds{MinX: min.X(), MinY: min.Y(), MaxX: max.X(), MaxY: max.Y()}
}

// FullMercatorExtent is the fixed bounding square of the Web Mercator
// projection, independent of zoom; TileMercatorBounds(Xyz{0,0,0}) must
// equal this within floating point tolerance.
var FullMercatorExtent = MercatorBounds{
	MinX: -20037508.342789244,
	MinY: -20037508.342789244,
	MaxX: 20037508.342789244,
	MaxY: 20037508.342789244,
}

// ValidZoom reports whether z falls within [min, max], treating a nil
// bound as open on that side.
func ValidZoom(z uint8, min, max *uint8) bool {
	if min != nil && z < *min {
		return false
	}
	if max != nil && z > *max {
		return false
	}
	return true
}

// ApproxEqual reports whether two floats agree within tolerance, used by
// tests that compare computed bounds instead of relying on bitwise
// equality.
func ApproxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
