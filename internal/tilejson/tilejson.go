// Package tilejson builds TileJSON 2.2.0 descriptors for sources. A
// source that declares neither minzoom nor maxzoom defaults to the full
// 0-30 range; a source that declares only one bound gets the default for
// the other.
package tilejson

import "github.com/nullisland/tileserv/internal/tilecoord"

const (
	// DefaultMinZoom and DefaultMaxZoom are each applied to whichever
	// bound a source leaves undeclared.
	DefaultMinZoom uint8 = 0
	DefaultMaxZoom uint8 = 30
)

// TileJSON mirrors the subset of the TileJSON 2.2.0 spec this server
// needs to emit; the `tiles` URL template array is always left empty
// here since assembling request URLs is the HTTP adapter's job.
type TileJSON struct {
	TileJSON string      `json:"tilejson"`
	Name     string      `json:"name"`
	Version  string      `json:"version"`
	Scheme   string      `json:"scheme"`
	Tiles    []string    `json:"tiles"`
	MinZoom  uint8       `json:"minzoom"`
	MaxZoom  uint8       `json:"maxzoom"`
	Bounds   *[4]float64 `json:"bounds,omitempty"`
}

// New builds a TileJSON for name, applying the default for each of
// minzoom/maxzoom that is nil. Bounds are emitted in the spec's
// [west, south, east, north] array order.
func New(name string, minzoom, maxzoom *uint8, bounds *tilecoord.Bounds) TileJSON {
	tj := TileJSON{
		TileJSON: "2.2.0",
		Name:     name,
		Version:  "1.0.0",
		Scheme:   "xyz",
		Tiles:    []string{},
		MinZoom:  DefaultMinZoom,
		MaxZoom:  DefaultMaxZoom,
	}
	if bounds != nil {
		tj.Bounds = &[4]float64{bounds.West, bounds.South, bounds.East, bounds.North}
	}
	if minzoom != nil {
		tj.MinZoom = *minzoom
	}
	if maxzoom != nil {
		tj.MaxZoom = *maxzoom
	}
	return tj
}
