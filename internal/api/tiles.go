// Package api defines the Huma API routes and handlers for the tile
// server.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nullisland/tileserv/internal/source"
	"github.com/nullisland/tileserv/internal/tilecoord"
	"github.com/nullisland/tileserv/internal/tileformat"
	"github.com/nullisland/tileserv/internal/tilejson"
)

// TileHandler serves tile bytes, TileJSON metadata and a source catalog
// out of a source.Registry.
type TileHandler struct {
	registry *source.Registry
	baseURL  string
}

// NewTileHandler creates a handler backed by registry. baseURL (e.g.
// "http://localhost:3000") is used to build the absolute tile URL
// templates TileJSON responses embed, since the registry's sources
// never carry a URL of their own (see tilejson.TileJSON's Tiles field).
func NewTileHandler(registry *source.Registry, baseURL string) *TileHandler {
	return &TileHandler{registry: registry, baseURL: baseURL}
}

// RegisterRoutes registers all tile-server routes with Huma.
func (h *TileHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/", h.GetCatalog, huma.OperationTags("catalog"))
	huma.Get(api, "/{sourceId}", h.GetTileJSON, huma.OperationTags("tilejson"))
	huma.Get(api, "/{sourceId}/{z}/{x}/{y}", h.GetTile, huma.OperationTags("tiles"))
}

// HealthBody reports whether the server is accepting requests.
type HealthBody struct {
	Status      string `json:"status" doc:"Health status" example:"ok"`
	SourceCount int    `json:"source_count" doc:"Number of registered tile sources"`
}

func (h *TileHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", SourceCount: h.registry.Len()}}, nil
}

// CatalogEntry summarizes one registered source for the catalog listing.
type CatalogEntry struct {
	ID     string `json:"id" doc:"Source id"`
	Format string `json:"format" doc:"Tile payload format"`
}

func (h *TileHandler) GetCatalog(ctx context.Context, input *struct{}) (*struct{ Body []CatalogEntry }, error) {
	ids := h.registry.IDs()
	out := make([]CatalogEntry, 0, len(ids))
	for _, id := range ids {
		src, ok := h.registry.Get(id)
		if !ok {
			continue
		}
		out = append(out, CatalogEntry{ID: id, Format: src.Format().String()})
	}
	return &struct{ Body []CatalogEntry }{Body: out}, nil
}

// TileJSONInput identifies the source whose metadata document is
// requested.
type TileJSONInput struct {
	SourceID string `path:"sourceId" doc:"Tile source id" example:"public.buildings.geom"`
}

func (h *TileHandler) GetTileJSON(ctx context.Context, input *TileJSONInput) (*struct{ Body tilejson.TileJSON }, error) {
	src, ok := h.registry.Get(input.SourceID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("unknown source %q", input.SourceID))
	}

	tj := src.TileJSON()
	tj.Tiles = []string{fmt.Sprintf("%s/%s/{z}/{x}/{y}", h.baseURL, input.SourceID)}
	return &struct{ Body tilejson.TileJSON }{Body: tj}, nil
}

// TileInput identifies a single requested tile; Query, when present,
// is forwarded only to sources that report SupportsURLQuery() true.
type TileInput struct {
	SourceID string `path:"sourceId" doc:"Tile source id" example:"public.buildings.geom"`
	Z        uint8  `path:"z" doc:"Zoom level"`
	X        uint32 `path:"x" doc:"Tile column"`
	Y        uint32 `path:"y" doc:"Tile row"`
	Query    string `query:"query" doc:"URL query forwarded to sources that accept it"`
}

// TileOutput carries a tile's raw bytes with the content-type and
// optional content-encoding the classifier derived from them.
type TileOutput struct {
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	Body            []byte
}

func (h *TileHandler) GetTile(ctx context.Context, input *TileInput) (*TileOutput, error) {
	src, ok := h.registry.Get(input.SourceID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("unknown source %q", input.SourceID))
	}

	xyz := tilecoord.Xyz{Z: input.Z, X: input.X, Y: input.Y}
	if !xyz.Valid() {
		return nil, huma.Error400BadRequest(fmt.Sprintf("invalid tile coordinate %s", xyz.String()))
	}
	if !src.ValidZoom(xyz.Z) {
		return nil, huma.Error400BadRequest(fmt.Sprintf("zoom %d out of range for %q", xyz.Z, input.SourceID))
	}

	var query *source.UrlQuery
	if input.Query != "" && src.SupportsURLQuery() {
		q := input.Query
		query = &q
	}

	data, err := src.GetTile(ctx, xyz, query)
	if err != nil {
		var notFound *source.NotFoundError
		var badRequest *source.BadRequestError
		switch {
		case errors.As(err, &notFound):
			return nil, huma.Error404NotFound(err.Error())
		case errors.As(err, &badRequest):
			return nil, huma.Error400BadRequest(err.Error())
		default:
			return nil, huma.Error500InternalServerError(err.Error())
		}
	}

	// Classify detects compression wrappers (gzip/zlib) and image
	// signatures, but a plain, uncompressed MVT payload has no
	// signature of its own, so Classify returns Unknown for it; fall
	// back to the source's declared format in that case rather than
	// emitting an empty Content-Type.
	format := tileformat.Classify(data)
	if format == tileformat.Unknown {
		format = src.Format()
	}
	return &TileOutput{
		ContentType:     format.ContentType(),
		ContentEncoding: format.ContentEncoding(),
		Body:            data,
	}, nil
}
