// Package server wires the tile-server's Huma API onto a plain
// http.ServeMux via the humago adapter.
package server

import (
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/nullisland/tileserv/internal/api"
	"github.com/nullisland/tileserv/internal/source"
)

// Config holds the server's network and documentation settings.
type Config struct {
	Host string
	Port string
}

// Server is the tile server's HTTP handler.
type Server struct {
	config  Config
	mux     *http.ServeMux
	humaAPI huma.API
}

// New builds a Server exposing registry's sources over HTTP.
func New(cfg Config, registry *source.Registry) *Server {
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("tileserv", "1.0.0")
	humaConfig.Info.Description = "Vector tile server: MVT and image tiles, with TileJSON metadata, served from PostGIS-style databases and PMTiles archives."
	baseURL := fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port)
	humaConfig.Servers = []*huma.Server{{URL: baseURL, Description: "this server"}}

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{config: cfg, mux: mux, humaAPI: humaAPI}

	tileHandler := api.NewTileHandler(registry, baseURL)
	tileHandler.RegisterRoutes(humaAPI)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the server's generated OpenAPI document, used by the
// "spec" CLI subcommand to export it without starting a listener.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}
