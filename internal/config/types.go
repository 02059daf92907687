package config

import (
	"os"
	"strconv"

	"github.com/nullisland/tileserv/internal/pgsource"
	"gopkg.in/yaml.v3"
)

// SrvConfig holds the HTTP-adapter-facing server settings; parsing and
// applying these is the HTTP adapter's concern, but the fields are
// declared here since they live flattened into the same YAML document
// as postgres/pmtiles.
type SrvConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// FileConfigSource is one explicit id -> path binding. It accepts
// either a bare path string or a {path: ...} object in YAML, handled by
// UnmarshalYAML.
type FileConfigSource struct {
	Path string `yaml:"path"`
}

// UnmarshalYAML accepts either a bare path string or a {path: ...} map.
func (s *FileConfigSource) UnmarshalYAML(value *yaml.Node) error {
	var path string
	if err := value.Decode(&path); err == nil {
		s.Path = path
		return nil
	}
	type alias FileConfigSource
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*s = FileConfigSource(a)
	return nil
}

// FileConfig is the archive group's declarative shape: optional scan
// roots and an explicit id->path map, plus preserved-but-unrecognized
// keys.
type FileConfig struct {
	Paths        []string                    `yaml:"paths,omitempty"`
	Sources      map[string]FileConfigSource `yaml:"sources,omitempty"`
	Unrecognized map[string]interface{}      `yaml:",inline"`
}

// ArchiveConfig is the untagged Path|Paths|Config shape accepted for the
// `pmtiles:` key. After UnmarshalYAML it always normalizes to the
// FileConfig struct form; ResolveArchiveGroup further
// rewrites it to canonical form (directories-only paths, every concrete
// binding in sources) as its final step.
type ArchiveConfig struct {
	FileConfig
}

func (a *ArchiveConfig) UnmarshalYAML(value *yaml.Node) error {
	var path string
	if err := value.Decode(&path); err == nil {
		a.Paths = []string{path}
		return nil
	}

	var paths []string
	if err := value.Decode(&paths); err == nil {
		a.Paths = paths
		return nil
	}

	var fc FileConfig
	if err := value.Decode(&fc); err != nil {
		return err
	}
	a.FileConfig = fc
	return nil
}

// IsEmpty reports whether the archive group declares no paths and no
// explicit sources, used by Config.Finalize's NoSources check.
func (a ArchiveConfig) IsEmpty() bool {
	return len(a.Paths) == 0 && len(a.Sources) == 0
}

// PgConfig is one declared Postgres connection group. It also serves as
// its own builder: Finalize validates and applies defaults in place.
type PgConfig struct {
	ConnectionString         string                                 `yaml:"connection_string"`
	CARootFile               string                                 `yaml:"ca_root_file,omitempty"`
	DangerAcceptInvalidCerts bool                                   `yaml:"danger_accept_invalid_certs,omitempty"`
	DefaultSRID              *int32                                 `yaml:"default_srid,omitempty"`
	PoolSize                 *uint32                                `yaml:"pool_size,omitempty"`
	TableSources             map[string]pgsource.TableDescriptor    `yaml:"table_sources,omitempty"`
	FunctionSources          map[string]pgsource.FunctionDescriptor `yaml:"function_sources,omitempty"`

	// DiscoverTables/DiscoverFunctions are set by Finalize to true iff
	// neither source map above was declared; a value decoded from YAML
	// is overwritten, not honored. The resolved boolean is emitted
	// explicitly so a re-emitted config round-trips.
	DiscoverTables    bool `yaml:"discover_tables"`
	DiscoverFunctions bool `yaml:"discover_functions"`
}

// Finalize applies environment-variable fallbacks (DATABASE_URL,
// CA_ROOT_FILE, DANGER_ACCEPT_INVALID_CERTS, DEFAULT_SRID) and defaults,
// and computes the discovery flags. It must run once, after YAML
// decoding, and before resolution.
func (c *PgConfig) Finalize() error {
	if c.ConnectionString == "" {
		if v, ok := os.LookupEnv("DATABASE_URL"); ok {
			c.ConnectionString = v
		}
	}
	if c.ConnectionString == "" {
		return errNoConnectionString
	}

	if c.CARootFile == "" {
		if v, ok := os.LookupEnv("CA_ROOT_FILE"); ok {
			c.CARootFile = v
		}
	}
	if !c.DangerAcceptInvalidCerts {
		if _, ok := os.LookupEnv("DANGER_ACCEPT_INVALID_CERTS"); ok {
			c.DangerAcceptInvalidCerts = true
		}
	}
	if c.DefaultSRID == nil {
		if v, ok := os.LookupEnv("DEFAULT_SRID"); ok {
			if srid, err := strconv.ParseInt(v, 10, 32); err == nil {
				s := int32(srid)
				c.DefaultSRID = &s
			}
		}
	}
	if c.PoolSize == nil {
		size := defaultPoolSize
		c.PoolSize = &size
	}

	c.DiscoverTables = len(c.TableSources) == 0 && len(c.FunctionSources) == 0
	c.DiscoverFunctions = c.DiscoverTables
	return nil
}

const defaultPoolSize uint32 = 20

// Config is the root configuration document.
type Config struct {
	SrvConfig `yaml:",inline"`

	Postgres *OneOrMany[PgConfig] `yaml:"postgres,omitempty"`
	PMTiles  *ArchiveConfig       `yaml:"pmtiles,omitempty"`

	Unrecognized map[string]interface{} `yaml:",inline"`
}
