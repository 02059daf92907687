package config

import "errors"

// Error kinds returned while resolving configuration. Startup errors in
// one source group are logged and skipped unless they mean "no sources
// at all", which is fatal (ErrNoSources).
var (
	ErrNoSources          = errors.New("no sources: at least one of postgres or pmtiles must yield a source")
	errNoConnectionString = errors.New("database connection string is not set")
)

// LoadError wraps a failure reading the config file off disk.
type LoadError struct {
	Path  string
	Cause error
}

func (e *LoadError) Error() string { return "loading config " + e.Path + ": " + e.Cause.Error() }
func (e *LoadError) Unwrap() error { return e.Cause }

// ParseError wraps a YAML-malformed config. Environment substitution
// never fails (unset variables are left as written), so it produces no
// ParseError.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string { return "parsing config " + e.Path + ": " + e.Cause.Error() }
func (e *ParseError) Unwrap() error { return e.Cause }

// InvalidFilePathError reports a path that's neither a file nor a
// directory, or a file with the wrong extension where one was required.
type InvalidFilePathError struct {
	Path string
}

func (e *InvalidFilePathError) Error() string { return "invalid file path: " + e.Path }

// InvalidSourceFilePathError reports an explicit `sources` entry whose
// path is not a regular file.
type InvalidSourceFilePathError struct {
	ID   string
	Path string
}

func (e *InvalidSourceFilePathError) Error() string {
	return "invalid source file path for " + e.ID + ": " + e.Path
}
