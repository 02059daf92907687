// Package pgpool manages bounded pgxpool.Pool instances, one per
// distinct connection string, and the registry of those pools keyed by
// connection string so DB-backed sources sharing a connection string
// share a pool.
package pgpool

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPoolSize is used when a PgConfig does not set PoolSize.
const DefaultPoolSize = 20

// Config describes one pool's connection parameters.
type Config struct {
	ConnectionString         string
	PoolSize                 uint32
	CARootFile               string
	DangerAcceptInvalidCerts bool
}

// Pool wraps a pgxpool.Pool with a stable PoolID derived from its
// connection string, used as a disambiguating prefix in ID-resolver
// signatures.
type Pool struct {
	ID     string
	Config Config
	pool   *pgxpool.Pool
}

// Acquire checks out a connection, honoring ctx cancellation.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	return p.pool.Acquire(ctx)
}

// Close shuts down the underlying pool, closing every connection.
func (p *Pool) Close() {
	p.pool.Close()
}

// Raw exposes the underlying pgxpool.Pool for callers (introspection)
// that want to run a query without holding a checked-out connection
// across the call.
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }

// Registry owns exactly one Pool per distinct connection string, so that
// sources sharing a connection string share the same pool.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*Pool
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Pool)}
}

// Get returns the pool for cfg.ConnectionString, creating it on first
// use. If a pool already exists for that connection string, cfg's other
// fields (pool size, TLS options) are ignored and a warning-worthy
// situation is left to the caller to log: the first config wins, per
// the documented decision on duplicate Postgres connection strings.
func (r *Registry) Get(ctx context.Context, cfg Config) (*Pool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[cfg.ConnectionString]; ok {
		return p, false, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, false, fmt.Errorf("parsing connection string: %w", err)
	}
	size := cfg.PoolSize
	if size == 0 {
		size = DefaultPoolSize
	}
	poolCfg.MaxConns = int32(size)

	if err := applyTLS(poolCfg, cfg); err != nil {
		return nil, false, fmt.Errorf("configuring TLS: %w", err)
	}

	pgxp, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, false, fmt.Errorf("opening pool: %w", err)
	}

	p := &Pool{ID: poolID(cfg.ConnectionString), Config: cfg, pool: pgxp}
	r.pools[cfg.ConnectionString] = p
	return p, true, nil
}

// Close shuts down every pool in the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pools {
		p.Close()
	}
	r.pools = make(map[string]*Pool)
}

// applyTLS wires the CA root file and danger-accept-invalid-certs flag
// onto the connection's TLS config, when either was set.
func applyTLS(poolCfg *pgxpool.Config, cfg Config) error {
	if cfg.CARootFile == "" && !cfg.DangerAcceptInvalidCerts {
		return nil
	}

	tlsCfg := poolCfg.ConnConfig.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
		poolCfg.ConnConfig.TLSConfig = tlsCfg
	}

	if cfg.CARootFile != "" {
		pem, err := os.ReadFile(cfg.CARootFile)
		if err != nil {
			return fmt.Errorf("reading ca root file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("no certificates found in %s", cfg.CARootFile)
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.DangerAcceptInvalidCerts {
		tlsCfg.InsecureSkipVerify = true
	}

	return nil
}

// poolID derives a stable, short, non-reversible identifier from a
// connection string so that logs and ID-resolver signatures never echo
// credentials embedded in the DSN.
func poolID(connectionString string) string {
	sum := sha256.Sum256([]byte(connectionString))
	return "pg_" + hex.EncodeToString(sum[:])[:12]
}
