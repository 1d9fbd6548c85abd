// Package resources owns the process-wide resources of a worker: the
// Postgres pool and the long-lived browser. Both are created on first use,
// shared by every task in the process, and torn down exactly once at
// process shutdown.
package resources

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/db"
	"github.com/sells-group/disclosure-cli/internal/extract"
)

// ErrDisposed is returned by Acquire after Dispose.
var ErrDisposed = eris.New("resources: manager disposed")

// Pool is a closable database pool.
type Pool interface {
	db.Pool
	Close()
}

// Browser is a closable page-automation driver.
type Browser interface {
	extract.Driver
	Close() error
}

// Resources are the shared instances handed to tasks. Callers must not
// close them.
type Resources struct {
	Pool    Pool
	Browser Browser
}

// Factory creates the underlying resources. Production code uses
// PostgresFactory and ChromeFactory; tests substitute fakes.
type Factory struct {
	OpenPool    func(ctx context.Context) (Pool, error)
	OpenBrowser func(ctx context.Context) (Browser, error)
}

// Manager hands out one Resources instance per process.
type Manager struct {
	factory Factory

	mu       sync.Mutex
	pool     Pool
	res      *Resources
	disposed bool

	disposeOnce sync.Once
	disposeErr  error
}

// NewManager creates a Manager. Nothing is opened until Acquire or
// AcquirePool.
func NewManager(f Factory) *Manager {
	return &Manager{factory: f}
}

// Acquire returns the process-wide resources, creating them on the first
// call. Every later call returns the same instance. A failed creation is
// not cached so a later attempt may succeed; a successful one is never
// repeated. After Dispose it returns ErrDisposed.
func (m *Manager) Acquire(ctx context.Context) (*Resources, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil, ErrDisposed
	}
	if m.res != nil {
		return m.res, nil
	}

	pool, err := m.openPoolLocked(ctx)
	if err != nil {
		return nil, err
	}
	browser, err := m.factory.OpenBrowser(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "resources: open browser")
	}

	m.res = &Resources{Pool: pool, Browser: browser}
	zap.L().Info("worker resources created", zap.String("component", "resources"))
	return m.res, nil
}

// AcquirePool returns the process-wide pool without starting the browser.
// It is the same pool Acquire hands out.
func (m *Manager) AcquirePool(ctx context.Context) (Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil, ErrDisposed
	}
	return m.openPoolLocked(ctx)
}

// openPoolLocked must be called with mu held. A pool that opened stays
// open even when the browser fails, so run records can still be written.
func (m *Manager) openPoolLocked(ctx context.Context) (Pool, error) {
	if m.pool != nil {
		return m.pool, nil
	}
	pool, err := m.factory.OpenPool(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "resources: open pool")
	}
	m.pool = pool
	return pool, nil
}

// Dispose closes the resources. Only the first call does any work; later
// calls return the first call's result.
func (m *Manager) Dispose() error {
	m.disposeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.disposed = true
		if m.res != nil {
			if err := m.res.Browser.Close(); err != nil {
				m.disposeErr = eris.Wrap(err, "resources: close browser")
			}
		}
		if m.pool != nil {
			m.pool.Close()
		}
		if m.res == nil && m.pool == nil {
			return
		}
		m.res, m.pool = nil, nil
		zap.L().Info("worker resources disposed", zap.String("component", "resources"))
	})
	return m.disposeErr
}

// DisposeOnDone registers Dispose as the shutdown hook for ctx: the
// resources are released when ctx is done. The returned channel is closed
// once disposal has finished.
func (m *Manager) DisposeOnDone(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		if err := m.Dispose(); err != nil {
			zap.L().Warn("resources: dispose", zap.Error(err))
		}
	}()
	return done
}

// Disposed reports whether Dispose has run.
func (m *Manager) Disposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

// PoolConfig sizes the per-worker Postgres pool.
type PoolConfig struct {
	URL         string
	PoolSize    int
	MaxOverflow int
	// Workers and MaxServerConnections enforce the cluster-wide ceiling:
	// Workers × (PoolSize + MaxOverflow) must stay under the server limit.
	Workers              int
	MaxServerConnections int
}

// Validate checks sizes and the connection ceiling.
func (c PoolConfig) Validate() error {
	if c.URL == "" {
		return eris.New("resources: database url is required")
	}
	if c.PoolSize <= 0 {
		return eris.Errorf("resources: pool size must be > 0, got %d", c.PoolSize)
	}
	if c.MaxOverflow < 0 {
		return eris.Errorf("resources: max overflow must be >= 0, got %d", c.MaxOverflow)
	}
	if c.Workers > 0 && c.MaxServerConnections > 0 {
		if total := c.Workers * (c.PoolSize + c.MaxOverflow); total >= c.MaxServerConnections {
			return eris.Errorf("resources: %d workers × %d connections = %d reaches the server limit of %d",
				c.Workers, c.PoolSize+c.MaxOverflow, total, c.MaxServerConnections)
		}
	}
	return nil
}

// pgxConfig builds the pgxpool config. Connections above PoolSize are
// overflow and are closed after sitting idle.
func (c PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, eris.Wrap(err, "resources: parse connection string")
	}
	poolCfg.MaxConns = int32(c.PoolSize + c.MaxOverflow)
	poolCfg.MinConns = int32(c.PoolSize)
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	return poolCfg, nil
}

// PostgresFactory returns an OpenPool func for cfg.
func PostgresFactory(cfg PoolConfig) func(ctx context.Context) (Pool, error) {
	return func(ctx context.Context) (Pool, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		poolCfg, err := cfg.pgxConfig()
		if err != nil {
			return nil, err
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, eris.Wrap(err, "resources: create connection pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "resources: ping database")
		}
		zap.L().Info("database pool opened",
			zap.String("component", "resources"),
			zap.Int32("min_conns", poolCfg.MinConns),
			zap.Int32("max_conns", poolCfg.MaxConns),
		)
		return pool, nil
	}
}

// ChromeFactory returns an OpenBrowser func that starts one headless
// browser process.
func ChromeFactory(opts extract.ChromeOptions) func(ctx context.Context) (Browser, error) {
	return func(context.Context) (Browser, error) {
		d, err := extract.NewChromeDriver(opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
