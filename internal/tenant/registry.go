// Package tenant owns the connection-pool-per-tenant registry. Most
// tenants share the default pool and are isolated by tenant_id columns;
// tenants with a dedicated DSN get their own lazily-opened pool.
package tenant

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/newsmint/kiosk/internal/config"
	obslogger "github.com/newsmint/kiosk/internal/observability/logger"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var ErrNoTenant = errors.New("missing_tenant")

type txKey struct{}

// WithTx pins every pool resolution under ctx to the given transaction
// handle. Used to run multi-store operations atomically on one pool.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Registry resolves the gorm pool for the tenant carried in a context.
type Registry struct {
	log       *zap.Logger
	base      *gorm.DB
	overrides map[int64]string

	mu    sync.RWMutex
	pools map[int64]*gorm.DB
	group singleflight.Group

	open func(dsn string) (*gorm.DB, error)
}

// New builds a registry over the shared pool plus per-tenant DSN overrides.
func New(cfg config.Config, base *gorm.DB, log *zap.Logger) *Registry {
	return &Registry{
		log:       log.Named("tenant.registry"),
		base:      base,
		overrides: cfg.TenantDatabaseURLs,
		pools:     make(map[int64]*gorm.DB),
		open: func(dsn string) (*gorm.DB, error) {
			return gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger:         obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
				TranslateError: true,
			})
		},
	}
}

// NewStatic returns a registry that always resolves to the given pool.
// Used by tests and single-tenant deployments.
func NewStatic(base *gorm.DB) *Registry {
	return &Registry{
		log:   zap.NewNop(),
		base:  base,
		pools: make(map[int64]*gorm.DB),
	}
}

// DB returns the pool for the context's tenant. Tenants without a
// dedicated DSN share the base pool. The first request for a dedicated
// tenant opens the pool; concurrent first requests are deduplicated so
// exactly one connection pool is created per tenant.
func (r *Registry) DB(ctx context.Context) (*gorm.DB, error) {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx, nil
	}

	id, ok := tenantctx.TenantID(ctx)
	if !ok || id == 0 {
		return r.base, nil
	}

	r.mu.RLock()
	pool, found := r.pools[id]
	r.mu.RUnlock()
	if found {
		return pool, nil
	}

	dsn, dedicated := r.overrides[id]
	if !dedicated {
		return r.base, nil
	}

	key := strconv.FormatInt(id, 10)
	opened, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		existing, ok := r.pools[id]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		db, err := r.open(dsn)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.pools[id] = db
		r.mu.Unlock()

		r.log.Info("opened dedicated tenant pool", zap.Int64("tenant_id", id))
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return opened.(*gorm.DB), nil
}

// Register pins an already-opened pool for a tenant. Registered pools
// take precedence over DSN overrides and are closed with the registry.
func (r *Registry) Register(id int64, pool *gorm.DB) {
	r.mu.Lock()
	r.pools[id] = pool
	r.mu.Unlock()
}

// DedicatedTenantIDs lists every tenant that does not live on the base
// pool, whether its pool is already open or only configured. Sorted for
// deterministic iteration.
func (r *Registry) DedicatedTenantIDs() []int64 {
	seen := make(map[int64]struct{}, len(r.overrides))
	for id := range r.overrides {
		seen[id] = struct{}{}
	}
	r.mu.RLock()
	for id := range r.pools {
		seen[id] = struct{}{}
	}
	r.mu.RUnlock()

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close shuts down every dedicated pool. The base pool is owned by pkg/db.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, pool := range r.pools {
		sqlDB, err := pool.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.pools, id)
	}
	return firstErr
}
