// Package reconciler is the background loop that re-runs the
// settlement pipeline over recent events and fails import batches
// abandoned in processing.
package reconciler

import (
	"context"
	"time"

	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/config"
	importerdomain "github.com/newsmint/kiosk/internal/importer/domain"
	"github.com/newsmint/kiosk/internal/ratelimit"
	"github.com/newsmint/kiosk/internal/settlement"
	"github.com/newsmint/kiosk/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	lockKey = "kiosk:reconcile"

	// Batches still processing after this long are considered
	// abandoned and failed so retries can start clean.
	stuckBatchAge = 24 * time.Hour
)

type Param struct {
	fx.In

	Config       config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	Pools        *tenant.Registry
	Locker       *ratelimit.Locker `optional:"true"`
	Pipeline     settlement.Pipeline
	ImporterRepo importerdomain.Repository
}

type Worker struct {
	cfg      config.Config
	log      *zap.Logger
	clock    clock.Clock
	pools    *tenant.Registry
	locker   *ratelimit.Locker
	pipeline settlement.Pipeline
	batches  importerdomain.Repository

	interval time.Duration
	window   time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func New(p Param) *Worker {
	interval := time.Duration(p.Config.ReconcileInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	window := time.Duration(p.Config.ReconcileWindowHours) * time.Hour
	if window <= 0 {
		window = 48 * time.Hour
	}
	return &Worker{
		cfg:      p.Config,
		log:      p.Log.Named("reconciler"),
		clock:    p.Clock,
		pools:    p.Pools,
		locker:   p.Locker,
		pipeline: p.Pipeline,
		batches:  p.ImporterRepo,
		interval: interval,
		window:   window,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the interval loop. Only one instance across the
// deployment runs a pass at a time, guarded by the redis lock.
func (w *Worker) Start() {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				if err := w.RunOnce(context.Background()); err != nil {
					w.log.Error("reconcile pass failed", zap.Error(err))
				}
			}
		}
	}()
}

func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// RunOnce executes a single reconcile pass: settlement replay over the
// configured window, then stuck-batch cleanup.
func (w *Worker) RunOnce(ctx context.Context) error {
	token, ok, err := w.locker.TryLock(ctx, lockKey, w.interval)
	if err != nil {
		w.log.Warn("reconcile lock unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := w.locker.Release(ctx, lockKey, token); err != nil {
			w.log.Warn("reconcile lock release failed", zap.Error(err))
		}
	}()

	if _, err := w.pipeline.Replay(ctx, w.window); err != nil {
		return err
	}
	return w.failStuckBatches(ctx)
}

func (w *Worker) failStuckBatches(ctx context.Context) error {
	db, err := w.pools.DB(ctx)
	if err != nil {
		return err
	}

	now := w.clock.Now()
	stuck, err := w.batches.FindStuck(ctx, db, now.Add(-stuckBatchAge), 0)
	if err != nil {
		return err
	}
	for _, batch := range stuck {
		moved, err := w.batches.Finalize(ctx, db, batch.ID, importerdomain.StatusFailed, now)
		if err != nil {
			return err
		}
		if moved > 0 {
			w.log.Warn("stuck import batch failed",
				zap.String("ref", batch.Ref),
				zap.Int64("tenant_id", batch.TenantID),
				zap.Time("started_at", batch.StartedAt),
			)
		}
	}
	return nil
}

func registerHooks(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			w.Stop()
			return nil
		},
	})
}

// Module provides the background reconcile worker.
var Module = fx.Module("reconciler",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
