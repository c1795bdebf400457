package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"invoice-reconciler/internal/config"
	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/db"
	"invoice-reconciler/internal/lock"
)

// Runtime owns the connections behind an ApplicationService.
type Runtime struct {
	Service ApplicationService
	Pool    *pgxpool.Pool
	Redis   *redis.Client
}

// Bootstrap opens the database (and Redis when configured) and wires the reconciler.
func Bootstrap(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	rdb, err := db.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, err
	}

	var locker core.Locker = lock.NoopLocker{}
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL, log)
		log.Info("per-invoice locking enabled", zap.String("redis", cfg.Redis.Address))
	} else {
		log.Info("redis not configured; per-invoice locking disabled")
	}

	unmapped := core.NewUnmappedItemService(pool)
	reconciler := core.NewReconciler(core.ReconcilerDeps{
		Invoices:   core.NewInvoiceService(pool),
		Orders:     core.NewPurchaseOrderService(pool),
		Tolerances: core.NewToleranceResolver(core.NewToleranceService(pool), cfg.DefaultTolerance()),
		Receipts:   core.NewReceiptService(pool),
		Unmapped:   unmapped,
		Variances:  core.NewVarianceService(pool),
		Locker:     locker,
		Logger:     log.Named("reconciler"),
		WindowDays: cfg.Matching.CandidateWindowDays,
	})

	return &Runtime{
		Service: NewAppService(reconciler, unmapped),
		Pool:    pool,
		Redis:   rdb,
	}, nil
}

func (rt *Runtime) Close() {
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	rt.Pool.Close()
}
