package service

import (
	"context"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/events"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// ExpirySweeper periodically flags overdue batches expired and warns about
// lots nearing expiry. It iterates every active tenant; each tenant's sweep
// runs under that tenant's isolation.
type ExpirySweeper struct {
	tenantRepo *repository.TenantRepository
	batchRepo  *repository.BatchRepository
	publisher  *events.StockEventPublisher
	cfg        *config.StockConfig
	logger     *logger.Logger
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(
	tenantRepo *repository.TenantRepository,
	batchRepo *repository.BatchRepository,
	publisher *events.StockEventPublisher,
	cfg *config.StockConfig,
	log *logger.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		tenantRepo: tenantRepo,
		batchRepo:  batchRepo,
		publisher:  publisher,
		cfg:        cfg,
		logger:     log.WithComponent("expiry-sweeper"),
	}
}

// Run sweeps on the configured interval until the context is cancelled
func (w *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ExpirySweepInterval)
	defer ticker.Stop()

	w.logger.Info().
		Dur("interval", w.cfg.ExpirySweepInterval).
		Int("warning_days", w.cfg.ExpiryWarningDays).
		Msg("expiry sweeper started")

	// One sweep at startup so a restart does not postpone overdue batches
	w.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep across all active tenants
func (w *ExpirySweeper) SweepOnce(ctx context.Context) {
	tenants, err := w.tenantRepo.ListActive(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to list tenants for expiry sweep")
		return
	}

	for _, t := range tenants {
		tenantCtx := tenant.WithTenantContext(ctx, t.ID, t.Slug, t.SchemaName)
		w.sweepTenant(tenantCtx, t.Slug)
	}
}

func (w *ExpirySweeper) sweepTenant(ctx context.Context, slug string) {
	expired, err := w.batchRepo.MarkExpired(ctx)
	if err != nil {
		w.logger.Error().Err(err).Str("tenant", slug).Msg("failed to mark expired batches")
		return
	}

	for _, b := range expired {
		w.publisher.PublishBatchExpired(ctx, b)
	}
	if len(expired) > 0 {
		w.logger.Info().Str("tenant", slug).Int("count", len(expired)).Msg("batches marked expired")
	}

	expiring, err := w.batchRepo.ListExpiring(ctx, w.cfg.ExpiryWarningDays)
	if err != nil {
		w.logger.Error().Err(err).Str("tenant", slug).Msg("failed to list expiring batches")
		return
	}

	today := time.Now().Truncate(24 * time.Hour)
	for _, b := range expiring {
		daysUntil := int(b.ExpiryDate.Sub(today).Hours() / 24)
		w.publisher.PublishBatchExpiring(ctx, b, daysUntil)
	}
}
