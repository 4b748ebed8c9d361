package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openharvest/harvestd/internal/domain"
	"github.com/openharvest/harvestd/internal/pipeline"
	"github.com/openharvest/harvestd/internal/server"
	"github.com/openharvest/harvestd/internal/server/handler"
	"github.com/openharvest/harvestd/internal/server/ws"
	"github.com/openharvest/harvestd/internal/service"
)

// ServeMode runs the API server, the WebSocket hub, and the failure
// notification bridge. No archival work happens in this mode.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs only the operation archival job: one run at startup, then
// one per configured interval. Intended for a dedicated worker instance.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archive.enabled must be true")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiveJob(ctx, g, deps, true)
	return g.Wait()
}

// FullMode runs everything in one process: the API server plus the archival
// job when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}
	if deps.Archiver != nil {
		a.startArchiveJob(ctx, g, deps, false)
	}

	return g.Wait()
}

// startServer adds the HTTP server, the WebSocket hub, and the notification
// bridge to the errgroup. The server is shut down gracefully when the context
// is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.EventBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Notification bridge: terminally failed operations reach operators even
	// when they happened on another instance.
	g.Go(func() error {
		return a.notifyFailedOperations(ctx, deps)
	})

	listingSvc := service.NewListingService(
		deps.Facade, deps.Reader, deps.Pinata, deps.ListingStore, deps.ListingCache, a.logger,
	)
	orderSvc := service.NewOrderService(
		deps.Facade, deps.Reader, deps.OrderStore, deps.ListingCache, deps.Notifier, a.logger,
	)
	adminSvc := service.NewAdminService(deps.Facade, deps.Pinata, a.logger)

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.cfg.Chain.ChainID, a.logger),
		Listings:   handler.NewListingHandler(listingSvc, a.logger),
		Orders:     handler.NewOrderHandler(orderSvc, a.logger),
		Operations: handler.NewOperationHandler(deps.OperationStore, a.logger),
		Admin:      handler.NewAdminHandler(adminSvc, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiveJob adds the periodic archival job to the errgroup. When
// runImmediately is set an archive run also happens at startup instead of
// waiting out the first interval.
func (a *App) startArchiveJob(ctx context.Context, g *errgroup.Group, deps *Dependencies, runImmediately bool) {
	job := pipeline.NewArchiveJob(
		deps.Archiver,
		deps.LockManager,
		a.cfg.Archive.Interval.Duration,
		a.logger,
	)
	g.Go(func() error {
		if runImmediately {
			if err := job.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "initial archive run failed",
					slog.String("error", err.Error()),
				)
			}
		}
		return job.RunPeriodic(ctx)
	})
}

// notifyFailedOperations consumes the operation event bus and forwards
// terminal failures to the notifier.
func (a *App) notifyFailedOperations(ctx context.Context, deps *Dependencies) error {
	events, err := deps.EventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("app: subscribe operation events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.State != domain.OpFailed {
				continue
			}
			op := domain.Operation{
				ID:          ev.OperationID,
				Signer:      ev.Signer,
				Target:      ev.Target,
				Function:    ev.Function,
				State:       ev.State,
				Attempts:    ev.Attempt,
				TxHash:      ev.TxHash,
				ErrorKind:   ev.ErrorKind,
				ErrorDetail: ev.Error,
			}
			if err := deps.Notifier.OperationFailed(ctx, op); err != nil {
				a.logger.WarnContext(ctx, "failure notification failed",
					slog.String("op_id", ev.OperationID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
