package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/shopbot/internal/health"
	"github.com/vladislavdragonenkov/shopbot/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopbot/internal/metrics"
	"github.com/vladislavdragonenkov/shopbot/internal/service/dedup"
	"github.com/vladislavdragonenkov/shopbot/internal/service/httpapi"
	"github.com/vladislavdragonenkov/shopbot/internal/service/outbox"
	"github.com/vladislavdragonenkov/shopbot/internal/version"
)

const (
	shutdownTimeout     = 5 * time.Second
	healthProbeInterval = 10 * time.Second
)

// Run собирает зависимости и обслуживает HTTP, метрики и (опционально) gRPC health
// до отмены ctx. Порядок остановки: серверы, реестр (освобождает ожидающие заказы),
// воркеры outbox, затем Kafka и журнал.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	registerer := prometheus.DefaultRegisterer

	deps, err := NewDependencies(ctx, cfg, registerer, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	healthHandler := newHealthHandler(cfg, deps)

	api := httpapi.NewServer(httpapi.Deps{
		Reconciler: deps.Checkout,
		Catalog:    deps.Catalog,
		Commands:   deps.Commands,
		Admins:     deps.Admins,
		Health:     healthHandler,
	}, httpapi.Config{
		AdminSecret: cfg.Admin.Secret,
		ChatToken:   cfg.Chat.InboundToken,
		Logger:      log.WithField("component", "http"),
		Metrics:     deps.Metrics,
	})

	// Реестр и воркеры живут дольше серверов: webhook, принятый до остановки,
	// успевает получить решение.
	ledgerCtx, stopLedger := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLedger()
	ledgerDone := make(chan struct{})
	go func() {
		defer close(ledgerDone)
		deps.Ledger.Run(ledgerCtx)
	}()

	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	workersDone, drainOutbox := startWorkers(workerCtx, cfg, deps, registerer, logger)

	go warmCatalog(ctx, deps, logger)

	g, gctx := errgroup.WithContext(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		return serveHTTP(gctx, httpSrv, logger)
	})

	metricsSrv := newMetricsServer(cfg.Metrics.Addr, healthHandler)
	g.Go(func() error {
		logger.Infof("metrics available at %s/metrics, health at %s/healthz", cfg.Metrics.Addr, cfg.Metrics.Addr)
		return serveHTTP(gctx, metricsSrv, logger)
	})

	if cfg.GRPC.Addr != "" {
		g.Go(func() error {
			return serveGRPC(gctx, cfg.GRPC.Addr, registerer, healthHandler, logger)
		})
	}

	err = g.Wait()

	logger.Info("servers stopped, releasing pending orders")
	stopLedger()
	<-ledgerDone
	stopWorkers()
	<-workersDone
	drainOutbox(cfg.Outbox.DrainTimeout)

	if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func newHealthHandler(cfg Config, deps *Dependencies) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.GetVersion())
	h.RegisterChecker("catalog", healthcheck.NewCatalogChecker(deps.Catalog, cfg.Catalog.StaleAfter))
	if deps.Store != nil {
		h.RegisterChecker("journal", healthcheck.NewSimpleChecker("journal", deps.Store.Ping))
	}
	if deps.Outbox != nil {
		h.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.Outbox, cfg.Outbox.MaxLag))
	}
	return h
}

// warmCatalog загружает каталог при старте. Ошибка не фатальна: команды
// повторят загрузку через Ensure.
func warmCatalog(ctx context.Context, deps *Dependencies, logger *log.Entry) {
	if err := deps.Catalog.Refresh(ctx, true); err != nil {
		logger.WithError(err).Warn("initial catalog load failed")
		return
	}
	logger.WithFields(log.Fields{
		"products": len(deps.Catalog.All()),
		"promos":   deps.Catalog.PromoCount(),
	}).Info("catalog loaded")
}

// startWorkers запускает sweeper dedup guard и, при наличии Kafka, воркер outbox.
// Канал закрывается после остановки всех воркеров; drain досылает события
// shutdown, когда воркеры уже остановлены.
func startWorkers(ctx context.Context, cfg Config, deps *Dependencies, registerer prometheus.Registerer, logger *log.Entry) (<-chan struct{}, func(time.Duration)) {
	done := make(chan struct{})
	drain := func(time.Duration) {}
	g := new(errgroup.Group)

	sweeper := dedup.NewSweeper(deps.Dedup,
		dedup.WithLogger(log.WithField("component", "dedup-sweeper")),
		dedup.WithInterval(cfg.Ledger.DedupSweep),
		dedup.WithMetrics(metrics.NewSweepMetrics(registerer)),
	)
	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})

	if deps.Kafka != nil && deps.Outbox != nil {
		worker := outbox.NewWorker(deps.Outbox, kafka.NewOutboxPublisher(deps.Kafka, cfg.Kafka.Topic),
			outbox.WithLogger(log.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewDeadLetterPublisher(deps.Kafka)),
			outbox.WithPollInterval(cfg.Outbox.PollInterval),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
			outbox.WithRetryBaseDelay(cfg.Outbox.RetryDelay),
			outbox.WithMetrics(metrics.NewOutboxMetrics(registerer)),
		)
		g.Go(func() error {
			worker.Run(ctx)
			return nil
		})
		logger.WithField("topic", cfg.Kafka.Topic).Info("outbox worker started")

		drain = func(timeout time.Duration) {
			drainCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			worker.Drain(drainCtx)
		}
	}

	go func() {
		_ = g.Wait()
		close(done)
	}()
	return done, drain
}

func newMetricsServer(addr string, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}

// serveHTTP обслуживает srv до отмены ctx и аккуратно его останавливает.
func serveHTTP(ctx context.Context, srv *http.Server, logger *log.Entry) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownHTTP(srv, logger)
		return ctx.Err()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}

// serveGRPC поднимает стандартный gRPC health protocol и reflection.
// Статус сервиса следует агрегированной проверке /healthz.
func serveGRPC(ctx context.Context, addr string, registerer prometheus.Registerer, checks *healthcheck.Handler, logger *log.Entry) error {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go syncGRPCHealth(ctx, healthServer, checks)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("grpc health server listening")
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			logger.Warn("grpc graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}
		return ctx.Err()
	}
}

func syncGRPCHealth(ctx context.Context, srv *health.Server, checks *healthcheck.Handler) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if overall, _ := checks.Run(ctx); overall == healthcheck.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
