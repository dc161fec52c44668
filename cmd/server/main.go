package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/audit"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	deliveryhandler "github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/handler"
	deliveryservice "github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/service"
	deliverystore "github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/store"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/backend"
	escrowmetrics "github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/metrics"
	escrowservice "github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/service"
	apihttp "github.com/xyo-geohacker/chaincheck-sub003/internal/http"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/platform/config"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/platform/httpserver"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/platform/logger"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/platform/metrics"
	platformredis "github.com/xyo-geohacker/chaincheck-sub003/internal/platform/redis"
	proofcache "github.com/xyo-geohacker/chaincheck-sub003/internal/proof/cache"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/diviner"
	proofhandler "github.com/xyo-geohacker/chaincheck-sub003/internal/proof/handler"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/ledger"
	proofmetrics "github.com/xyo-geohacker/chaincheck-sub003/internal/proof/metrics"
	proofservice "github.com/xyo-geohacker/chaincheck-sub003/internal/proof/service"
	settlementhandler "github.com/xyo-geohacker/chaincheck-sub003/internal/settlement/handler"
	settlementmetrics "github.com/xyo-geohacker/chaincheck-sub003/internal/settlement/metrics"
	settlementservice "github.com/xyo-geohacker/chaincheck-sub003/internal/settlement/service"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/circuit"
)

// main wires dependencies and owns process lifecycle. Business logic lives in
// the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	httpMetrics := metrics.New()
	proofMtr := proofmetrics.New()
	escrowMtr := escrowmetrics.New()
	settlementMtr := settlementmetrics.New()

	checks := map[string]apihttp.HealthChecker{}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient
	}

	var deliveries deliverystore.Store
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		pg := deliverystore.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate deliveries: %w", err)
		}
		deliveries = pg
		checks["postgres"] = poolChecker{pool}
	} else {
		log.Warn("no POSTGRES_DSN configured, deliveries are held in memory")
		deliveries = deliverystore.NewInMemory()
	}

	rpc := chain.NewRPCClient(cfg.LedgerRPCURL, cfg.RPCTimeout)
	reader := chain.NewRPCReaderWithClient(rpc)

	proofOpts := []proofservice.Option{
		proofservice.WithLogger(log),
		proofservice.WithMetrics(proofMtr),
		proofservice.WithMockProofs(cfg.MockProofs),
		proofservice.WithArchivistDisabled(cfg.ArchivistDisabled),
		proofservice.WithDivinerDisabled(cfg.DivinerDisabled),
		proofservice.WithBreaker(circuit.New("archivist")),
	}
	var archivist ledger.Source
	if cfg.ArchivistURL != "" {
		archivist = ledger.NewArchivistSource(cfg.ArchivistURL, cfg.RPCTimeout)
	}
	if c := proofcache.New(redisClient, proofcache.DefaultTTL); c != nil {
		proofOpts = append(proofOpts, proofservice.WithCache(c))
	}
	if cfg.DivinerURL != "" {
		proofOpts = append(proofOpts, proofservice.WithDiviner(diviner.NewHTTPClient(cfg.DivinerURL, cfg.RPCTimeout)))
	}
	proofs := proofservice.New(reader, ledger.NewDirectSource(rpc, reader), archivist, proofOpts...)

	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	auditStore := audit.NewInMemoryStore()
	recorder := audit.NewRecorder(256, log)
	worker := audit.NewWorker(auditStore, sink, recorder.Inbox(), log)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return ignoreCanceled(worker.Run(ctx)) })

	// Settlement path selection is fixed at startup: the mock backend when no
	// funded authority exists, the escrow contract when one is configured,
	// otherwise direct transfers from the authority wallet.
	var settlementBackend backend.Backend
	var transferer settlementservice.DirectTransferer
	switch {
	case cfg.MockPayments:
		settlementBackend = backend.NewMock()
	case cfg.EscrowContract != "":
		contract, err := domain.ParseAddress(cfg.EscrowContract)
		if err != nil {
			return fmt.Errorf("escrow contract address: %w", err)
		}
		settlementBackend = backend.NewLive(rpc, reader, contract, cfg.AuthorityKey, cfg.ConfirmationWait)
	default:
		transferer = backend.NewLiveTransfer(rpc, cfg.AuthorityKey, cfg.AssetSymbol)
	}

	var coordinator *escrowservice.Coordinator
	if settlementBackend != nil {
		coordinator = escrowservice.NewCoordinator(deliveries, settlementBackend,
			escrowservice.WithLogger(log),
			escrowservice.WithMetrics(escrowMtr),
			escrowservice.WithAuditPublisher(recorder),
		)
		reconciler := escrowservice.NewReconciler(coordinator, cfg.ReconcileEvery, log)
		group.Go(func() error { return ignoreCanceled(reconciler.Run(ctx)) })
	}

	machineOpts := []settlementservice.Option{
		settlementservice.WithLogger(log),
		settlementservice.WithMetrics(settlementMtr),
		settlementservice.WithAuditPublisher(recorder),
	}
	if coordinator != nil {
		machineOpts = append(machineOpts, settlementservice.WithEscrow(coordinator))
	} else if transferer != nil {
		machineOpts = append(machineOpts, settlementservice.WithDirectTransfer(transferer))
	}
	machine := settlementservice.NewMachine(proofs, deliveries, machineOpts...)

	deliverySvc := deliveryservice.New(deliveries, deliveryservice.WithLogger(log))

	var escrowRoutes settlementhandler.Coordinator
	if coordinator != nil {
		escrowRoutes = coordinator
	}
	router := apihttp.NewRouter(log, httpMetrics, checks,
		deliveryhandler.New(deliverySvc, log),
		proofhandler.New(proofs, log),
		settlementhandler.New(machine, escrowRoutes, deliverySvc, log),
	)

	srv := httpserver.New(cfg.Addr, router)
	group.Go(func() error {
		log.Info("chaincheck listening",
			"addr", cfg.Addr,
			"mock_payments", cfg.MockPayments,
			"mock_proofs", cfg.MockProofs,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

type poolChecker struct {
	pool *pgxpool.Pool
}

func (c poolChecker) Health(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
