// Command keel runs the action execution engine: HTTP control surface,
// execution orchestrator and the liveness sweeper.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	_ "modernc.org/sqlite"

	"github.com/glasswing-labs/keel/pkg/api"
	"github.com/glasswing-labs/keel/pkg/authz"
	"github.com/glasswing-labs/keel/pkg/breaker"
	"github.com/glasswing-labs/keel/pkg/config"
	"github.com/glasswing-labs/keel/pkg/conflict"
	"github.com/glasswing-labs/keel/pkg/connector"
	"github.com/glasswing-labs/keel/pkg/governance"
	"github.com/glasswing-labs/keel/pkg/inventory"
	"github.com/glasswing-labs/keel/pkg/kv"
	"github.com/glasswing-labs/keel/pkg/observability"
	"github.com/glasswing-labs/keel/pkg/orchestrator"
	"github.com/glasswing-labs/keel/pkg/proposal"
	"github.com/glasswing-labs/keel/pkg/safety"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProvider, err := observability.Init(ctx, &observability.Config{
		ServiceName:  "keel",
		OTLPEndpoint: cfg.OTLPEndpoint,
		BatchTimeout: 5 * time.Second,
		Enabled:      cfg.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutCtx); err != nil {
			logger.Warn("otel shutdown", "error", err)
		}
	}()

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	proposals, err := proposal.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("init proposal store: %w", err)
	}
	govStore, err := governance.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("init governance store: %w", err)
	}

	kvStore := openKV(ctx, cfg, logger)

	safetyGate := safety.NewGate()
	breakers := breaker.NewRegistry(breaker.DefaultThreshold, cfg.BreakerCoolDown)
	meter := otelProvider.Meter()
	if transitions, err := meter.Int64Counter("keel.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes")); err != nil {
		logger.Warn("breaker transitions counter unavailable", "error", err)
	} else {
		breakers.OnTransition(func(service string, from, to breaker.State) {
			transitions.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("service", service),
				attribute.String("from", string(from)),
				attribute.String("to", string(to)),
			))
		})
	}
	locks := conflict.NewManager(kvStore, conflict.Policy{FailOpen: cfg.LockFailOpen, TTL: cfg.LockTTL}, logger)
	invLedger := inventory.NewLedger(kvStore, cfg.HoldTTL)

	connectors := connector.NewRegistry(buildConnectors(cfg)...)
	govLedger := governance.NewLedger(govStore, connectors, logger)

	profiles, err := config.LoadProfiles(cfg.ProfilePath)
	if err != nil {
		return fmt.Errorf("load tenant profiles: %w", err)
	}
	policies, err := buildPolicies(profiles)
	if err != nil {
		return fmt.Errorf("compile tenant policies: %w", err)
	}
	authzGate := authz.NewGate(policies, authz.NewLogNotifier(logger), cfg.AuthzTimeout)

	var stock orchestrator.StockReader
	if cfg.PlatformBaseURL != "" {
		stock = inventory.NewHTTPStockReader(cfg.PlatformBaseURL)
	} else {
		logger.Warn("no PLATFORM_BASE_URL configured, stock reads resolve to zero")
		stock = inventory.NewStaticStockReader()
	}

	orch := orchestrator.New(orchestrator.Components{
		Proposals:  proposals,
		Safety:     safetyGate,
		Authz:      authzGate,
		Locks:      locks,
		Inventory:  invLedger,
		Governance: govLedger,
		Breakers:   breakers,
		Connectors: connectors,
		Stock:      stock,
		Retry:      connector.DefaultRetryPolicy(),
		Logger:     logger,
		Tracer:     otelProvider.Tracer(),
		Meter:      meter,
		Tenure:     tenureLookup(profiles),
	})
	defer orch.Close()

	sweeper := orchestrator.NewSweeper(orch, cfg.SweepInterval, cfg.StuckAfter)
	go sweeper.Run(ctx)

	validator := api.NewJWTValidator([]byte(cfg.AdminJWTSecret))
	if validator == nil {
		logger.Warn("ADMIN_JWT_SECRET not set, admin endpoints disabled")
	}
	server := api.NewServer(proposals, orch, breakers, safetyGate, authzGate, govLedger, invLedger, validator)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// openKV prefers redis; an unreachable server falls back to the in-process
// store so single-node deployments still run.
func openKV(ctx context.Context, cfg *config.Config, logger *slog.Logger) kv.Store {
	rs := kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable, using in-process kv store", "addr", cfg.RedisAddr, "error", err)
		return kv.NewMemoryStore()
	}
	logger.Info("redis connected", "addr", cfg.RedisAddr)
	return rs
}

func buildConnectors(cfg *config.Config) []connector.Connector {
	out := make([]connector.Connector, 0, len(cfg.ConnectorServices))
	for _, name := range cfg.ConnectorServices {
		out = append(out, connector.NewHTTPConnector(name, cfg.PlatformBaseURL+"/"+name, cfg.ConnectorAPIKey))
	}
	return out
}

// tenureLookup resolves merchant account age from the tenant profile.
// Unconfigured tenants resolve to zero, tripping any minimum-tenure rule.
func tenureLookup(profiles *config.Profiles) func(tenantID string) int64 {
	return func(tenantID string) int64 {
		if p := profiles.Lookup(tenantID); p != nil {
			return p.TenureDays
		}
		return 0
	}
}

// buildPolicies compiles each tenant's authorization policy at startup so a
// malformed expression fails the boot, not a live execution.
func buildPolicies(profiles *config.Profiles) (func(tenantID string) authz.Policy, error) {
	compiled := make(map[string]authz.Policy, len(profiles.Tenants))
	for _, tp := range profiles.Tenants {
		if tp.AuthzExpression != "" {
			p, err := authz.NewCELPolicy(tp.AuthzExpression)
			if err != nil {
				return nil, fmt.Errorf("tenant %s: %w", tp.TenantID, err)
			}
			compiled[tp.TenantID] = p
			continue
		}
		compiled[tp.TenantID] = authz.ThresholdPolicy{
			MaxPriceDeltaPct: tp.MaxPriceDeltaPct,
			MaxExposureUSD:   tp.MaxExposureUSD,
			MinTenureDays:    tp.MinTenureDays,
		}
	}
	fallback := authz.ThresholdPolicy{}
	return func(tenantID string) authz.Policy {
		if p, ok := compiled[tenantID]; ok {
			return p
		}
		return fallback
	}, nil
}
