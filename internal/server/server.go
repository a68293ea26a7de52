package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/bankadapter"
	"github.com/congo-pay/cardcore/internal/card"
	"github.com/congo-pay/cardcore/internal/config"
	"github.com/congo-pay/cardcore/internal/ledgerentry"
	"github.com/congo-pay/cardcore/internal/metrics"
	"github.com/congo-pay/cardcore/internal/money"
	"github.com/congo-pay/cardcore/internal/notification"
	"github.com/congo-pay/cardcore/internal/operatorauth"
	"github.com/congo-pay/cardcore/internal/processoradapter"
	"github.com/congo-pay/cardcore/internal/reconcile"
	"github.com/congo-pay/cardcore/internal/routes"
	"github.com/congo-pay/cardcore/internal/rules"
	"github.com/congo-pay/cardcore/internal/settlement"
	"github.com/congo-pay/cardcore/internal/shadowledger"
)

// Server wraps the Fiber application, its reconciliation scheduler, and
// shared dependencies.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	db        *pgxpool.Pool
	cache     *redis.Client
	reconcile *reconcile.Scheduler
	logger    *slog.Logger
}

// New wires the full dependency graph (rules engine, bank adapter, card
// and operator services, the authorization/settlement pipelines, the
// processor webhook adapter, and the reconciliation scheduler) and
// delegates route registration to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	var notifier notification.Notifier
	if cfg.Email.Enabled {
		notifier = notification.NewEmailNotifier(cfg.Email.From, cfg.Email.To, cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.Username, cfg.Email.Password)
	} else {
		notifier = notification.NewLoggerNotifier(logger)
	}

	var cardRepo card.Repository
	var ledger ledgerentry.Store
	var authStore authorization.Store
	var mappingStore processoradapter.Store
	var operatorRepo operatorauth.Repository

	var shadow *shadowledger.PostgresShadowLedger
	var shadowMem *shadowledger.InMemory

	if db != nil {
		cardRepo = card.NewPostgresRepository(db)
		ledgerStore := ledgerentry.NewPostgresStore(db)
		ledger = ledgerStore
		authStore = authorization.NewPostgresStore(db, ledgerStore)
		mappingStore = processoradapter.NewPostgresStore(db)
		operatorRepo = operatorauth.NewPostgresRepository(db)
		shadow = shadowledger.NewPostgresShadowLedger(db, cfg.Bank.HoldsGLAccount, cfg.Bank.SettlementGLAccount)
	} else {
		cardRepo = card.NewMemoryRepository()
		ledgerStore := ledgerentry.NewMemoryStore()
		ledger = ledgerStore
		authStore = authorization.NewMemoryStore(ledgerStore)
		mappingStore = processoradapter.NewMemoryStore()
		operatorRepo = operatorauth.NewMemoryRepository()
		shadowMem = shadowledger.NewInMemory(cfg.Bank.HoldsGLAccount, cfg.Bank.SettlementGLAccount)
	}

	var bank bankadapter.BankAccountAdapter
	var holdInspector reconcile.HoldInspector
	switch {
	case shadow != nil:
		bank = shadow
		holdInspector = shadow
		// The holds/settlement GL accounts are the shadow ledger's own
		// bookkeeping counterparties, not CBS-side customer accounts;
		// a real CBS adapter would never need this.
		if err := shadow.EnsureAccount(context.Background(), cfg.Bank.HoldsGLAccount, money.Currency(cfg.Rules.Currency)); err != nil {
			return nil, fmt.Errorf("ensure holds GL account: %w", err)
		}
		if err := shadow.EnsureAccount(context.Background(), cfg.Bank.SettlementGLAccount, money.Currency(cfg.Rules.Currency)); err != nil {
			return nil, fmt.Errorf("ensure settlement GL account: %w", err)
		}
	default:
		bank = shadowMem
		holdInspector = shadowMem
		_ = shadowMem.EnsureAccount(context.Background(), cfg.Bank.HoldsGLAccount, money.Currency(cfg.Rules.Currency))
		_ = shadowMem.EnsureAccount(context.Background(), cfg.Bank.SettlementGLAccount, money.Currency(cfg.Rules.Currency))
	}
	instrumentedBank := bankadapter.NewInstrumented(bank, collector)

	cardSvc := card.NewService(cardRepo)

	rulesEngine := buildRulesEngine(cfg.Rules, authStore)

	bankTimeouts := bankadapter.Timeouts{
		Balance: cfg.Bank.BalanceTimeout,
		Hold:    cfg.Bank.HoldTimeout,
		Commit:  cfg.Bank.CommitTimeout,
		Release: cfg.Bank.ReleaseTimeout,
	}

	authPipeline := &authorization.Pipeline{
		Cards:               cardSvc,
		Rules:               rulesEngine,
		Bank:                instrumentedBank,
		Store:               authStore,
		Notifier:            notifier,
		Logger:              logger,
		Metrics:             collector,
		Timeouts:            bankTimeouts,
		AuthorizationBudget: cfg.Bank.AuthorizationBudget,
	}

	settlePipeline := &settlement.Pipeline{
		Store:    authStore,
		Bank:     instrumentedBank,
		Ledger:   ledger,
		Metrics:  collector,
		Timeouts: bankTimeouts,
	}

	processorAdapter := &processoradapter.Adapter{
		Authorize: authPipeline,
		Settle:    settlePipeline,
		Mappings:  mappingStore,
		Processor: cfg.ProcessorName,
		Logger:    logger,
	}

	if cfg.JWT.SigningKey == "" {
		return nil, fmt.Errorf("jwt signing key is required")
	}
	operatorSvc := operatorauth.NewService(operatorRepo, []byte(cfg.JWT.SigningKey), cfg.JWT.TTL)

	scheduler := reconcile.NewScheduler(authStore, instrumentedBank, holdInspector, logger)
	scheduler.LookBack = cfg.Reconcile.LookBack
	if err := scheduler.Start(cfg.Reconcile.Schedule); err != nil {
		return nil, fmt.Errorf("start reconciliation scheduler: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	if err := routes.Setup(app, routes.Deps{
		Cfg:                  cfg,
		DB:                   db,
		Cache:                cache,
		Logger:               logger,
		CardHandler:          card.NewHandler(cardSvc),
		OperatorHandler:      operatorauth.NewHandler(operatorSvc),
		OperatorService:      operatorSvc,
		ProcessorHandler:     processoradapter.NewHandler(processorAdapter),
		AuthorizationHandler: authorization.NewHandler(authPipeline, authStore),
		SettlementHandler:    settlement.NewHandler(settlePipeline),
		Metrics:              collector,
	}); err != nil {
		_ = scheduler.Stop(context.Background())
		return nil, err
	}

	return &Server{app: app, cfg: cfg, db: db, cache: cache, reconcile: scheduler, logger: logger}, nil
}

func buildRulesEngine(cfg config.RulesConfig, store rules.AuthorizationQuerier) *rules.Engine {
	currency := money.Currency(cfg.Currency)

	built := []rules.Rule{
		rules.TransactionLimit{Cap: money.MustNewFromMinor(cfg.TransactionLimitMinor, currency)},
		rules.DailySpendLimit{Cap: money.MustNewFromMinor(cfg.DailySpendLimitMinor, currency), Store: store, Currency: currency},
		rules.Velocity{MaxPerWindow: cfg.VelocityMaxPerMinute, Window: time.Minute, Store: store},
	}
	if len(cfg.MCCBlocklist) > 0 {
		built = append(built, rules.NewMCCBlocking(cfg.MCCBlocklist...))
	}
	return rules.NewEngine(built...)
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server and the reconciliation
// scheduler.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.reconcile.Stop(ctx); err != nil {
		s.logger.Warn("reconciliation scheduler stop", "error", err)
	}
	return s.app.ShutdownWithContext(ctx)
}
