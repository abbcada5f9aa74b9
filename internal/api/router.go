package api

import (
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/api/handler"
	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/api/spec"
	"github.com/ayo6706/wallet-ledger/internal/config"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles the orchestrators the HTTP layer drives.
type Services struct {
	Ledger          *service.LedgerService
	Journal         *service.JournalService
	Transfers       *service.TransferService
	Conversions     *service.ConversionService
	Deposits        *service.DepositService
	Webhooks        *service.WebhookService
	Reconciler      *service.ReconciliationService
	ExternalWallets *service.ExternalWalletService
}

type Router struct {
	cfg      *config.Config
	logger   *zap.Logger
	services Services
	idem     *idempotency.Store
	checks   map[string]handler.Pinger
}

func NewRouter(cfg *config.Config, logger *zap.Logger, services Services, idem *idempotency.Store, checks map[string]handler.Pinger) *Router {
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)
	return &Router{cfg: cfg, logger: logger, services: services, idem: idem, checks: checks}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   api.allowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Trace-ID", "X-Idempotent-Replay"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Handlers
	healthHandler := handler.NewHealthHandler(api.checks)
	walletHandler := handler.NewWalletHandler(api.services.Ledger)
	transferHandler := handler.NewTransferHandler(api.services.Transfers)
	conversionHandler := handler.NewConversionHandler(api.services.Conversions)
	depositHandler := handler.NewDepositHandler(api.services.Deposits)
	transactionHandler := handler.NewTransactionHandler(api.services.Journal)
	externalWalletHandler := handler.NewExternalWalletHandler(api.services.ExternalWallets)
	webhookHandler := handler.NewWebhookHandler(api.services.Webhooks)
	adminHandler := handler.NewAdminHandler(api.services.Reconciler)

	// Public Routes
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.With(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS)).
		Post("/v1/webhooks/provider", webhookHandler.HandleProviderWebhook)

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		idem := middleware.IdempotencyMiddleware(api.idem, api.logger)

		// Wallet
		r.Post("/v1/wallet", walletHandler.CreateWallet)
		r.Get("/v1/wallet/balances", walletHandler.ListBalances)
		r.Get("/v1/wallet/balances/{currency}", walletHandler.GetBalance)

		// Money movement
		r.With(idem).Post("/v1/transfers", transferHandler.Transfer)
		r.With(idem).Post("/v1/withdrawals", transferHandler.Withdraw)
		r.With(idem).Post("/v1/conversions", conversionHandler.Convert)
		r.With(idem).Post("/v1/deposits", depositHandler.Initiate)

		// History
		r.Get("/v1/transactions", transactionHandler.ListTransactions)
		r.Get("/v1/transactions/{reference}", transactionHandler.GetTransaction)

		// External wallets
		r.Put("/v1/external-wallets/{currency}", externalWalletHandler.Upsert)
		r.Get("/v1/external-wallets", externalWalletHandler.List)

		// Operators
		r.With(middleware.RequireRole(domain.RoleAdmin)).
			Post("/v1/admin/transactions/{reference}/resolve", adminHandler.ResolveTransaction)
	})

	return r
}

func (api *Router) allowedOrigins() []string {
	if len(api.cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return api.cfg.CORSAllowedOrigins
}
