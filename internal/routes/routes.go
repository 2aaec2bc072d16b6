package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/config"
	"github.com/cargolink/settlement/internal/escrow"
	"github.com/cargolink/settlement/internal/middleware"
	"github.com/cargolink/settlement/internal/notification"
	"github.com/cargolink/settlement/internal/payment"
	"github.com/cargolink/settlement/internal/payment/stripe"
	"github.com/cargolink/settlement/internal/stellar"
	"github.com/cargolink/settlement/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Services holds the wired domain services so callers outside the HTTP
// surface (the expiry sweeper) can reach them.
type Services struct {
	Wallet  *wallet.Service
	Payment *payment.Service
	Stellar *stellar.Service
	Escrow  *escrow.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	// Health
	RegisterHealthRoutes(app, d)

	// Stores: Postgres when a pool is present, in-memory otherwise.
	var (
		walletStore  wallet.Store
		paymentStore payment.Store
		stellarStore stellar.Store
		escrowStore  escrow.Store
	)
	if d.DB != nil {
		walletStore = wallet.NewPostgresStore(d.DB)
		paymentStore = payment.NewPostgresStore(d.DB)
		stellarStore = stellar.NewPostgresStore(d.DB)
		escrowStore = escrow.NewPostgresStore(d.DB)
	} else {
		walletStore = wallet.NewMemoryStore()
		paymentStore = payment.NewMemoryStore()
		stellarStore = stellar.NewMemoryStore()
		escrowStore = escrow.NewMemoryStore()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)

	walletSvc := wallet.NewService(walletStore,
		wallet.WithNotifier(notifier), wallet.WithSingleWalletPolicy())

	vault := stellar.NewVault(d.Cfg.AccountSealKey)
	horizon := stellar.NewHTTPHorizon(d.Cfg.HorizonURL, d.Cfg.NetworkPassphrase, d.Cfg.HorizonTimeout)
	stellarSvc := stellar.NewService(stellarStore, horizon, vault, d.Logger)

	cardAPI := stripe.NewHTTPClient(d.Cfg.GatewayBaseURL, d.Cfg.GatewayAPIKey, d.Cfg.GatewayTimeout)
	cardAdapter := stripe.New(cardAPI, paymentStore, d.Cfg.GatewayWebhookSecret, d.Logger)
	networkAdapter := stellar.NewProvider(stellarSvc, paymentStore, d.Cfg.PlatformAccount, d.Logger)

	paymentSvc, err := payment.NewService(paymentStore, d.Logger, notifier, cardAdapter, networkAdapter)
	if err != nil {
		return nil, err
	}

	reserve, err := decimal.NewFromString(d.Cfg.EscrowReserve)
	if err != nil {
		return nil, fmt.Errorf("invalid ESCROW_RESERVE: %w", err)
	}
	escrowSvc := escrow.NewService(escrowStore, stellarSvc, d.Logger,
		escrow.WithNotifier(notifier), escrow.WithReserve(reserve))

	walletHandler := wallet.NewHandler(walletSvc)
	paymentHandler := payment.NewHandler(paymentSvc)
	accountHandler := stellar.NewHandler(stellarSvc)
	escrowHandler := escrow.NewHandler(escrowSvc)

	// API routes. Idempotency is scoped to the versioned surface so
	// gateway webhooks, which carry their own replay protection, are not
	// forced to send an Idempotency-Key.
	api := app.Group("/api/v1")
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	rateLimiter := middleware.RateLimit(d.Cache, 60)
	audit := middleware.Audit(d.Logger)
	RegisterWalletRoutes(api, walletHandler, rateLimiter)
	RegisterPaymentRoutes(app, api, paymentHandler, rateLimiter, audit)
	RegisterAccountRoutes(api, accountHandler)
	RegisterEscrowRoutes(api, escrowHandler, rateLimiter)

	return &Services{
		Wallet:  walletSvc,
		Payment: paymentSvc,
		Stellar: stellarSvc,
		Escrow:  escrowSvc,
	}, nil
}
