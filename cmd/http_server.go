package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/events"
	"github.com/frahmantamala/salespilot/internal/fx"
	"github.com/frahmantamala/salespilot/internal/otp"
	paymentPkg "github.com/frahmantamala/salespilot/internal/payment"
	"github.com/frahmantamala/salespilot/internal/paymentgateway"
	"github.com/frahmantamala/salespilot/internal/transport/rest"
	"github.com/frahmantamala/salespilot/pkg/logger"

	"github.com/go-chi/chi"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server serving checkout, gateway callback and OTP endpoints`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config     *internal.Config
	Store      *storeHandle
	EventBus   *events.EventBus
	Audit      *paymentPkg.EventHandler
	Converter  *fx.Converter
	OTP        *otp.Service
	Router     *chi.Mux
	Logger     *slog.Logger
	redis      *redis.Client
	stopSweeps context.CancelFunc
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "store", deps.Store.Driver)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.close()
	deps.Logger.Info("Server stopped")
}

// close releases everything initializeDependencies opened, after in-flight
// event handlers finished.
func (d *Dependencies) close() {
	d.stopSweeps()
	d.EventBus.Wait()
	if err := d.Store.Close(); err != nil {
		d.Logger.Error("Payment store close error", "error", err)
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config
	urls := paymentPkg.URLs{Public: cfg.Server.BaseURL, Pages: cfg.Server.PagesBaseURL}
	service := paymentPkg.NewService(deps.Store.Store, deps.EventBus, deps.Logger)

	var sessions paymentPkg.StripeSessions
	if cfg.Stripe.Configured() {
		sessions = paymentgateway.NewStripeClient(cfg.Stripe.SecretKey, nil)
	}

	var orders paymentPkg.PayPalOrders
	if cfg.PayPal.Configured() {
		orders = paymentgateway.NewPayPalClient(paymentgateway.Config{
			APIBase:      cfg.PayPal.APIBase,
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
			Timeout:      cfg.PayPal.Timeout,
		}, deps.Logger)
	}

	payu := paymentPkg.NewPayUVerifier(cfg.PayU.Key, cfg.PayU.Salt)

	handlers := rest.Handlers{
		Health: rest.NewHealthHandler(map[string]rest.Pinger{
			"payment_store": storePinger(deps.Store.Store),
		}),
		Stripe:         paymentPkg.NewStripeHandler(service, sessions, cfg.Stripe.WebhookSecret, urls, deps.Logger),
		PayPal:         paymentPkg.NewPayPalHandler(service, orders, urls, deps.Logger),
		PayU:           paymentPkg.NewPayUHandler(service, payu, deps.Converter, cfg.PayU.URL, urls, deps.Logger),
		OTP:            otp.NewHandler(deps.OTP, deps.Logger),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    cfg.Server.OpenAPIPath,
	}

	rest.RegisterAllRoutes(deps.Router, handlers, deps.Logger)
}

func storePinger(store paymentPkg.Store) rest.Pinger {
	if p, ok := store.(paymentPkg.Pinger); ok {
		return p
	}
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	ctx := context.Background()
	store, err := openStore(ctx, config, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open payment store: %w", err)
	}

	eventBus := events.NewEventBus(log)
	audit := paymentPkg.NewEventHandler(log)
	audit.RegisterEventHandlers(eventBus)

	converter, redisClient := newConverter(config.FX, log)

	otpService := otp.NewService(
		otp.NewMemoryStore(),
		otp.NewLimiter(config.OTP.SendEvery, config.OTP.SendBurst),
		otp.NewLogSender(log),
		otp.Options{
			TTL:         config.OTP.TTL,
			MaxAttempts: config.OTP.MaxAttempts,
			BCryptCost:  config.OTP.BCryptCost,
		},
		log,
	)
	sweepCtx, stopSweeps := context.WithCancel(ctx)
	go otpService.Sweep(sweepCtx, time.Minute)

	return &Dependencies{
		Config:     config,
		Store:      store,
		EventBus:   eventBus,
		Audit:      audit,
		Converter:  converter,
		OTP:        otpService,
		Router:     chi.NewRouter(),
		Logger:     log,
		redis:      redisClient,
		stopSweeps: stopSweeps,
	}, nil
}

// newConverter caches quotes in redis when REDIS_ADDR is set, in memory
// otherwise. Without an API key every conversion uses the fallback rate.
func newConverter(cfg internal.FXConfig, log *slog.Logger) (*fx.Converter, *redis.Client) {
	var source fx.RateSource
	if cfg.APIKey != "" {
		source = fx.NewExchangeRateAPI(cfg.APIBase, cfg.APIKey, &http.Client{Timeout: cfg.Timeout})
	}

	var (
		cache       fx.RateCache = fx.NewMemoryCache()
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:                  cfg.RedisAddr,
			DB:                    cfg.RedisDB,
			ContextTimeoutEnabled: true,
		})
		cache = fx.NewRedisCache(redisClient, log)
	}

	return fx.NewConverter(source, cache, fx.Options{
		FallbackRate: cfg.FallbackRate,
		Timeout:      cfg.Timeout,
		CacheTTL:     cfg.CacheTTL,
	}, log), redisClient
}
