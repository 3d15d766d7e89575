// Package app wires the application together: config, logger, storage,
// the domain services and the HTTP router.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lapstore/server/internal/module/cart"
	"github.com/lapstore/server/internal/module/catalog"
	"github.com/lapstore/server/internal/module/order"
	"github.com/lapstore/server/internal/module/payment"
	"github.com/lapstore/server/internal/module/payment/provider"
	"github.com/lapstore/server/internal/module/voucher"
	"github.com/lapstore/server/internal/shared/cache"
	"github.com/lapstore/server/internal/shared/config"
	"github.com/lapstore/server/internal/shared/database"
	"github.com/lapstore/server/internal/shared/logger"
	"github.com/lapstore/server/internal/utils/metrics"
	"github.com/lapstore/server/internal/utils/middleware"
)

// App holds the wired application.
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  redis.UniversalClient
	router *gin.Engine

	orderService   *order.Service
	paymentService *payment.Service

	sweepCancel context.CancelFunc
}

// New creates a fully wired application.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if err := db.AutoMigrate(
		&catalog.Product{},
		&catalog.StockMovement{},
		&voucher.Voucher{},
		&cart.Item{},
		&order.Order{},
		&order.Item{},
		&order.TimelineEntry{},
		&payment.Payment{},
		&payment.WebhookEvent{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis is optional; without it the status cache and rate limiter
	// are skipped.
	var redisClient redis.UniversalClient
	if cfg.Redis.Address != "" {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, running without cache", zap.Error(err))
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("lapstore", registry)

	app := &App{
		config: cfg,
		logger: log,
		db:     db,
		redis:  redisClient,
	}
	if err := app.wire(m, registry); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) wire(m *metrics.Metrics, registry *prometheus.Registry) error {
	cfg := a.config

	catalogService := catalog.NewService(catalog.NewRepository(a.db), a.logger)
	voucherService := voucher.NewService(voucher.NewRepository(a.db), a.logger)
	cartService := cart.NewService(cart.NewRepository(a.db), catalogService, a.logger)

	orderService := order.NewService(
		order.NewRepository(a.db),
		voucherService,
		catalogService,
		cartService,
		catalogService,
		a.redis,
		m,
		cfg.Checkout,
		a.logger,
	)
	a.orderService = orderService

	providerRegistry := payment.NewRegistry()
	providerRegistry.Register(provider.NewVNPay(provider.VNPayConfig{
		TmnCode:    cfg.Payment.VNPay.TmnCode,
		HashSecret: cfg.Payment.VNPay.HashSecret,
		PayURL:     cfg.Payment.VNPay.PayURL,
		APIURL:     cfg.Payment.VNPay.APIURL,
	}, nil))
	providerRegistry.Register(provider.NewMoMo(provider.MoMoConfig{
		PartnerCode: cfg.Payment.MoMo.PartnerCode,
		AccessKey:   cfg.Payment.MoMo.AccessKey,
		SecretKey:   cfg.Payment.MoMo.SecretKey,
		Endpoint:    cfg.Payment.MoMo.Endpoint,
	}, nil))
	providerRegistry.Register(provider.NewZaloPay(provider.ZaloPayConfig{
		AppID:    strconv.Itoa(cfg.Payment.ZaloPay.AppID),
		Key1:     cfg.Payment.ZaloPay.Key1,
		Key2:     cfg.Payment.ZaloPay.Key2,
		Endpoint: cfg.Payment.ZaloPay.Endpoint,
		QueryURL: cfg.Payment.ZaloPay.QueryURL,
	}, nil))
	if cfg.Payment.Stripe.SecretKey != "" {
		providerRegistry.Register(provider.NewStripe(provider.StripeConfig{
			SecretKey:      cfg.Payment.Stripe.SecretKey,
			EndpointSecret: cfg.Payment.Stripe.EndpointSecret,
		}))
	}
	if cfg.Payment.Alipay.AppID != "" {
		alipayProvider, err := provider.NewAlipay(provider.AlipayConfig{
			AppID:           cfg.Payment.Alipay.AppID,
			PrivateKey:      cfg.Payment.Alipay.PrivateKey,
			AlipayPublicKey: cfg.Payment.Alipay.AlipayPublicKey,
			IsProd:          cfg.Payment.Alipay.IsProd,
		})
		if err != nil {
			return fmt.Errorf("init alipay provider: %w", err)
		}
		providerRegistry.Register(alipayProvider)
	}

	paymentService := payment.NewService(
		providerRegistry,
		payment.NewRepository(a.db),
		orderService,
		m,
		cfg.Payment,
		a.logger,
	)
	a.paymentService = paymentService
	orderService.SetPaymentRefresher(paymentService)

	a.router = a.setupRouter(m, registry,
		catalog.NewHandler(catalogService),
		voucher.NewHandler(voucherService),
		cart.NewHandler(cartService),
		order.NewHandler(orderService, paymentService, a.logger),
		payment.NewHandler(paymentService, a.logger),
		payment.NewWebhookHandler(paymentService, a.logger),
	)
	return nil
}

func (a *App) setupRouter(
	m *metrics.Metrics,
	registry *prometheus.Registry,
	catalogHandler *catalog.Handler,
	voucherHandler *voucher.Handler,
	cartHandler *cart.Handler,
	orderHandler *order.Handler,
	paymentHandler *payment.Handler,
	webhookHandler *payment.WebhookHandler,
) *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(m))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Gateway callbacks authenticate by signature, not by JWT.
	webhookHandler.RegisterRoutes(r.Group("/webhooks"))

	api := r.Group("/api/v1")
	catalogHandler.RegisterRoutes(api)

	authed := api.Group("")
	authed.Use(middleware.Auth(a.config.Auth.JWTSecret))
	if a.redis != nil {
		authed.Use(middleware.RateLimit(a.redis, middleware.DefaultRateLimitConfig()))
	}
	cartHandler.RegisterRoutes(authed)
	orderHandler.RegisterRoutes(authed)

	admin := api.Group("/admin")
	admin.Use(middleware.Auth(a.config.Auth.JWTSecret), middleware.RequireAdmin())
	catalogHandler.RegisterAdminRoutes(admin)
	voucherHandler.RegisterAdminRoutes(admin)
	orderHandler.RegisterAdminRoutes(admin)
	paymentHandler.RegisterAdminRoutes(admin)

	return r
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches the background workers.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel
	go a.orderService.RunExpirySweep(ctx)
}

// Stop releases the application's resources.
func (a *App) Stop() {
	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	if a.redis != nil {
		if err := cache.Close(a.redis); err != nil {
			a.logger.Error("close redis", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Error("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// Server builds the HTTP server from config.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:         a.config.Server.Address,
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}
