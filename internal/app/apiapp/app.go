package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/config"
	"github.com/craftora/marketplace/internal/infra/bridge"
	"github.com/craftora/marketplace/internal/infra/httpclient"
	"github.com/craftora/marketplace/internal/infra/psp"
	s3infra "github.com/craftora/marketplace/internal/infra/s3"
	"github.com/craftora/marketplace/internal/infra/telegram"
	"github.com/craftora/marketplace/internal/jobs/expiry"
	"github.com/craftora/marketplace/internal/metrics"
	pgrepo "github.com/craftora/marketplace/internal/repo/postgres"
	redrepo "github.com/craftora/marketplace/internal/repo/redis"
	authsvc "github.com/craftora/marketplace/internal/services/auth"
	feessvc "github.com/craftora/marketplace/internal/services/fees"
	notifsvc "github.com/craftora/marketplace/internal/services/notifications"
	cardrail "github.com/craftora/marketplace/internal/services/rails/card"
	stablerail "github.com/craftora/marketplace/internal/services/rails/stablecoin"
	ratesvc "github.com/craftora/marketplace/internal/services/rate"
	settlementsvc "github.com/craftora/marketplace/internal/services/settlement"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler

	sweeper     *expiry.Sweeper
	sweepPeriod time.Duration
	sweepCancel context.CancelFunc
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	var redisClient *goredis.Client
	if c, err := redrepo.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Warn("redis init failed, continuing in degraded mode", zap.Error(err))
	} else {
		redisClient = c
	}

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	pspClient, err := psp.NewClient(psp.Config{
		BaseURL:       cfg.PSP.BaseURL,
		APIKey:        cfg.PSP.APIKey,
		WebhookSecret: cfg.PSP.WebhookSecret,
		HTTPClient:    httpclient.New(cfg.PSP.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("psp client: %w", err)
	}

	bridgeClient, err := bridge.NewClient(bridge.Config{
		BaseURL:    cfg.Bridge.BaseURL,
		APIKey:     cfg.Bridge.APIKey,
		HTTPClient: httpclient.New(cfg.Bridge.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("bridge client: %w", err)
	}

	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	itemRepo := pgrepo.NewItemRepo(pool)
	payoutRepo := pgrepo.NewPayoutAccountRepo(pool)
	notificationRepo := pgrepo.NewNotificationRepo(pool)
	intentCache := redrepo.NewIntentCacheRepo(redisClient, cfg.Bridge.StatusCacheTTL)
	rateRepo := redrepo.NewRateRepo(redisClient)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	feeCalculator := feessvc.NewCalculator(cfg.Fees.PlatformRateBps)
	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	rateLimiter := ratesvc.NewLimiter(rateRepo, cfg.Checkout.RatePerMinute, cfg.Checkout.RatePer10Sec)

	cardAdapter, err := cardrail.NewAdapter(pspClient, payoutRepo, feeCalculator, cfg.PSP.Currency)
	if err != nil {
		return nil, fmt.Errorf("card rail: %w", err)
	}
	stableAdapter, err := stablerail.NewAdapter(bridgeClient, intentCache, cfg.PSP.Currency, cfg.Bridge.Networks)
	if err != nil {
		return nil, fmt.Errorf("stablecoin rail: %w", err)
	}

	dispatcherCfg := notifsvc.Config{
		Store:   notificationRepo,
		Items:   itemRepo,
		Bucket:  cfg.S3.Bucket,
		LinkTTL: cfg.Notify.DownloadLinkTTL,
		Logger:  log,
	}
	if s3Client != nil {
		dispatcherCfg.Signer = s3Client
	}
	if cfg.Notify.TelegramToken != "" {
		if pusher, err := telegram.NewNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID); err != nil {
			log.Warn("telegram init failed, continuing without push notifications", zap.Error(err))
		} else {
			dispatcherCfg.Pusher = pusher
		}
	}
	dispatcher, err := notifsvc.NewDispatcher(dispatcherCfg)
	if err != nil {
		return nil, fmt.Errorf("notification dispatcher: %w", err)
	}

	settlementService, err := settlementsvc.NewService(
		purchaseRepo,
		itemRepo,
		cardAdapter,
		stableAdapter,
		feeCalculator,
		dispatcher,
		recorder,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("settlement service: %w", err)
	}

	sweeper, err := expiry.NewSweeper(
		purchaseRepo,
		cfg.Checkout.IntentExpiry,
		cfg.Checkout.ExpirySweepGrace,
		recorder,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("expiry sweeper: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		SettlementService: settlementService,
		PayoutAccounts:    payoutRepo,
		PSPVerifier:       pspClient,
		RateLimiter:       rateLimiter,
		JWTManager:        jwtManager,
		MetricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:            log,
		Config:            cfg,
	})

	app := &App{
		cfg:         cfg,
		logger:      log,
		server:      server,
		postgres:    pool,
		redis:       redisClient,
		s3:          s3Client,
		httpRouter:  r,
		sweepPeriod: cfg.Checkout.ExpirySweepPeriod,
	}
	// Sweeping without a ledger would only log errors.
	if pool != nil {
		app.sweeper = sweeper
	}

	return app, nil
}

func (a *App) Run() error {
	if a.sweeper != nil {
		sweepCtx, cancel := context.WithCancel(context.Background())
		a.sweepCancel = cancel
		go func() {
			if err := a.sweeper.Run(sweepCtx, a.sweepPeriod); err != nil {
				a.logger.Error("expiry sweeper stopped", zap.Error(err))
			}
		}()
	}

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
