package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/courtline/internal/cache"
	"github.com/md-rashed-zaman/courtline/internal/config"
	"github.com/md-rashed-zaman/courtline/internal/db"
	"github.com/md-rashed-zaman/courtline/internal/handlers"
	"github.com/md-rashed-zaman/courtline/internal/httpx"
	"github.com/md-rashed-zaman/courtline/internal/kafkax"
	"github.com/md-rashed-zaman/courtline/internal/otelx"
	"github.com/md-rashed-zaman/courtline/internal/outbox"
	"github.com/md-rashed-zaman/courtline/internal/reservation"
	"github.com/md-rashed-zaman/courtline/internal/runtime"
	"github.com/md-rashed-zaman/courtline/internal/schedule"
	"github.com/md-rashed-zaman/courtline/internal/sessions"
	"github.com/md-rashed-zaman/courtline/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "courtline")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	if err := db.Migrate(dbURL); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.PoolConfig{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	tzName := config.String("TIMEZONE", "Europe/Zagreb")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		logger.Error("invalid timezone, falling back to UTC", "timezone", tzName, "err", err)
		loc = time.UTC
	}
	horizon := schedule.Horizon{
		Days: config.Int("HORIZON_DAYS", 7),
		Hours: schedule.Hours{
			ClosedFrom:  config.Int("CLOSED_FROM_HOUR", 2),
			ClosedUntil: config.Int("CLOSED_UNTIL_HOUR", 9),
		},
		Location: loc,
	}

	outboxRepo := outbox.NewRepository(pool)
	slotRepo := storage.NewSlotRepository(pool, outboxRepo)
	userRepo := storage.NewUserRepository(pool)
	refreshRepo := sessions.NewRefreshRepository(pool)

	svc := reservation.NewService(slotRepo, horizon, config.Duration("LIST_LOOKBACK", time.Hour), nil)

	var rdb *redis.Client
	redisAddr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
	}
	scheduleCache := cache.NewScheduleCache(rdb, config.Duration("SCHEDULE_CACHE_TTL", 10*time.Second))

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	slotsHandler := handlers.NewSlotsHandler(svc, scheduleCache, logger, jwtSecret)
	authHandler := handlers.NewAuthHandler(userRepo, refreshRepo, jwtSecret,
		config.Duration("ACCESS_TOKEN_TTL", time.Hour),
		config.Duration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
	)

	checkTimeout := config.Duration("READY_CHECK_TIMEOUT", 2*time.Second)
	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Timeout: checkTimeout, Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Timeout: checkTimeout, Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Timeout: checkTimeout, Check: cache.ReadyCheck(rdb)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	mux.HandleFunc("/slots", slotsHandler.Collection)
	mux.HandleFunc("/slots/", slotsHandler.Item)
	mux.HandleFunc("/schedule", slotsHandler.Schedule)
	mux.HandleFunc("/auth/register", authHandler.Register)
	mux.HandleFunc("/auth/login", authHandler.Login)
	mux.HandleFunc("/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("/auth/logout", authHandler.Logout)
	mux.HandleFunc("/auth/me", authHandler.Me)

	middlewares := []httpx.Middleware{
		httpx.WithCORS(strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ",")),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	}
	rateLimit := config.Int("RATE_LIMIT", 60)
	rateWindow := config.Duration("RATE_LIMIT_WINDOW", time.Minute)
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, rateWindow, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(rateLimit, rateWindow).Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
