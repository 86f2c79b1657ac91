package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nasir-uddin/theragrid/libs/config"
	"github.com/nasir-uddin/theragrid/libs/db"
	"github.com/nasir-uddin/theragrid/libs/httpx"
	"github.com/nasir-uddin/theragrid/libs/kafkax"
	otelx "github.com/nasir-uddin/theragrid/libs/otel"
	"github.com/nasir-uddin/theragrid/libs/runtime"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/consumer"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/emrsync"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/grid"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/handlers"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/identity"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/inbox"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/outbox"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/scheduling"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/storage"
)

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8084")
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

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	branchRepo := storage.NewBranchRepository(pool)
	roomRepo := storage.NewRoomRepository(pool)
	staffRepo := storage.NewStaffRepository(pool)
	treatmentRepo := storage.NewTreatmentRepository(pool)
	patientRepo := storage.NewPatientRepository(pool)
	gridRepo := storage.NewGridRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)

	resolver := scheduling.NewResolver(roomRepo, staffRepo)
	finder := scheduling.NewFinder(branchRepo, treatmentRepo, resolver, gridRepo, bookingRepo, logger)
	booker := scheduling.NewBooker(bookingRepo, logger)
	gridInit := grid.NewInitializer(branchRepo, roomRepo, gridRepo, logger)
	gridPruner := grid.NewPruner(gridRepo, staffRepo, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	syncer := emrsync.NewSyncer(branchRepo, treatmentRepo, logger)
	inboxRepo := inbox.NewRepository(pool)
	startConsumer := func(topic string, handler consumer.Handler) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "scheduling-service"),
			Topic:   topic,
		}, handler)
		go eventConsumer.Run(ctx)
	}
	startConsumer(config.String("KAFKA_BRANCH_TOPIC", "emr.branch.synced.v1"), syncer.HandleBranchSynced)
	startConsumer(config.String("KAFKA_TREATMENT_TOPIC", "emr.treatment.synced.v1"), syncer.HandleTreatmentSynced)

	emrProvider, err := emrsync.NewProvider(config.String("EMR_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("emr provider init failed; pull reconciliation disabled", "err", err)
		emrProvider = nil
	}
	if emrProvider != nil {
		interval := 12 * time.Hour
		if v, err := strconv.Atoi(config.String("EMR_PULL_INTERVAL_MINUTES", "720")); err == nil && v > 0 {
			interval = time.Duration(v) * time.Minute
		}
		go syncer.RunPeriodicPull(ctx, emrProvider, interval)
	}

	signer := identity.NewHS256Signer(config.String("JWT_SECRET", "dev-secret"))
	tokenTTL := time.Hour
	if v, err := strconv.Atoi(config.String("TOKEN_TTL_MINUTES", "60")); err == nil && v > 0 {
		tokenTTL = time.Duration(v) * time.Minute
	}
	authHandler := identity.NewHandler(signer, identity.NewUserRepository(pool), logger, tokenTTL)

	bookingHandler := handlers.NewBookingHandler(finder, booker, resolver, bookingRepo, patientRepo, logger)
	adminHandler := handlers.NewAdminHandler(gridInit, gridPruner, gridRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/bookings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			bookingHandler.List(w, r)
			return
		}
		bookingHandler.Create(w, r)
	})
	mux.HandleFunc("/api/v1/bookings/find-available-slot", bookingHandler.FindAvailableSlot)
	mux.HandleFunc("/api/v1/bookings/available-staff", bookingHandler.AvailableStaff)
	mux.HandleFunc("/api/v1/bookings/get", bookingHandler.Get)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/bookings/status", bookingHandler.MarkStatus)
	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("/api/v1/auth/me", authHandler.Me)

	admin := identity.RequireRole(signer, "admin")
	mux.Handle("/api/v1/admin/grid/initialize", admin(http.HandlerFunc(adminHandler.InitializeGrid)))
	mux.Handle("/api/v1/admin/grid/prune", admin(http.HandlerFunc(adminHandler.PruneGrid)))
	mux.Handle("/api/v1/admin/grid/day", admin(http.HandlerFunc(adminHandler.GridDay)))

	limitPerMinute := 120
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "120")); err == nil && v > 0 {
		limitPerMinute = v
	}
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, true)
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
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
