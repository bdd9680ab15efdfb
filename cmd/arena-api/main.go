package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/arena-booking-api/api/swagger"
	"github.com/noah-isme/arena-booking-api/internal/handler"
	"github.com/noah-isme/arena-booking-api/internal/middleware"
	"github.com/noah-isme/arena-booking-api/internal/repository"
	"github.com/noah-isme/arena-booking-api/internal/service"
	"github.com/noah-isme/arena-booking-api/pkg/cache"
	"github.com/noah-isme/arena-booking-api/pkg/config"
	"github.com/noah-isme/arena-booking-api/pkg/database"
	"github.com/noah-isme/arena-booking-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/arena-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/arena-booking-api/pkg/middleware/requestid"
	"github.com/noah-isme/arena-booking-api/pkg/secure"
)

const (
	sessionSweepInterval = 5 * time.Minute
	sessionIdleTimeout   = 2 * time.Hour
)

// @title ARENA Booking API
// @version 1.0.0
// @description Tutoring session booking backed by the student's Google Calendar
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Calendar.TimeZone)
	if err != nil {
		return fmt.Errorf("load calendar time zone %q: %w", cfg.Calendar.TimeZone, err)
	}

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Credentials.Store == config.CredentialStoreRedis {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}
	cacheRepo := repository.NewCacheRepository(redisClient)
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}

	var db *sqlx.DB
	if cfg.Credentials.Store == config.CredentialStorePostgres {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		checks["postgres"] = db.PingContext
	}

	sealer, err := secure.NewSealer(cfg.Credentials.Secret, "calendar-credentials")
	if err != nil {
		return fmt.Errorf("init credential sealer: %w", err)
	}
	store, err := newCredentialStore(ctx, cfg, sealer, redisClient, db, metrics)
	if err != nil {
		return err
	}

	renewer, err := service.NewTokenRenewer(loc, logr)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.Academic.Timeout}
	academic := repository.NewAcademicRepository(cfg.Academic, httpClient, logr)
	calendarBackend := repository.NewCalendarRepository(repository.CalendarOptions{
		CalendarID: cfg.Calendar.CalendarID,
		Endpoint:   cfg.Google.Endpoint,
	}, logr)
	authority := repository.NewOAuthAuthority(cfg.Google, nil)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.DisciplineTTL, "arena", logr, cfg.Cache.Enabled)
	disciplines := service.NewDisciplineService(academic, cacheSvc, cfg.Cache.DisciplineTTL, logr)
	resolver := service.NewAvailabilityResolver(academic, cfg.Slots.Step, loc, logr)
	slots := service.NewTimeSlotGenerator(service.SlotConfig{
		OpenHour:  cfg.Slots.OpenHour,
		CloseHour: cfg.Slots.CloseHour,
		Step:      cfg.Slots.Step,
	}, loc, time.Now)

	registry := service.NewSessionRegistry(service.SessionDeps{
		Backend:     calendarBackend,
		Authority:   authority,
		Store:       store,
		Scheduler:   renewer,
		Resolver:    resolver,
		Disciplines: disciplines,
		Slots:       slots,
		Validator:   validator.New(),
		Metrics:     metrics,
		Logger:      logr,
	}, service.GatewayConfig{
		Location:        loc,
		TimeZone:        cfg.Calendar.TimeZone,
		ColorID:         cfg.Calendar.ColorID,
		Marker:          cfg.Calendar.Marker,
		ConflictWindow:  cfg.Calendar.ConflictWindow,
		DefaultDuration: cfg.Calendar.DefaultDuration,
		ListHorizon:     cfg.Calendar.ListHorizon,
		RenewInterval:   cfg.Session.RenewInterval,
		RenewThreshold:  cfg.Session.RenewThreshold,
	}, service.OrchestratorConfig{
		MessageTTL:   cfg.Session.MessageTTL,
		FormDuration: cfg.Session.FormDuration,
	})

	cancelSweep, err := renewer.Schedule("session-sweep", sessionSweepInterval, func() {
		if evicted := registry.EvictIdle(sessionIdleTimeout); evicted > 0 {
			logr.Info("evicted idle booking sessions", zap.Int("count", evicted))
		}
	})
	if err != nil {
		return err
	}
	defer cancelSweep()

	exporter := service.NewExportService(nil, nil, cfg.Calendar.Marker, loc, time.Now, logr)
	authSvc := service.NewAuthService(cfg.JWT)

	bookingHandler := handler.NewBookingHandler(registry, exporter, resolver, disciplines)
	calendarHandler := handler.NewCalendarHandler(registry)
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	api.GET("/metrics/summary", metricsHandler.Snapshot)

	calendar := api.Group("/calendar")
	calendar.GET("/auth-url", calendarHandler.AuthURL)
	calendar.POST("/connect", calendarHandler.Connect)
	calendar.POST("/disconnect", calendarHandler.Disconnect)
	calendar.GET("/status", calendarHandler.Status)

	bookings := api.Group("/bookings")
	bookings.GET("/view", bookingHandler.View)
	bookings.PUT("/filters", bookingHandler.UpdateFilters)
	bookings.GET("/disciplines", bookingHandler.Disciplines)
	bookings.GET("/availability", bookingHandler.Availability)
	bookings.POST("/slots/:time/select", bookingHandler.SelectSlot)
	bookings.POST("/new", bookingHandler.NewBooking)
	bookings.POST("/events/:id/edit", bookingHandler.EditEvent)
	bookings.PATCH("/form", bookingHandler.UpdateForm)
	bookings.POST("/form/save", bookingHandler.SaveForm)
	bookings.POST("/form/cancel", bookingHandler.CancelForm)
	bookings.DELETE("/events/:id", bookingHandler.DeleteEvent)
	bookings.GET("/export", bookingHandler.Export)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "credential_store", cfg.Credentials.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown failed", zap.Error(err))
	}
	registry.Shutdown()
	if err := renewer.Shutdown(); err != nil {
		logr.Warn("renewer shutdown failed", zap.Error(err))
	}
	return nil
}

func newCredentialStore(ctx context.Context, cfg *config.Config, sealer *secure.Sealer, redisClient *redis.Client, db *sqlx.DB, metrics *service.MetricsService) (service.CredentialStore, error) {
	switch cfg.Credentials.Store {
	case config.CredentialStoreRedis:
		return repository.NewRedisCredentialStore(redisClient, sealer, "", 0), nil
	case config.CredentialStorePostgres:
		store := repository.NewPostgresCredentialStore(db, sealer, metrics)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare credential table: %w", err)
		}
		return store, nil
	case config.CredentialStoreMemory, "":
		return repository.NewMemoryCredentialStore(sealer), nil
	default:
		return nil, fmt.Errorf("unknown credential store %q", cfg.Credentials.Store)
	}
}
