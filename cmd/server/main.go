package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"    // Echo web framework
	"github.com/labstack/gommon/log" // leveled logger shared with echo
	"github.com/redis/go-redis/v9"   // cache + rate limit backend

	"github.com/iliyamo/seat-occupancy/internal/config"
	"github.com/iliyamo/seat-occupancy/internal/database"
	"github.com/iliyamo/seat-occupancy/internal/handler"
	"github.com/iliyamo/seat-occupancy/internal/metrics"
	"github.com/iliyamo/seat-occupancy/internal/middleware"
	"github.com/iliyamo/seat-occupancy/internal/occupancy"
	"github.com/iliyamo/seat-occupancy/internal/queue"
	"github.com/iliyamo/seat-occupancy/internal/repository"
	"github.com/iliyamo/seat-occupancy/internal/router"
	queue_publisher "github.com/iliyamo/seat-occupancy/internal/service"
	"github.com/iliyamo/seat-occupancy/internal/session"
)

func main() {
	cfg := config.Load() // Load environment config

	lvl, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(lvl)

	layout, err := config.LoadLayout(cfg.SeatLayoutFile)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	listeners := occupancy.Listeners{m}

	// Report archive (optional)
	var db *sql.DB
	var reports *repository.ReportRepo
	if cfg.DBEnabled {
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("database: %v", err)
		}
		reports = repository.NewReportRepo(db)
	}

	// Transition events (optional)
	if cfg.QueueEnabled {
		pub := queue_publisher.NewTransitionPublisher(cfg.RabbitMQURL, 256)
		listeners = append(listeners, pub)
		go pub.Run(ctx)
		go queue.StartTransitionAudit(ctx, cfg.RabbitMQURL, "logs")
	}

	opts := session.Options{
		MinConfidence: cfg.MinConfidence,
		FrameBuffer:   cfg.FrameBuffer,
		MaxClockSkew:  cfg.MaxClockSkew,
		Listener:      listeners,
	}
	if reports != nil {
		opts.Archiver = reports
	}
	// Monitors outlive the signal; EndAll closes and drains them.
	sessions := session.NewManager(context.WithoutCancel(ctx), opts)
	m.RegisterSessionGauges(
		func() float64 { return float64(sessions.Active()) },
		func() float64 { return float64(sessions.OccupiedSeats()) },
	)

	if cfg.QueueEnabled {
		go queue.StartDetectionsConsumer(ctx, cfg.RabbitMQURL, sessions)
	}

	rdb := config.NewRedisClient() // nil when Redis is disabled or unreachable
	cacheCfg := config.LoadCacheConfig()

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Logger.SetLevel(lvl)

	sh := &handler.SessionHandler{
		Sessions: sessions,
		Layout:   layout,
		Metrics:  m,
		AfterArchive: func(ctx context.Context) {
			if err := middleware.PurgeCache(ctx, rdb, cacheCfg.Prefix); err != nil {
				log.Warnf("cache: purge after archive: %v", err)
			}
		},
	}
	rh := &handler.ReportHandler{}
	if reports != nil {
		rh.Store = reports
	}

	router.RegisterRoutes(e, m.Handler())
	router.RegisterSessions(e, sh, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterReports(e, rh, middleware.NewRedisCache(cacheCfg, rdb))

	addr := ":" + cfg.Port
	log.Infof("listening on %s (env=%s, seats in default layout=%d)", addr, cfg.Env, len(layout.Seats))
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
	// Archive whatever is still open before the database goes away.
	sessions.EndAll(shutdownCtx)

	closeRedis(rdb)
	if db != nil {
		_ = db.Close()
	}
	log.Info("server stopped")
}

func closeRedis(rdb *redis.Client) {
	if rdb == nil {
		return
	}
	if err := rdb.Close(); err != nil {
		log.Warnf("redis close: %v", err)
	}
}
