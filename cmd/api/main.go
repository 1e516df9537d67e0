package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fairplay/roundhouse/internal/config"
	"github.com/fairplay/roundhouse/internal/fairness"
	"github.com/fairplay/roundhouse/internal/handlers"
	"github.com/fairplay/roundhouse/internal/jobs"
	"github.com/fairplay/roundhouse/internal/logger"
	"github.com/fairplay/roundhouse/internal/services"
	"github.com/fairplay/roundhouse/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()
	zlog.Info("database ready", zap.String("dialect", string(st.Dialect())))

	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(ctx, cfg)
		if err != nil {
			zlog.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisService.Close()
	} else {
		zlog.Info("REDIS_URL not set, running without cache and rate limits")
	}

	jwtService := services.NewJWTService(cfg)
	hub := handlers.NewWebSocketHub(zlog)

	feed := services.NewAnchorFeed(st, fairness.NewGenerator(cfg.SeedLength), redisService, cfg.AnchorURL, zlog)
	pool := services.NewNumberPool(st)
	ledger := services.NewLedgerService(st, cfg.OpeningBalance, zlog)

	rounds := services.NewRoundService(st, pool, ledger, redisService, zlog)
	rounds.SetBroadcaster(hub)
	engine := services.NewSettlementEngine(st, pool, ledger, redisService, zlog)
	engine.SetBroadcaster(hub)

	manager := jobs.New(zlog)
	manager.Register(hub)
	manager.Register(jobs.Every("anchor-poll", cfg.AnchorInterval, zlog, feed.Poll))
	manager.Register(jobs.Every("finalize-sweep", cfg.SweepInterval, zlog, func(ctx context.Context) error {
		n, err := engine.FinalizeDue(ctx, time.Now())
		if n > 0 {
			zlog.Info("finalized due rounds", zap.Int("count", n))
		}
		return err
	}))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := &handlers.Router{
		Game:      handlers.NewGameHandler(rounds, engine, feed, zlog),
		User:      handlers.NewUserHandler(ledger, zlog),
		WebSocket: handlers.NewWebSocketHandler(hub, ledger, zlog),
		JWT:       jwtService,
		Redis:     redisService,
		Health:    st.Ping,
		Log:       zlog,
	}
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Start(gctx)
	})
	g.Go(func() error {
		zlog.Info("server starting", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zlog.Error("server stopped", zap.Error(err))
	}
}
