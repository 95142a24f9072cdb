package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Moonlightintherain/q/cmd/db"
	"github.com/Moonlightintherain/q/internal/crash"
	"github.com/Moonlightintherain/q/internal/gifts"
	"github.com/Moonlightintherain/q/internal/hub"
	"github.com/Moonlightintherain/q/internal/ledger"
	"github.com/Moonlightintherain/q/internal/middleware"
	"github.com/Moonlightintherain/q/internal/roulette"
	"github.com/Moonlightintherain/q/internal/service"
	"github.com/Moonlightintherain/q/pkg/logger"
	"github.com/Moonlightintherain/q/pkg/redis"
	"github.com/Moonlightintherain/q/pkg/telegram"
	"github.com/Moonlightintherain/q/pkg/ton"
)

const apiPrefix = "api/"

func Start() {
	gin.DisableConsoleColor()

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.BlockBadActorsMiddleware())
	fromTelegram := router.Group("/", middleware.ValidateTelegramInitDataMiddleware())
	authorized := fromTelegram.Group("/", middleware.AuthMiddleware(db.DB))

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "redis:6379"
	}
	redisService := redis.NewRedisService(redisAddr, os.Getenv("REDIS_PASSWORD"))

	bank := ledger.New(db.DB)
	giftService := gifts.NewService(db.DB, redisService)

	crashEngine := crash.NewEngine(crash.DefaultConfig(), bank, hub.New())
	rouletteEngine := roulette.NewEngine(roulette.DefaultConfig(), bank, hub.New())

	// Game loops run for the lifetime of the process.
	go crashEngine.Supervise()
	rouletteEngine.Reset()

	svc := service.New(bank, giftService, crashEngine, rouletteEngine,
		ton.NewClient(), telegram.NewNotifier())

	// router
	{
		// wallet watcher callback, authenticated by network topology
		router.POST(apiPrefix+"payments/deposit", svc.DepositCallback)
	}

	// fromTelegram
	{
		fromTelegram.GET(apiPrefix+"ws/crash/live", svc.CrashStream)
		fromTelegram.GET(apiPrefix+"ws/roulette/live", svc.RouletteStream)

		// auth
		fromTelegram.GET(apiPrefix+"users/auth", svc.Auth)
	}

	// authorized
	{
		// users
		authorized.GET(apiPrefix+"users", svc.GetUser)
		authorized.GET(apiPrefix+"users/transactions", svc.GetTransactions)
		authorized.GET(apiPrefix+"users/gifts", svc.GetUserGifts)

		// gifts
		authorized.GET(apiPrefix+"gifts/collections", svc.GetGiftCollections)

		// payment system
		authorized.POST(apiPrefix+"payments/withdrawal", svc.Withdraw)

		// crash
		authorized.POST(apiPrefix+"games/crash/place", svc.PlaceCrashBet)
		authorized.POST(apiPrefix+"games/crash/cashout", svc.CrashCashout)
		authorized.GET(apiPrefix+"games/crash/history", svc.GetCrashHistory)

		// roulette
		authorized.POST(apiPrefix+"games/roulette/place", svc.PlaceRouletteBet)
		authorized.GET(apiPrefix+"games/roulette/history", svc.GetRouletteHistory)
	}

	srv := &http.Server{
		Addr:    ":8080",
		Handler: router.Handler(),
	}

	go func() {
		// service connections
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with
	// a timeout of 5 seconds.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server Shutdown: %v", err)
	}

	<-ctx.Done()
	logger.Info("Server exiting")
}
