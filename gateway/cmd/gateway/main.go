package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/checkout/gateway/internal/config"
	"github.com/Skotchmaster/checkout/gateway/internal/httpserver"
	"github.com/Skotchmaster/checkout/gateway/internal/middleware"
	"github.com/Skotchmaster/checkout/pkg/logging"
)

func main() {
	if err := godotenv.Load("gateway/.env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := config.Load()

	logger := logging.New(cfg.LogLevel).With("service", "gateway")
	slog.SetDefault(logger)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	csrf := middleware.DefaultCSRFConfig()
	csrf.Secure = cfg.SecureCookies
	csrf.SkipPaths = []string{"/health/live", "/health/ready", "/api/v1/payments/webhook"}

	if err := httpserver.Register(e, &httpserver.Deps{
		CartURL:    cfg.CartURL,
		OrderURL:   cfg.OrderURL,
		JWTSecret:  cfg.JWTSecret,
		CSRFConfig: csrf,
		Logger:     logger,
	}); err != nil {
		log.Fatal(err)
	}

	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
