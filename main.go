package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"npcheck/config"
	"npcheck/handlers"
	"npcheck/messaging"
	"npcheck/middleware"
	"npcheck/repository"
	"npcheck/scheduler"
	"npcheck/scraper"
	"npcheck/services"
	"npcheck/sites"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer closeStore()

	rates := services.NewRateService(store, &services.FrankfurterSource{
		BaseURL: cfg.ExchangeAPIURL,
		Client:  &http.Client{Timeout: cfg.RequestTimeout},
	}, cfg.RateTTL, cfg.RateRetryAfter, cfg.FallbackRate)

	fetcher := scraper.NewFetcher(scraper.FetcherConfig{
		AllowedDomains: sites.Hosts(),
		UserAgent:      cfg.UserAgent,
		Timeout:        cfg.RequestTimeout,
		PerSecond:      cfg.FetchPerSecond,
		Burst:          cfg.FetchBurst,
	})
	altPrices := services.NewAlternatePriceService(fetcher, rates, cfg.Debug)

	router := messaging.NewRouter()
	altPrices.Register(router)
	bus := messaging.NewLocalBus(router)
	bus.Subscribe(messaging.ActionProducts, func(m messaging.Message) {
		log.Printf("Received npcProducts with %d product(s)", len(m.(messaging.ProductsEvent).Products))
	})

	refresher, err := scheduler.NewRateRefresher(rates, cfg.RateRefreshCron, cfg.RequestTimeout)
	if err != nil {
		log.Fatalf("Failed to create rate refresher: %v", err)
	}
	refresher.Start()
	defer refresher.Stop()

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.RateLimit(cfg.RequestsPerSec))
	handlers.NewHandlers(router, bus, rates).Routes(r)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("🌐 Server starting on %s", cfg.Addr())
	log.Printf("📋 API:")
	log.Printf("   GET  /health - Health check")
	log.Printf("   GET  /api/v1/rate - Cached GBP to ILS rate")
	log.Printf("   POST %s - Extension messages", messaging.MessagesPath)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}
