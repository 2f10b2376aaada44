package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func main() {
	logger := log.New(os.Stdout, "habitcards ", log.LstdFlags|log.Lmicroseconds)
	ctx := context.Background()

	// optional .env file; real environment variables take precedence
	_ = godotenv.Load()
	cfg := loadConfig()

	// storage is selected once at startup: Redis when configured, otherwise
	// an in-process map that does not survive restarts
	var kv KV
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("could not connect to redis (%s): %v", cfg.RedisAddr, err)
		}
		kv = NewRedisKV(redisClient)
		logger.Printf("using redis storage at %s", cfg.RedisAddr)
	} else {
		kv = NewMemoryKV()
		logger.Printf("REDIS_ADDR not set, using in-memory storage")
	}
	store := NewCollectionStore(kv)

	// the provider is resolved once and cached for the process lifetime
	provider, err := resolveProvider(cfg)
	if err != nil {
		logger.Printf("warning: %v, /api/parse will fail", err)
	} else {
		logger.Printf("using AI provider %s", provider.Name())
	}

	handler := NewHandler(store, provider, logger, cfg.RedisAddr != "")

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      loggingMiddleware(logger)(newRouter(handler, cfg.APIKey)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second, // parse requests wait on the AI provider
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Printf("server is listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("could not listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	logger.Println("server is shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}

	logger.Println("server stopped")
}

// newRouter wires the route table: the open metadata and metrics endpoints,
// plus the auth-gated parse endpoint and one CRUD route group per collection.
func newRouter(handler *Handler, apiKey string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", handler.handleIndex)
	mux.Handle("/metrics", metricsHandler())

	auth := authMiddleware(apiKey)
	mux.Handle("/api/parse", auth(http.HandlerFunc(handler.handleParse)))
	for _, name := range collections {
		mux.Handle("/api/"+name, auth(handler.collectionHandler(name)))
		mux.Handle("/api/"+name+"/", auth(handler.collectionItemHandler(name)))
	}
	return mux
}
