package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/app"
	"rollcall/internal/config"
	"rollcall/internal/flusher"
	"rollcall/internal/handler"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/model"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	core, err := app.Build(cfg, nil, log.Default())
	if err != nil {
		return err
	}
	defer core.Close()

	if err := core.EnableMetrics(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		rdb := store.NewRedis(cfg.RedisAddr, "")
		defer rdb.Close()
		q = queue.NewRedisQueue(rdb.Client, "rollcall:events")
	} else {
		mem := queue.NewInMemory(64)
		q = mem
		// no separate worker shares an in-memory queue; flush in-process
		events, err := mem.Consume(ctx)
		if err != nil {
			return err
		}
		f := &flusher.Flusher{Sync: core.Engine, Interval: cfg.FlushInterval, Logger: log.Default()}
		go func() { _ = f.Run(ctx, events) }()
	}

	core.Engine.OnQueued = func(p model.Payload) {
		msg, err := queue.NewMessage(queue.TypeSubmissionQueued, queue.SubmissionQueued{
			ClassName: p.ClassName,
			Section:   p.Section,
			Teacher:   p.Teacher,
			Date:      p.Date,
		})
		if err != nil {
			log.Printf("encode queue event: %v", err)
			return
		}
		pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := q.Publish(pubCtx, msg); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		online := core.Oracle.Connected(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"store":   cfg.StoreBackend,
			"online":  online,
			"pending": len(core.Engine.Pending(c.Request.Context())),
		})
	})

	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	h := &handler.Handler{
		Registry:   core.Registry,
		Roster:     core.Roster,
		Queue:      core.Engine,
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
	}
	h.Routes(r, limiter.GinMiddleware(handler.TeacherKey))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
