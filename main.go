package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sessionguard/config"
	"sessionguard/handler"
	"sessionguard/middleware"
	"sessionguard/repository"
	"sessionguard/services"
	"sessionguard/utils"
)

func init() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil && os.Getenv("GO_ENV") != "test" {
		log.Printf("No .env file loaded: %v", err)
	}

	requiredEnvVars := []string{
		"MONGO_URI",
		"MONGO_DB",
		"REDIS_URL",
		"JWT_SECRET_KEY",
		"JWT_REFRESH_SECRET_KEY",
		"FINGERPRINT_SALT",
	}

	for _, envVar := range requiredEnvVars {
		if os.Getenv(envVar) == "" && os.Getenv("GO_ENV") != "test" {
			log.Fatalf("Required environment variable %s is not set", envVar)
		}
	}
}

func connectMongo(cfg config.MongoConfig) *mongo.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	return client
}

func setupRouter(authority *services.SessionAuthority, emitter *services.AuditEmitter, cfg config.ServerConfig) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestSizeLimiter(cfg.MaxRequestSize))

	router.GET("/health", handler.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := router.Group("/api")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/login", func(c *gin.Context) {
				handler.LoginHandler(c, authority)
			})
			auth.POST("/refresh", func(c *gin.Context) {
				handler.RefreshTokenHandler(c, authority)
			})
			// Logout verifies its own token so an expired one can still be
			// a successful no-op.
			auth.POST("/logout", func(c *gin.Context) {
				handler.LogoutHandler(c, authority)
			})
		}
	}

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(authority))
	{
		protected.GET("/auth/validate", handler.ValidateHandler)

		sessions := protected.Group("/sessions")
		{
			sessions.GET("", func(c *gin.Context) {
				handler.GetActiveSessions(c, authority)
			})
			sessions.GET("/activity", func(c *gin.Context) {
				handler.SessionActivityHandler(c, emitter)
			})
			sessions.POST("/logout-all", func(c *gin.Context) {
				handler.LogoutAllHandler(c, authority)
			})
			sessions.DELETE("/:sessionId", func(c *gin.Context) {
				handler.RevokeSessionHandler(c, authority)
			})
		}
	}

	return router
}

func main() {
	utils.InitValidator()
	cfg := config.Load()

	mongoClient := connectMongo(cfg.Mongo)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting MongoDB: %v", err)
		}
	}()

	sessionStore, err := repository.NewRedisSessionStore(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	defer sessionStore.Close()

	revocationRegistry, err := repository.NewRedisRevocationRegistry(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to initialize revocation registry: %v", err)
	}
	defer revocationRegistry.Close()

	codec, err := services.NewTokenCodec(cfg.Tokens)
	if err != nil {
		log.Fatalf("Failed to initialize token codec: %v", err)
	}

	userRepo := repository.GetUserRepo(mongoClient, cfg.Mongo.Database, cfg.Mongo.UsersCollection)
	auditRepo := repository.GetAuditRepo(mongoClient, cfg.Mongo.Database, cfg.Mongo.AuditCollection)
	emitter := services.NewAuditEmitter(auditRepo, cfg.Session.StoreTimeout)
	fingerprints := services.NewFingerprinter(cfg.Session.FingerprintSalt)

	authority := services.NewSessionAuthority(
		sessionStore,
		revocationRegistry,
		userRepo,
		codec,
		fingerprints,
		emitter,
		cfg.Session,
	)

	stopMetrics := utils.StartSystemMetrics(30 * time.Second)
	defer stopMetrics()

	router := setupRouter(authority, emitter, cfg.Server)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	sig := <-signalChan
	log.Printf("Caught signal %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server shutdown complete")
}
