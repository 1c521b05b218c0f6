//	@title			Tierpix API
//	@version		1.0
//	@description	Tiered media-access service: upload images, receive tier-sized thumbnails and expiring binary links.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tierpix/service/internal/auth"
	"github.com/tierpix/service/internal/codec"
	"github.com/tierpix/service/internal/config"
	"github.com/tierpix/service/internal/db"
	"github.com/tierpix/service/internal/image"
	"github.com/tierpix/service/internal/link"
	appMiddleware "github.com/tierpix/service/internal/middleware"
	"github.com/tierpix/service/internal/storage"
	"github.com/tierpix/service/internal/tier"
	"github.com/tierpix/service/internal/user"
)

func main() {
	cfg := config.Load()

	pool, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	store, err := storage.NewMinioStorage(
		cfg.StorageEndpoint,
		cfg.StorageAccessKey,
		cfg.StorageSecretKey,
		cfg.StorageBucket,
		cfg.StorageUseSSL,
	)
	if err != nil {
		log.Fatalf("object storage init failed: %v", err)
	}

	// Wire dependencies: repository → service → handler
	tierRepo := tier.NewRepository(pool)
	catalog := tier.NewCatalog(tierRepo)

	userRepo := user.NewRepository(pool)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc, catalog)

	authSvc := auth.NewService(userSvc, catalog, cfg)
	authHandler := auth.NewHandler(authSvc)

	if err := authSvc.BootstrapAdmin(context.Background()); err != nil {
		log.Fatalf("admin bootstrap failed: %v", err)
	}

	imageRepo := image.NewRepository(pool)
	reconciler := image.NewReconciler(imageRepo, store, codec.NewVipsCodec(), cfg.CodecConcurrency)
	imageSvc := image.NewService(imageRepo, store, reconciler)

	linkRepo := link.NewRepository(pool)
	linkMgr := link.NewManager(linkRepo)

	urls := image.NewURLBuilder(cfg.PublicBaseURL)
	imageHandler := image.NewHandler(imageSvc, userSvc, catalog, linkMgr, urls)
	linkHandler := link.NewHandler(linkMgr, imageSvc, userSvc, catalog, urls)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI available at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Everything below requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", userHandler.GetMe)
				r.Patch("/me", userHandler.UpdateMe)
			})

			r.Route("/images", func(r chi.Router) {
				r.Post("/", imageHandler.Create)
				r.Get("/", imageHandler.List)

				r.Route("/{token}", func(r chi.Router) {
					r.Get("/", imageHandler.GetOriginal)
					r.Put("/", imageHandler.Replace)
					r.Delete("/", imageHandler.Delete)
					r.Get("/generate", linkHandler.Generate)
				})
			})

			r.Get("/thumbnails/{token}", imageHandler.GetThumbnail)
			r.Get("/binary/{token}", linkHandler.GetBinary)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("server listening on :%s (env=%s)", cfg.Port, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("server stopped")
}
