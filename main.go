package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"libris-backend/internal/books"
	"libris-backend/internal/loans"
	"libris-backend/internal/platform/auth"
	"libris-backend/internal/platform/cache"
	"libris-backend/internal/platform/db"
	"libris-backend/internal/users"
)

func main() {
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		fmt.Println("Usage: set mode to dev or release in config/config.yaml")
		return
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	cch := cache.New(cfg.Cache.RedisAddr)
	defer cch.Close()

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		panic(err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS is only needed while the frontend dev server runs separately.
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.Static("/uploads", cfg.Uploads.Dir)

	authSvc := auth.NewService(conn, cfg.Auth.JWTSecret, cfg.Auth.AccessTTLMin, cfg.Auth.RefreshTTLDays)
	authn := auth.RequireAuth(authSvc.Secret())
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleLibrarian)

	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, authSvc, authn)
	books.RegisterRoutes(api, books.NewService(conn, cch, cfg.Cache.ListTTLSeconds, cfg.Cache.RankingTTLSeconds), cfg.Uploads, authn, staff)
	loans.RegisterRoutes(api, loans.NewService(conn), authn)
	users.RegisterRoutes(api, users.NewService(conn), authn, staff)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
