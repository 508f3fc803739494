// main.go
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

	"github.com/carecycle/carecycle-api/config"
	"github.com/carecycle/carecycle-api/endpoint"
	"github.com/carecycle/carecycle-api/middleware"
	"github.com/carecycle/carecycle-api/model"
	"github.com/carecycle/carecycle-api/scheduler"
	"github.com/carecycle/carecycle-api/util"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load the configuration
	cfg := config.LoadConfig()

	db, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}
	if err := db.AutoMigrate(
		&model.Patient{},
		&model.CareItem{},
		&model.PatientSchedule{},
		&model.ScheduleHistory{},
		&model.User{},
		&model.Role{},
		&model.Session{},
		&model.AuditLog{},
	); err != nil {
		log.Fatalf("Error migrating database: %v", err)
	}
	if err := model.SeedRoles(db); err != nil {
		log.Fatalf("Error seeding roles: %v", err)
	}

	util.SetAuditLoggerDB(db)
	if err := util.InitGeoIP(os.Getenv("GEOIP_DB_PATH")); err != nil {
		log.Printf("GeoIP disabled: %v", err)
	}
	defer util.CloseGeoIP()

	if _, err := config.ConnectRedis(); err != nil {
		log.Printf("Redis unavailable, rate limiting and realtime events disabled: %v", err)
	}

	// Set Gin mode from config
	gin.SetMode(cfg.GinMode)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.DatabaseMiddleware(db))
	router.Use(middleware.EndpointCallLogger())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Welcome to %s!", cfg.AppName),
		})
	})

	router.POST("/login", middleware.RateLimiter(middleware.RateLimitConfig{}), endpoint.Login)
	router.POST("/signup", middleware.RateLimiter(middleware.RateLimitConfig{}), endpoint.Signup)
	router.DELETE("/logout", endpoint.Logout)
	router.GET("/token/validate", endpoint.ValidateToken)
	router.POST("/patient", endpoint.CreatePatient)

	protected := router.Group("", middleware.ValidateLoginToken())
	{
		protected.GET("/patient", endpoint.ListPatients)
		protected.GET("/patient/:id", endpoint.GetPatientInfo)
		protected.PATCH("/patient/:id", endpoint.UpdatePatient)
		protected.DELETE("/patient/:id", endpoint.DeletePatient)

		protected.GET("/item", endpoint.ListCareItems)
		protected.POST("/item", endpoint.CreateCareItem)
		protected.GET("/item/:id", endpoint.GetCareItemInfo)
		protected.PATCH("/item/:id", endpoint.UpdateCareItem)
		protected.DELETE("/item/:id", endpoint.DeleteCareItem)

		protected.GET("/schedule", endpoint.ListSchedules)
		protected.POST("/schedule", endpoint.CreateSchedule)
		protected.GET("/schedule/today", endpoint.TodaySchedule)
		protected.PATCH("/schedule/:id", endpoint.UpdateSchedule)
		protected.GET("/schedule/:id/history", endpoint.GetScheduleHistory)
		protected.POST("/schedule/:id/complete", endpoint.CompleteOccurrence)
		protected.POST("/schedule/:id/skip", endpoint.SkipOccurrence)

		protected.GET("/dashboard/stats", endpoint.GetDashboardStats)
		protected.GET("/dashboard/stream", endpoint.StreamDashboardEvents)

		protected.PATCH("/user", endpoint.UpdateUser)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Occurrence worker runs until shutdown.
	worker := scheduler.New(db, cfg)
	go worker.Run(ctx)

	address := fmt.Sprintf(":%d", cfg.AppPort)
	srv := &http.Server{Addr: address, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("error starting server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
