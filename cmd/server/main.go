package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arnavshah/shift-offer-api/internal/config"
	"github.com/arnavshah/shift-offer-api/pkg/auth"
	"github.com/arnavshah/shift-offer-api/pkg/database"
	"github.com/arnavshah/shift-offer-api/pkg/handlers"
	"github.com/arnavshah/shift-offer-api/pkg/models"
	"github.com/arnavshah/shift-offer-api/pkg/notify"
	"github.com/arnavshah/shift-offer-api/pkg/policy"
	"github.com/arnavshah/shift-offer-api/pkg/queue"
	"github.com/arnavshah/shift-offer-api/pkg/store"
)

// stores groups the five store contracts one backend satisfies.
type stores interface {
	store.ShiftStore
	store.StaffDirectory
	store.OfferStore
	store.JobStore
	store.EventStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if cfg.GinMode == gin.DebugMode {
		logger, err = zap.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var db *gorm.DB
	var st stores
	if cfg.DemoMode {
		mem := store.NewMemory()
		seedDemo(mem)
		st = mem
		logger.Warn("running in demo mode with in-memory data")
	} else {
		db = database.InitDB()
		if err := auth.EnsureAdminExists(db); err != nil {
			logger.Fatal("failed to bootstrap admin user", zap.Error(err))
		}
		st = database.NewStore(db)
	}

	templates, err := notify.NewTemplateStore()
	if err != nil {
		logger.Fatal("failed to build template store", zap.Error(err))
	}
	if cfg.TemplatesPath != "" {
		if err := templates.LoadFile(cfg.TemplatesPath); err != nil {
			logger.Fatal("failed to load template overrides", zap.Error(err))
		}
	}

	dispatcher := notify.NewDispatcher(st, st, st, templates, cfg.Channels, cfg.Supervisor, logger)

	senders := map[models.Channel]notify.Sender{
		models.ChannelEmail: &notify.LogSender{Logger: logger},
		models.ChannelSMS:   &notify.LogSender{Logger: logger},
	}
	if cfg.WebhookURL != "" {
		senders[models.ChannelPush] = notify.NewWebhookSender(cfg.WebhookURL)
	} else {
		senders[models.ChannelPush] = &notify.LogSender{Logger: logger}
	}

	pool := notify.NewWorkerPool(st, senders,
		notify.RetryPolicy{Base: cfg.RetryBase, Factor: cfg.RetryFactor, MaxAttempts: cfg.RetryMaxAttempts},
		cfg.Workers, cfg.PollInterval, logger)

	manager := queue.NewManager(st, st, st, st, policy.New(cfg.Weights), dispatcher, cfg.ResponseWindow, logger)
	sweeper := queue.NewSweeper(manager, cfg.SweepInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx)
	go pool.Run(ctx)

	authSvc := auth.NewService(cfg.JWTSecret, cfg.APIMasterSecret, cfg.TokenTTL)
	h := &handlers.Handler{DB: db, Queue: manager, Auth: authSvc}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Shift Offer Queue API",
			"version": "1.2.0",
		})
	})

	if db != nil {
		r.POST("/admin/login", h.Login)
		admin := r.Group("/admin")
		admin.Use(h.AuthMiddleware())
		{
			admin.POST("/keys", h.GenerateKey)
			admin.GET("/keys", h.ListKeys)
			admin.PUT("/keys/:id", h.UpdateKeyLimit)
			admin.DELETE("/keys/:id", h.RevokeKey)
			admin.GET("/usage/:id", h.GetUsage)
		}
	}

	api := r.Group("/api")
	api.Use(h.APIKeyMiddleware())
	{
		api.POST("/queue/open-shift", h.OpenShift)
		api.GET("/queue/status/:shift_id", h.QueueStatus)
		api.POST("/queue/respond", h.Respond)
		api.POST("/queue/cancel-shift", h.CancelShift)
		api.GET("/queue/events/:shift_id", h.ShiftEvents)
		api.GET("/usage", h.GetMyUsage)
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("could not run server", zap.Error(err))
	}
	logger.Info("server stopped")
}

// seedDemo loads a small ward roster so the queue can be exercised without a
// database.
func seedDemo(mem *store.Memory) {
	start := time.Now().Add(4 * time.Hour).Truncate(time.Hour)
	mem.SeedShift(models.Shift{
		ID:             "shift-icu-night",
		Department:     "ICU",
		Start:          start,
		End:            start.Add(8 * time.Hour),
		RequiredStaff:  2,
		RemainingSlots: 2,
		Status:         models.ShiftOpen,
	})
	mem.SeedStaff(models.StaffMember{
		ID: "staff-chen", Name: "L. Chen", Department: "ICU",
		MaxHours: 40, SeniorityYears: 8, DistanceKM: 3,
		Contacts: map[models.Channel]string{models.ChannelPush: "tok-chen", models.ChannelEmail: "chen@example.org"},
	})
	mem.SeedStaff(models.StaffMember{
		ID: "staff-okafor", Name: "A. Okafor", Department: "ICU",
		MaxHours: 40, SeniorityYears: 4, DistanceKM: 12,
		Contacts: map[models.Channel]string{models.ChannelEmail: "okafor@example.org"},
	})
	mem.SeedStaff(models.StaffMember{
		ID: "staff-ruiz", Name: "M. Ruiz", Department: "ICU",
		MaxHours: 20, SeniorityYears: 11, DistanceKM: 6,
		Contacts: map[models.Channel]string{models.ChannelSMS: "+15550102"},
	})
}
