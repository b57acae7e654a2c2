// api/routes/router.go
package routes

import (
	"context"
	"net/http"
	"time"

	"seatlock/internal/bookings"
	"seatlock/internal/broadcast"
	"seatlock/internal/catalog"
	"seatlock/internal/leases"
	"seatlock/internal/realtime"
	"seatlock/internal/shared/config"
	"seatlock/internal/shared/database"
	"seatlock/pkg/cache"
	"seatlock/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies and the background work they need
type Router struct {
	config *config.Config
	db     *database.DB

	cacheService   cache.Service
	catalogService catalog.Service
	hub            *broadcast.Hub
	relay          *broadcast.RedisRelay
	manager        *leases.Manager
	sweeper        *leases.Sweeper
	publisher      bookings.Publisher
	leaseBackend   string
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB) *Router {
	return &Router{
		config: cfg,
		db:     db,
	}
}

// SetupRoutes wires the seat core and configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupCore()

	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupShowRoutes(api)
		r.setupRealtimeRoutes(api)
		r.setupBookingRoutes(api)
	}
}

// Start launches the expiry sweeper and, when configured, the redis relay
func (r *Router) Start(ctx context.Context) error {
	if r.relay != nil {
		go func() {
			if err := r.relay.Run(ctx); err != nil {
				logger.GetDefault().Error("show event relay stopped", "error", err)
			}
		}()
	}
	return r.sweeper.Start()
}

// Stop halts the sweeper and flushes the booking event producer
func (r *Router) Stop() {
	if err := r.sweeper.Stop(); err != nil {
		logger.GetDefault().Error("failed to stop lease sweeper", "error", err)
	}
	if err := r.publisher.Close(); err != nil {
		logger.GetDefault().Error("failed to close booking publisher", "error", err)
	}
}

// setupCore builds the lease store, hub, manager and event publisher shared by every route group
func (r *Router) setupCore() {
	appLogger := logger.GetDefault()
	redisClient := r.db.GetRedisClient()

	if redisClient != nil {
		r.cacheService = cache.NewService(redisClient)
	}

	r.catalogService = catalog.NewService(catalog.NewRepository(r.db.GetPostgreSQL()))
	if r.cacheService != nil {
		r.catalogService.SetCacheService(r.cacheService)
	}

	var store leases.Store
	if r.config.UsesRedisLeases() && redisClient != nil {
		redisStore := leases.NewRedisStore(redisClient)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := redisStore.PreloadScripts(ctx); err != nil {
			appLogger.Warn("failed to preload lease scripts, loading on first use", "error", err)
		}
		cancel()
		store = redisStore
		r.leaseBackend = "redis"
	} else {
		store = leases.NewMemoryStore()
		r.leaseBackend = "memory"
	}

	r.hub = broadcast.NewHub(broadcast.DefaultBuffer)
	var broadcaster leases.Broadcaster = r.hub
	if r.config.Lease.RelayEnabled && redisClient != nil {
		r.relay = broadcast.NewRedisRelay(redisClient, r.hub)
		broadcaster = r.relay
	}

	r.manager = leases.NewManager(store, broadcaster, r.config.Lease.Duration)
	r.sweeper = leases.NewSweeper(r.manager, r.config.Lease.SweepInterval)

	r.publisher = bookings.NewLogPublisher()
	if r.config.Kafka.Enabled {
		publisher, err := bookings.NewKafkaPublisher(r.config.Kafka)
		if err != nil {
			appLogger.Error("failed to create Kafka publisher, booking events will only be logged", "error", err)
		} else {
			r.publisher = publisher
		}
	}

	appLogger.Info("seat core initialized",
		"lease_backend", r.leaseBackend,
		"lease_duration", r.config.Lease.Duration.String(),
		"relay", r.relay != nil,
		"kafka", r.config.Kafka.Enabled,
	)
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "seatlock",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":        "healthy",
			"timestamp":     time.Now(),
			"service":       "seatlock",
			"lease_backend": r.leaseBackend,
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}

// setupShowRoutes configures the read-only catalog routes
func (r *Router) setupShowRoutes(rg *gin.RouterGroup) {
	catalog.SetupShowRoutes(rg, catalog.NewController(r.catalogService))
}

// setupRealtimeRoutes configures the seat map websocket
func (r *Router) setupRealtimeRoutes(rg *gin.RouterGroup) {
	handler := realtime.NewHandler(r.manager, r.hub, r.catalogService, r.config.Realtime)
	realtime.SetupRealtimeRoutes(rg, handler, r.config)
}

// setupBookingRoutes configures booking and show administration routes
func (r *Router) setupBookingRoutes(rg *gin.RouterGroup) {
	bookingRepo := bookings.NewRepository(r.db.GetPostgreSQL())
	bookingService := bookings.NewService(bookingRepo, r.catalogService, r.manager, r.publisher)
	if r.cacheService != nil {
		bookingService.SetCacheService(r.cacheService)
	}

	bookings.SetupBookingRoutes(rg, bookings.NewController(bookingService), r.config)
}
