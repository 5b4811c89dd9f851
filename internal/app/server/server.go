package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"hrcore/internal/domain/auth"
	"hrcore/internal/domain/directory"
	"hrcore/internal/domain/leave"
	"hrcore/internal/domain/ledger"
	"hrcore/internal/domain/notifications"
	"hrcore/internal/platform/config"
	"hrcore/internal/platform/db"
	"hrcore/internal/platform/email"
	"hrcore/internal/platform/jobs"
	adminhandler "hrcore/internal/transport/http/handlers/admin"
	authhandler "hrcore/internal/transport/http/handlers/auth"
	balancehandler "hrcore/internal/transport/http/handlers/balance"
	employeeshandler "hrcore/internal/transport/http/handlers/employees"
	leaveshandler "hrcore/internal/transport/http/handlers/leaves"
	notificationshandler "hrcore/internal/transport/http/handlers/notifications"
	"hrcore/internal/transport/http/middleware"
)

const maxRequestBodyBytes = 1 << 20

func Run() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
	}

	authService := auth.NewService(auth.NewStore(pool), cfg.JWTSecret)
	directoryStore := directory.NewStore(pool)
	engine := ledger.NewEngine(ledger.NewStore(pool))
	notifyService := notifications.New(notifications.NewStore(pool), email.New(cfg))
	notifyService.DefaultFrom = cfg.EmailFrom
	leaveService := leave.NewService(leave.NewStore(pool), engine, directoryStore, notifyService)

	jobsService := jobs.New(pool, cfg, engine, directoryStore, notifyService)
	jobsService.Start(ctx)

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(maxRequestBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		authhandler.NewHandler(authService).RegisterRoutes(r)
		employeeshandler.NewHandler(directoryStore).RegisterRoutes(r)
		balancehandler.NewHandler(engine, directoryStore, notifyService).RegisterRoutes(r)
		leaveshandler.NewHandler(leaveService, directoryStore).RegisterRoutes(r)
		notificationshandler.NewHandler(notifyService).RegisterRoutes(r)
		adminhandler.NewHandler(jobsService).RegisterRoutes(r)
	})

	log.Printf("server listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
