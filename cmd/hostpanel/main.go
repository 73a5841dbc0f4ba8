package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go_hostpanel/api/v1"
	"go_hostpanel/internal/actions"
	"go_hostpanel/internal/adapter/factory"
	"go_hostpanel/internal/auth"
	"go_hostpanel/internal/cache"
	"go_hostpanel/internal/config"
	"go_hostpanel/internal/db"
	"go_hostpanel/internal/execx"
	"go_hostpanel/internal/governance"
	"go_hostpanel/internal/logging"
	"go_hostpanel/internal/migration"
	"go_hostpanel/internal/provisioning"
	"go_hostpanel/internal/store"
	"go_hostpanel/internal/store/memory"
	"go_hostpanel/internal/ws"
)

func main() {
	iniPath := flag.String("config", "", "optional INI file; environment variables take precedence")
	flag.Parse()

	// 1. Load configuration
	var (
		cfg *config.Config
		err error
	)
	if *iniPath != "" {
		cfg, err = config.LoadFromINI(*iniPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	logger := logging.New(cfg.Log)

	// 2. Initialize storage
	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		st = memory.New()
		log.Println("✓ Using in-memory store")
	default:
		if err := db.InitMySQL(cfg.MySQL.DSN, cfg.Log.Level == "debug"); err != nil {
			log.Fatalf("Failed to initialize MySQL: %v", err)
		}
		defer db.Close()
		if cfg.Migrate {
			if err := db.Migrate(db.GetDB()); err != nil {
				log.Fatalf("Failed to migrate schema: %v", err)
			}
			log.Println("✓ Schema migrated")
		}
		st = store.NewGorm(db.GetDB())
	}

	// 3. Initialize Redis
	var locker migration.Locker
	if cfg.Redis.Enabled {
		if err := cache.InitRedis(cfg.Redis); err != nil {
			log.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer cache.Close()
		host, _ := os.Hostname()
		locker = cache.NewLease(cache.Client, "hostpanel", host+"-"+uuid.NewString()[:8])
	}

	// 4. Adapters
	executor := execx.NewRunner(cfg.Provisioning.CommandTimeout(), logging.Component(logger, "exec"))
	adapters, err := factory.New(cfg.Provisioning, executor, logging.Component(logger, "adapter"))
	if err != nil {
		log.Fatalf("Failed to initialize adapters: %v", err)
	}
	log.Printf("✓ Adapters ready (mode=%s)", cfg.Provisioning.AdapterMode)

	// 5. Realtime push
	io := ws.NewServer(logging.Component(logger, "ws"))
	defer io.Close()

	// 6. Core services
	orch := provisioning.New(st, adapters, cfg.Provisioning, logging.Component(logger, "provisioning"),
		provisioning.WithNotifier(io.Hub))
	runner := migration.New(st, orch, adapters, executor, cfg.Migration, cfg.Provisioning,
		logging.Component(logger, "migration"), migration.WithNotifier(io.Hub))

	registry := governance.NewRegistry()
	actions.Register(registry, orch, runner)
	ledger := governance.NewLedger(st, cfg.Governance, logging.Component(logger, "governance"))
	dispatcher := governance.NewDispatcher(ledger, registry)
	log.Printf("✓ Governance ready (%d actions)", len(registry.List()))

	// 7. Migration worker
	if cfg.Migration.WorkerEnabled {
		worker := migration.NewWorker(&migration.WorkerConfig{
			Runner:      runner,
			Locker:      locker,
			Logger:      logging.Component(logger, "migration"),
			IntervalSec: cfg.Migration.IntervalSec,
			BatchSize:   cfg.Migration.BatchSize,
			LeaseSec:    cfg.Migration.LeaseSec,
		})
		worker.Start()
		defer worker.Stop()
		log.Println("✓ Migration worker started")
	}

	// 8. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	signer := auth.NewSigner(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpireMinutes)*time.Minute)
	socket := gin.WrapH(ws.WrapWithAuth(io, signer, logging.Component(logger, "ws")))
	r.GET("/socket.io/*any", socket)
	r.POST("/socket.io/*any", socket)

	v1.SetupRouter(r, v1.Deps{
		Signer:       signer,
		Registry:     registry,
		Dispatcher:   dispatcher,
		Orchestrator: orch,
		Services:     st,
		Migrations:   runner,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Printf("✓ Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("✓ Server exited")
}
