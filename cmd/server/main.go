package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/lostmerchants/tracker/internal/catalog"
	"github.com/lostmerchants/tracker/internal/config"
	"github.com/lostmerchants/tracker/internal/database"
	"github.com/lostmerchants/tracker/internal/handler"
	"github.com/lostmerchants/tracker/internal/hub"
	"github.com/lostmerchants/tracker/internal/identity"
	"github.com/lostmerchants/tracker/internal/queue"
	"github.com/lostmerchants/tracker/internal/reconcile"
	"github.com/lostmerchants/tracker/internal/repository"
	"github.com/lostmerchants/tracker/internal/router"
)

func main() {
	// .env is a developer convenience; in production the variables come
	// from the environment and the file is simply absent.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cat, err := catalog.Load(cfg.MerchantData, cfg.WindowDuration)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	store := repository.NewStore(db)
	pushRepo := repository.NewPushRepo(db)
	reconciler := reconcile.NewReconciler(store, cat, nil)
	ledger := reconcile.NewVoteLedger(store)
	broadcast := hub.New(cat.IsValidServer)
	resolver := identity.NewResolver(cfg.IdentityMode)

	ws := handler.NewWS(reconciler, ledger, cat, broadcast, store, pushRepo, resolver, cfg.ClientVersion)

	// Drain outbox work items in the background; the consumer reconnects on
	// its own and never takes the server down with it.
	go func() {
		if err := queue.StartProcessConsumer(); err != nil {
			log.Printf("process-consumer stopped: %v", err)
		}
	}()

	rdb := config.NewRedisClient()
	rl := config.LoadRateLimitConfig()

	e := echo.New()
	router.RegisterRoutes(e, ws, cfg, rl, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, servers=%d)", addr, cfg.Env, len(cat.Servers()))

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
