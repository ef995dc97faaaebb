// Command ebbflow-server serves the leaf-collecting game over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/ebb-flow/internal/api"
	"github.com/MJE43/ebb-flow/internal/config"
	"github.com/MJE43/ebb-flow/internal/feed"
	"github.com/MJE43/ebb-flow/internal/game"
	"github.com/MJE43/ebb-flow/internal/garden"
	"github.com/MJE43/ebb-flow/internal/kv"
	"github.com/MJE43/ebb-flow/internal/profile"
	"github.com/MJE43/ebb-flow/internal/quota"
	"github.com/MJE43/ebb-flow/internal/ranking"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ebbflow-server: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	storeLog := log.New(os.Stdout, "[STORE] ", log.LstdFlags|log.Lshortfile)
	gameLog := log.New(os.Stdout, "[GAME] ", log.LstdFlags|log.Lshortfile)

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			storeLog.Printf("store_close_failed error=%v", err)
		}
	}()
	storeLog.Printf("store_opened driver=%s path=%s", cfg.StoreDriver, cfg.StorePath)

	secret := cfg.LeafSecret
	if secret == "" {
		secret = uuid.NewString()
		gameLog.Printf("leaf_secret_generated note=%q", "set EBBFLOW_LEAF_SECRET to keep leaf fields reproducible across restarts")
	}

	loc := cfg.Location()
	locks := kv.NewLocker()
	hub := feed.NewHub()
	defer hub.Close()

	profiles := profile.NewStore(backend, locks)
	community := garden.NewEngine(backend, locks,
		garden.WithLocation(loc),
		garden.WithLogger(gameLog),
		garden.OnChange(hub.Publish),
	)
	manager, err := game.NewManager(game.Deps{
		Store:    backend,
		Locks:    locks,
		Profiles: profiles,
		Limiter:  quota.NewLimiter(backend, quota.WithLocation(loc)),
		Garden:   community,
		Board:    ranking.NewBoard(backend, profiles, gameLog),
		Secret:   secret,
		Logger:   gameLog,
	})
	if err != nil {
		return err
	}

	securityLog := api.NewSecurityLogger(nil)
	server := api.NewServer(manager, backend, api.Options{
		AdminToken:     cfg.AdminToken,
		CORSOrigin:     cfg.CORSOrigin,
		RequestTimeout: cfg.RequestTimeout,
		Live:           feed.NewHandler(hub, community, nil),
		SecurityLogger: securityLog,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	started := time.Now()
	securityLog.LogSystemStartup(cfg.Addr, map[string]interface{}{
		"store_driver":    cfg.StoreDriver,
		"time_zone":       loc.String(),
		"purge_interval":  cfg.PurgeInterval.String(),
		"request_timeout": cfg.RequestTimeout.String(),
		"admin_token":     cfg.AdminToken,
		"leaf_secret":     secret,
	})

	go maintain(ctx, backend, community, cfg.PurgeInterval, storeLog)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	// Websocket subscribers are hijacked connections that Shutdown does not wait for.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	securityLog.LogSystemShutdown("signal", time.Since(started))
	return nil
}

func openBackend(cfg config.Config) (kv.Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return kv.NewMemory(), nil
	case config.DriverSQLite:
		return kv.OpenSQLite(cfg.StorePath)
	case config.DriverBolt:
		return kv.OpenBolt(cfg.StorePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// maintain purges expired keys and rotates garden goals until ctx ends.
func maintain(ctx context.Context, backend kv.Backend, community *garden.Engine, every time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		purged, err := backend.PurgeExpired(ctx)
		if err != nil {
			logger.Printf("purge_failed error=%v", err)
		} else if purged > 0 {
			logger.Printf("purge_completed removed=%d", purged)
		}
		if _, err := community.Sweep(ctx); err != nil {
			logger.Printf("garden_sweep_failed error=%v", err)
		}
	}
}
