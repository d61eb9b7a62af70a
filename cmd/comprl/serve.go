package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/comprl/server/internal/config"
	"github.com/comprl/server/internal/dashboard"
	_ "github.com/comprl/server/internal/demogame"
	"github.com/comprl/server/internal/events"
	"github.com/comprl/server/internal/gameadapter"
	"github.com/comprl/server/internal/gameinstance"
	"github.com/comprl/server/internal/gamemanager"
	"github.com/comprl/server/internal/matchmaking"
	"github.com/comprl/server/internal/playermgr"
	"github.com/comprl/server/internal/scoredecay"
	"github.com/comprl/server/internal/server"
	"github.com/comprl/server/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the competition server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "comprl.toml", "path to the TOML config file")
	return cmd
}

// publishGameEnded fans a finished game's outcome out over the optional
// Redis bus. A nil-client Bus makes this a no-op when Redis isn't
// configured.
func publishGameEnded(bus *events.Bus) func(*gameinstance.Instance) {
	return func(inst *gameinstance.Instance) {
		result, ok := inst.GetResult()
		if !ok {
			return
		}
		bus.GameEnded(result.GameID, int(result.EndState), result.WinnerID)
	}
}

// publishGameStarted fans a newly started game out over the Redis bus.
func publishGameStarted(bus *events.Bus) func(*gameinstance.Instance) {
	return func(inst *gameinstance.Instance) {
		userIDs := inst.UserIDs()
		bus.GameStarted(string(inst.GameID), userIDs[0], userIDs[1])
	}
}

func runServe(ctx context.Context, configPath string) error {
	// .env overlay loaded before the TOML config so secrets can stay
	// out of the config file.
	if err := godotenv.Load(); err != nil {
		log.Println("[comprl] no .env file found, using process environment")
	}

	cfg, cfgLoader, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	factory, ok := gameadapter.Lookup(cfg.GameClass)
	if !ok {
		return fmt.Errorf("config error: no game adapter registered under game_class %q (game_path=%q)", cfg.GameClass, cfg.GamePath)
	}

	if err := store.RunMigrations(cfg.DatabasePath); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	st, err := store.Connect(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	defer st.Close()

	bus := events.New(nil)
	if cfg.RedisURL != "" {
		rdb, err := events.Connect(cfg.RedisURL)
		if err != nil {
			log.Printf("[comprl] redis unavailable, lifecycle events disabled: %v", err)
		} else {
			bus = events.New(rdb)
			defer rdb.Close()
		}
	}

	players := playermgr.New(st)
	games := gamemanager.New(st, cfg.DataDir)
	match := matchmaking.New(cfgLoader.Matchmaking(), st, players, games, factory)
	games.OnGameEnd(match.EndGame)
	games.OnGameEnd(publishGameEnded(bus))
	games.OnGameStart(publishGameStarted(bus))
	match.OnRatingUpdate(bus.RatingUpdated)

	srv := server.New(server.Config{
		UpdateInterval: time.Duration(cfg.ServerUpdateInterval * float64(time.Second)),
		RPCTimeout:     time.Duration(cfg.Timeout) * time.Second,
		MonitorLogPath: cfg.MonitorLogPath,
	}, players, games, match)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Apply matchmaking.* hot-reloads on the same cadence as the
	// matchmaking tick itself.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.ServerUpdateInterval * float64(time.Second)))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				match.SetConfig(cfgLoader.Matchmaking())
			}
		}
	}()

	go scoredecay.Run(ctx, st, cfgLoader)

	go func() {
		log.Printf("[comprl] agent websocket listening on :%d", cfg.Port)
		httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: srv.Handler()}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[comprl] websocket server error: %v", err)
		}
	}()

	if cfg.DashboardPort != 0 {
		go func() {
			gin.SetMode(gin.ReleaseMode)
			router := gin.New()
			router.Use(gin.Recovery())
			dashboard.Routes(router, st, dashboard.Config{JWTSecret: cfg.JWTSecret})

			log.Printf("[comprl] dashboard listening on :%d", cfg.DashboardPort)
			dashSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.DashboardPort), Handler: router}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				dashSrv.Shutdown(shutdownCtx)
			}()
			if err := dashSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("[comprl] dashboard server error: %v", err)
			}
		}()
	}

	srv.Run(ctx)
	srv.Shutdown("server shutting down")
	return nil
}
