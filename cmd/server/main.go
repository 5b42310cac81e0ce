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

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	_ "livepoll/docs"
	"livepoll/internal/broadcast"
	"livepoll/internal/config"
	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
	api "livepoll/internal/http"
	"livepoll/internal/identity"
	"livepoll/internal/metrics"
	"livepoll/internal/platform/database"
	jwtpkg "livepoll/internal/platform/jwt"
	"livepoll/internal/platform/logger"
	"livepoll/internal/ratelimit"
	"livepoll/internal/repository/memory"
	"livepoll/internal/repository/postgres"
	"livepoll/internal/repository/tarantool"
	"livepoll/internal/worker"
)

type storage struct {
	polls  poll.Repository
	votes  vote.Repository
	pinger api.Pinger
	close  func()
}

// @title           Livepoll API
// @version         1.0
// @description     Anonymous polls with live tallies
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	l, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = l.Sync() }()

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStorage(ctx, cfg, l)
	if err != nil {
		l.Fatal("storage init error", zap.String("storage", cfg.Storage), zap.Error(err))
	}
	defer st.close()

	if cfg.FingerprintSalt == "" {
		l.Warn("FINGERPRINT_SALT is empty, voter ids are unsalted")
	}

	limiter := ratelimit.New(ratelimit.Config{
		Coarse: ratelimit.Rule{Limit: cfg.Votes.CoarseLimit, Window: cfg.Votes.CoarseWindow},
		Fine:   ratelimit.Rule{Limit: cfg.Votes.FineLimit, Window: cfg.Votes.FineWindow},
	})
	hub := broadcast.NewHub()
	fanout := worker.NewFanout(cfg.FanoutBuffer, hub, l)

	pollSvc := poll.NewService(st.polls, cfg.PollTTL)
	voteSvc := vote.NewService(st.votes, st.polls, limiter, fanout, identity.NewDeriver(cfg.FingerprintSalt))
	janitor := worker.NewJanitor(pollSvc, limiter, cfg.CleanupInterval, l)

	router := api.NewRouter(api.Deps{
		PollSvc:   pollSvc,
		VoteSvc:   voteSvc,
		Hub:       hub,
		JWT:       jwtpkg.NewManager(cfg.AdminTokenSecret, "livepoll"),
		Storage:   st.pinger,
		Log:       l,
		PublicURL: cfg.PublicURL,
		Origins:   cfg.CORSOrigins,
		APIRate:   rate.Limit(cfg.API.RatePerMinute / 60),
		APIBurst:  cfg.API.Burst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go fanout.Run(ctx)
	go janitor.Run(ctx)

	go func() {
		l.Info("server listening", zap.String("port", cfg.Port), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("listen error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	l.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// hijacked websocket connections are not tracked by Shutdown
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server shutdown error", zap.Error(err))
	}
	cancel()

	l.Info("server stopped")
}

func openStorage(ctx context.Context, cfg *config.Config, l *zap.Logger) (*storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		store := memory.NewStore()
		return &storage{polls: store, votes: store, close: func() {}}, nil

	case config.StoragePostgres:
		pool, err := database.NewPostgres(ctx, cfg.DB_DSN, l)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &storage{
			polls:  postgres.NewPollRepo(pool),
			votes:  postgres.NewVoteRepo(pool),
			pinger: pool,
			close:  pool.Close,
		}, nil

	case config.StorageTarantool:
		conn, err := database.NewTarantool(ctx, database.TarantoolOptions{
			Addr:     cfg.Tarantool.Addr(),
			User:     cfg.Tarantool.User,
			Password: cfg.Tarantool.Password,
		}, l)
		if err != nil {
			return nil, err
		}
		if err := tarantool.Bootstrap(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		store := tarantool.NewStore(conn, l)
		return &storage{
			polls:  store,
			votes:  store,
			pinger: store,
			close:  func() { _ = conn.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}
