package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle-duel/internal/auth"
	"github.com/robalobadob/wordle-duel/internal/config"
	"github.com/robalobadob/wordle-duel/internal/duel"
	"github.com/robalobadob/wordle-duel/internal/httpserver"
	"github.com/robalobadob/wordle-duel/internal/payout"
	"github.com/robalobadob/wordle-duel/internal/store"
	"github.com/robalobadob/wordle-duel/internal/words"
)

func main() {
	cfg := config.Load()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("failed to open store")
	}
	defer st.Close()

	// the payout worker outlives the HTTP server so late settlements are drained
	// before the store closes
	payoutCtx, stopPayouts := context.WithCancel(context.Background())
	payouts := payout.NewQueue(st, 64)
	go payouts.Run(payoutCtx)
	defer func() {
		stopPayouts()
		payouts.Wait()
	}()

	svc, err := duel.New(ctx, duel.Options{
		Store:             st,
		Transferer:        payouts,
		LegacyInvolvement: cfg.LegacyInvolvement,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load state")
	}

	if cfg.SeedWords && svc.WordCount() == 0 {
		list, err := words.Seed(cfg.WordsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load word list")
		}
		n, err := svc.Seed(ctx, list)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to seed registry")
		}
		log.Info().Int("words", n).Msg("registry seeded")
	}

	au := auth.New(st, auth.Options{
		Secret:     cfg.JWTSecret,
		TTL:        cfg.JWTTTL,
		CookieName: cfg.CookieName,
		Secure:     cfg.Production,
		Admins:     cfg.AdminUsers,
	})
	srv := httpserver.New(svc, au, st, httpserver.Options{
		ClientOrigin:   cfg.ClientOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	log.Info().Str("port", cfg.Port).Msg("starting duel-server")
	if err := srv.Start(ctx, ":"+cfg.Port); err != nil {
		log.Error().Err(err).Msg("server exited")
	}
	log.Info().Msg("shutting down")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "sqlite":
		return store.NewSQLiteStore(ctx, cfg.DatabasePath)
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
}
