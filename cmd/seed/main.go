package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"velvet-metal/internal/config"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/repository"
	pg "velvet-metal/internal/infra/db/postgres"
	"velvet-metal/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"
)

type seedTier struct {
	ID       string
	Name     string
	Label    string
	Price    string
	Features map[string]model.FeatureValue
}

var tiers = []seedTier{
	{"free", "Free", "free", "0", map[string]model.FeatureValue{
		"services":  model.NumberFeature(1),
		"lossless":  model.BoolFeature(false),
		"sync":      model.TextFeature("daily"),
		"playlists": model.NumberFeature(10),
	}},
	{"plus", "Plus", "plus", "4.99", map[string]model.FeatureValue{
		"services":  model.NumberFeature(3),
		"lossless":  model.BoolFeature(false),
		"sync":      model.TextFeature("hourly"),
		"playlists": model.NumberFeature(100),
	}},
	{"pro", "Pro", "pro", "9.99", map[string]model.FeatureValue{
		"services":  model.NumberFeature(3),
		"lossless":  model.BoolFeature(true),
		"sync":      model.TextFeature("realtime"),
		"playlists": model.NumberFeature(1000),
	}},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	repo := pg.NewTierRepo(pool)

	// If tiers already exist, do nothing
	existing, err := repo.ListAll(ctx, repository.NoTX)
	if err != nil {
		logger.Fatal().Err(err).Msg("list tiers")
	}
	if len(existing) > 0 {
		fmt.Printf("%d tiers already present. No changes.\n", len(existing))
		for _, t := range existing {
			fmt.Printf("  - %s (id=%s, $%s/mo)\n", t.Name, t.ID, t.DisplayPrice())
		}
		return
	}

	// All or nothing: a half-seeded catalogue would skip the check above next run.
	txm := pg.NewTxManager(pool)
	err = txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, s := range tiers {
			t, err := model.NewSubscriptionTier(s.ID, s.Name, s.Label, decimal.RequireFromString(s.Price), s.Features)
			if err != nil {
				return fmt.Errorf("tier %q: %w", s.ID, err)
			}
			if err := repo.Save(ctx, tx, t); err != nil {
				return err
			}
			fmt.Printf("seeded: %s (id=%s, $%s/mo)\n", t.Name, t.ID, t.DisplayPrice())
		}
		return nil
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed tiers")
	}

	fmt.Println("Seeding complete.")
}
