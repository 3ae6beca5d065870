//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/repository"
	"velvet-metal/internal/infra/security"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"
)

func seedTiers(t *testing.T, repo *PostgresTierRepo) {
	t.Helper()
	ctx := context.Background()
	for _, in := range []struct{ id, price string }{{"pro", "9.99"}, {"free", "0"}, {"plus", "4.99"}} {
		tier, err := model.NewSubscriptionTier(in.id, in.id, in.id, decimal.RequireFromString(in.price),
			map[string]model.FeatureValue{"hi_fi": model.BoolFeature(in.id == "pro")})
		if err != nil {
			t.Fatalf("NewSubscriptionTier: %v", err)
		}
		if err := repo.Save(ctx, repository.NoTX, tier); err != nil {
			t.Fatalf("Save tier %s: %v", in.id, err)
		}
	}
}

func TestTierRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	cleanup(t)
	repo := NewTierRepo(testPool)
	ctx := context.Background()
	seedTiers(t, repo)

	tiers, err := repo.ListAll(ctx, repository.NoTX)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	want := []string{"free", "plus", "pro"}
	if len(tiers) != len(want) {
		t.Fatalf("expected %d tiers, got %d", len(want), len(tiers))
	}
	for i, id := range want {
		if tiers[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, tiers[i].ID)
		}
	}
	if !tiers[2].Features["hi_fi"].Bool {
		t.Error("jsonb features not round-tripped")
	}

	if _, err := repo.FindByID(ctx, repository.NoTX, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProfileAndConnectionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	cleanup(t)
	ctx := context.Background()
	seedTiers(t, NewTierRepo(testPool))

	profiles := NewProfileRepo(testPool)
	p, _ := model.NewProfile("user-1", "Ada@Example.com", "Ada")
	if err := profiles.Save(ctx, repository.NoTX, p); err != nil {
		t.Fatalf("Save profile: %v", err)
	}
	if err := profiles.UpdateTier(ctx, repository.NoTX, "user-1", "plus"); err != nil {
		t.Fatalf("UpdateTier: %v", err)
	}
	if err := profiles.UpdateAvatarURL(ctx, repository.NoTX, "user-1", "http://cdn/a.png"); err != nil {
		t.Fatalf("UpdateAvatarURL: %v", err)
	}
	got, err := profiles.FindByUserID(ctx, repository.NoTX, "user-1")
	if err != nil {
		t.Fatalf("FindByUserID: %v", err)
	}
	if got.Email != "ada@example.com" || got.TierID != "plus" || got.AvatarURL != "http://cdn/a.png" {
		t.Errorf("unexpected profile %+v", got)
	}

	sealer, _ := security.NewTokenSealer("0123456789abcdef")
	conns := NewConnectionRepo(testPool, sealer)
	c, _ := model.NewServiceConnection("user-1", model.ServiceSpotify)
	c.AccessToken = "access"
	c.ConnectedAt = time.Now().Add(-time.Hour).UTC()
	if err := conns.Upsert(ctx, repository.NoTX, c); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var stored string
	if err := testPool.QueryRow(ctx, `SELECT access_token FROM service_connections`).Scan(&stored); err != nil {
		t.Fatalf("read raw token: %v", err)
	}
	if stored == "access" {
		t.Error("access token stored in clear")
	}

	stale, err := conns.ListStale(ctx, repository.NoTX, time.Now().Add(-30*time.Minute), 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("ListStale = %d, %v", len(stale), err)
	}
	if stale[0].AccessToken != "access" || !stale[0].Syncing() {
		t.Errorf("unexpected stale connection %+v", stale[0])
	}

	if err := conns.MarkSynced(ctx, repository.NoTX, "user-1", model.ServiceSpotify, time.Now()); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	list, err := conns.ListByUser(ctx, repository.NoTX, "user-1")
	if err != nil || len(list) != 1 || list[0].Syncing() {
		t.Fatalf("expected one synced connection, got %v, %v", list, err)
	}

	// reconnecting restarts the import
	c.LastLibrarySync = nil
	if err := conns.Upsert(ctx, repository.NoTX, c); err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}
	again, _ := conns.Find(ctx, repository.NoTX, "user-1", model.ServiceSpotify)
	if !again.Syncing() {
		t.Error("reconnect should reset last_library_sync")
	}
}

func TestTxManager_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	cleanup(t)
	ctx := context.Background()
	seedTiers(t, NewTierRepo(testPool))
	profiles := NewProfileRepo(testPool)
	conns := NewConnectionRepo(testPool, security.PlainSealer{})
	txm := NewTxManager(testPool)

	p, _ := model.NewProfile("user-1", "ada@example.com", "Ada")
	if err := profiles.Save(ctx, repository.NoTX, p); err != nil {
		t.Fatalf("Save profile: %v", err)
	}

	t.Run("duplicate email maps to ErrAlreadyExists", func(t *testing.T) {
		dup, _ := model.NewProfile("user-2", "ada@example.com", "Other Ada")
		if err := profiles.Save(ctx, repository.NoTX, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("unknown tier maps to ErrInvalidArgument", func(t *testing.T) {
		if err := profiles.UpdateTier(ctx, repository.NoTX, "user-1", "gold"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	c, _ := model.NewServiceConnection("user-1", model.ServiceSpotify)
	c.AccessToken = "old"
	if err := conns.Upsert(ctx, repository.NoTX, c); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	t.Run("failure rolls back every write", func(t *testing.T) {
		err := txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			c.AccessToken = "fresh"
			if err := conns.Upsert(ctx, tx, c); err != nil {
				return err
			}
			return conns.MarkSynced(ctx, tx, "user-1", model.ServiceTidal, time.Now())
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from the second write, got %v", err)
		}
		got, _ := conns.Find(ctx, repository.NoTX, "user-1", model.ServiceSpotify)
		if got.AccessToken != "old" {
			t.Errorf("token write survived the rollback: %q", got.AccessToken)
		}
	})

	t.Run("success commits both writes", func(t *testing.T) {
		err := txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			c.AccessToken = "fresh"
			if err := conns.Upsert(ctx, tx, c); err != nil {
				return err
			}
			return conns.MarkSynced(ctx, tx, "user-1", model.ServiceSpotify, time.Now())
		})
		if err != nil {
			t.Fatalf("WithTx: %v", err)
		}
		got, _ := conns.Find(ctx, repository.NoTX, "user-1", model.ServiceSpotify)
		if got.AccessToken != "fresh" || got.Syncing() {
			t.Errorf("unexpected connection %+v", got)
		}
	})
}
