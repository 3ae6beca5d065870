package usecase

import (
	"context"
	"testing"

	"velvet-metal/internal/domain/model"

	"github.com/shopspring/decimal"
)

func tier(id, price string) *model.SubscriptionTier {
	t, _ := model.NewSubscriptionTier(id, id, id, decimal.RequireFromString(price), nil)
	return t
}

func TestTierUseCase_ListSortedByPrice(t *testing.T) {
	repo := &memTierRepo{tiers: []*model.SubscriptionTier{tier("pro", "9.99"), tier("free", "0"), tier("plus", "4.99"), tier("alt", "4.99")}}
	uc := NewTierUseCase(repo, nopLogger())
	uc.retry = fastRetry

	got, err := uc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"free", "alt", "plus", "pro"}
	if ids := tierIDs(got); len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	} else {
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, ids)
			}
		}
	}
}

func TestTierUseCase_RetriesOnce(t *testing.T) {
	t.Run("recovers on second attempt", func(t *testing.T) {
		repo := &memTierRepo{tiers: []*model.SubscriptionTier{tier("free", "0")}, failures: 1}
		uc := NewTierUseCase(repo, nopLogger())
		uc.retry = fastRetry

		got, err := uc.List(context.Background())
		if err != nil || len(got) != 1 {
			t.Fatalf("expected recovery after one retry, got %v, %v", got, err)
		}
		if repo.listCall != 2 {
			t.Errorf("expected 2 calls, got %d", repo.listCall)
		}
	})

	t.Run("gives up with an empty list", func(t *testing.T) {
		repo := &memTierRepo{tiers: []*model.SubscriptionTier{tier("free", "0")}, failures: 5}
		uc := NewTierUseCase(repo, nopLogger())
		uc.retry = fastRetry

		got, err := uc.List(context.Background())
		if err == nil {
			t.Fatal("expected an error")
		}
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", got)
		}
		if repo.listCall != 2 {
			t.Errorf("expected exactly one retry, got %d calls", repo.listCall)
		}
	})
}
