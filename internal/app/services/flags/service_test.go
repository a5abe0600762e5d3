package flags

import (
	"context"
	"errors"
	"testing"

	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/storage"
	"github.com/readspeed/backend/internal/app/storage/memory"
)

func TestSetValidatesKeyAndTier(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	if _, err := svc.Set(ctx, "Bad Key!", SetInput{}); err == nil {
		t.Fatal("expected invalid key error")
	}
	if _, err := svc.Set(ctx, "ok_flag", SetInput{MinTier: "platinum"}); err == nil {
		t.Fatal("expected invalid tier error")
	}

	f, err := svc.Set(ctx, "  LIVE_Leaderboard  ", SetInput{Enabled: true, MinTier: "PRO"})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if f.Key != "live_leaderboard" || f.MinTier != "pro" {
		t.Fatalf("key/tier not normalized: %+v", f)
	}
}

func TestEvaluateGatesByTierAndRole(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	mustSet := func(key string, in SetInput) {
		t.Helper()
		if _, err := svc.Set(ctx, key, in); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	mustSet("open", SetInput{Enabled: true})
	mustSet("dark", SetInput{Enabled: false})
	mustSet("live", SetInput{Enabled: true, MinTier: "pro"})
	mustSet("ops", SetInput{Enabled: true, AdminOnly: true})

	free := profile.Profile{ID: "u1", Tier: "free", Role: profile.RoleUser}
	pro := profile.Profile{ID: "u2", Tier: "pro", Role: profile.RoleUser}
	admin := profile.Profile{ID: "u3", Tier: "free", Role: profile.RoleAdmin}

	cases := []struct {
		caller profile.Profile
		want   map[string]bool
	}{
		{free, map[string]bool{"open": true, "dark": false, "live": false, "ops": false}},
		{pro, map[string]bool{"open": true, "dark": false, "live": true, "ops": false}},
		{admin, map[string]bool{"open": true, "dark": false, "live": true, "ops": true}},
	}
	for _, tc := range cases {
		evals, err := svc.Evaluate(ctx, tc.caller)
		if err != nil {
			t.Fatalf("evaluate for %s: %v", tc.caller.ID, err)
		}
		got := make(map[string]bool, len(evals))
		for _, e := range evals {
			got[e.Key] = e.Enabled
		}
		for key, want := range tc.want {
			if got[key] != want {
				t.Errorf("caller %s flag %s = %v, want %v", tc.caller.ID, key, got[key], want)
			}
		}
	}
}

func TestIsEnabledUnknownFlagIsOff(t *testing.T) {
	svc := New(memory.New(), nil)
	if svc.IsEnabled(context.Background(), "missing", profile.Profile{Role: profile.RoleAdmin}) {
		t.Fatal("unknown flag must be off")
	}
}

func TestDeleteTurnsFlagOff(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()
	caller := profile.Profile{ID: "u1", Tier: "free", Role: profile.RoleUser}

	if _, err := svc.Set(ctx, "beta", SetInput{Enabled: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !svc.IsEnabled(ctx, "beta", caller) {
		t.Fatal("flag should be on before delete")
	}
	if err := svc.Delete(ctx, "beta"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if svc.IsEnabled(ctx, "beta", caller) {
		t.Fatal("flag should be off after delete")
	}
	if _, err := svc.Get(ctx, "beta"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}
