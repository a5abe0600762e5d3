package books

import (
	"context"
	"errors"
	"testing"

	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/services/subscriptions"
	"github.com/readspeed/backend/internal/app/storage"
	"github.com/readspeed/backend/internal/app/storage/memory"
	apperrors "github.com/readspeed/backend/internal/errors"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	subs := subscriptions.New(store, store, store, nil)
	return New(store, subs, nil), store
}

func reader(id, tier string) profile.Profile {
	return profile.Profile{ID: id, Tier: tier, Role: profile.RoleUser}
}

func admin(id string) profile.Profile {
	return profile.Profile{ID: id, Tier: subscription.TierFree, Role: profile.RoleAdmin}
}

func TestCreateRequiresTier(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	in := CreateInput{Title: "Dune", Author: "Frank Herbert", TotalPages: 412}

	_, err := svc.Create(ctx, reader("u1", subscription.TierFree), in)
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != apperrors.CodeForbidden {
		t.Fatalf("free tier should be rejected, got %v", err)
	}

	b, err := svc.Create(ctx, reader("u2", subscription.TierReader), in)
	if err != nil {
		t.Fatalf("reader tier create: %v", err)
	}
	if b.CreatedBy != "u2" {
		t.Fatalf("owner not recorded: %+v", b)
	}

	// Admins bypass the tier gate regardless of their own tier.
	if _, err := svc.Create(ctx, admin("a1"), in); err != nil {
		t.Fatalf("admin create: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	owner := admin("a1")

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"missing title", CreateInput{Author: "A", TotalPages: 100}},
		{"missing author", CreateInput{Title: "T", TotalPages: 100}},
		{"zero pages", CreateInput{Title: "T", Author: "A"}},
		{"too many pages", CreateInput{Title: "T", Author: "A", TotalPages: 30000}},
		{"bad isbn", CreateInput{Title: "T", Author: "A", TotalPages: 100, ISBN: "12ab"}},
	}
	for _, tc := range cases {
		if _, err := svc.Create(ctx, owner, tc.in); apperrors.GetServiceError(err) == nil {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}

	b, err := svc.Create(ctx, owner, CreateInput{
		Title:      "Dune",
		Author:     "Frank Herbert",
		Genre:      " SciFi ",
		TotalPages: 412,
		ISBN:       "0-441-17271-x",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Genre != "scifi" {
		t.Fatalf("genre not normalized: %q", b.Genre)
	}
	if b.ISBN != "044117271X" {
		t.Fatalf("isbn not normalized: %q", b.ISBN)
	}
}

func TestUpdateOwnership(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	owner := reader("u1", subscription.TierPro)

	b, err := svc.Create(ctx, owner, CreateInput{Title: "Dune", Author: "Frank Herbert", TotalPages: 412})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "Dune Messiah"
	if _, err := svc.Update(ctx, reader("u2", subscription.TierPro), b.ID, UpdateInput{Title: &title}); apperrors.GetServiceError(err) == nil {
		t.Fatal("stranger should not be able to edit")
	}

	updated, err := svc.Update(ctx, owner, b.ID, UpdateInput{Title: &title})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.Title != "Dune Messiah" {
		t.Fatalf("title not updated: %q", updated.Title)
	}

	if _, err := svc.Update(ctx, admin("a1"), b.ID, UpdateInput{Title: &title}); err != nil {
		t.Fatalf("admin update: %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	owner := reader("u1", subscription.TierPro)

	b, err := svc.Create(ctx, owner, CreateInput{Title: "Dune", Author: "Frank Herbert", TotalPages: 412})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, reader("u2", subscription.TierPro), b.ID); apperrors.GetServiceError(err) == nil {
		t.Fatal("stranger should not be able to delete")
	}
	if err := svc.Delete(ctx, owner, b.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := svc.Get(ctx, b.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected gone, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	owner := admin("a1")

	seed := []CreateInput{
		{Title: "Dune", Author: "Frank Herbert", Genre: "scifi", TotalPages: 412},
		{Title: "Foundation", Author: "Isaac Asimov", Genre: "scifi", TotalPages: 255},
		{Title: "SPQR", Author: "Mary Beard", Genre: "history", TotalPages: 606},
	}
	for _, in := range seed {
		if _, err := svc.Create(ctx, owner, in); err != nil {
			t.Fatalf("seed %s: %v", in.Title, err)
		}
	}

	scifi, total, err := svc.List(ctx, book.Filter{Genre: "SCIFI"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(scifi) != 2 {
		t.Fatalf("expected 2 scifi books, got %d (total %d)", len(scifi), total)
	}

	found, total, err := svc.List(ctx, book.Filter{Search: "asimov"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || found[0].Title != "Foundation" {
		t.Fatalf("author search failed: %+v", found)
	}
}
