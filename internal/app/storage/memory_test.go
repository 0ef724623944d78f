package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JulienZD/w2tch/internal/app/domain/invite"
	"github.com/JulienZD/w2tch/internal/app/domain/user"
	"github.com/JulienZD/w2tch/internal/app/domain/watchlist"
)

func seed(t *testing.T, m *Memory) (user.User, watchlist.Watchlist) {
	t.Helper()
	ctx := context.Background()

	owner := user.User{Name: "Alice", Email: "alice@example.com", PasswordHash: "x"}
	if err := m.CreateUser(ctx, &owner); err != nil {
		t.Fatalf("create user: %v", err)
	}
	wl := watchlist.Watchlist{Name: "movie night", OwnerID: owner.ID}
	if err := m.CreateWatchlist(ctx, &wl); err != nil {
		t.Fatalf("create watchlist: %v", err)
	}
	return owner, wl
}

func TestCreateUserEnforcesUniqueEmail(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := user.User{Name: "Alice", Email: "alice@example.com", PasswordHash: "x"}
	if err := m.CreateUser(ctx, &first); err != nil {
		t.Fatalf("create user: %v", err)
	}
	second := user.User{Name: "Other", Email: "alice@example.com", PasswordHash: "x"}
	if err := m.CreateUser(ctx, &second); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateInviteEnforcesUniqueCodeAndWatchlist(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	owner, wl := seed(t, m)

	inv := invite.Invite{Code: "code0000000001", WatchlistID: wl.ID, ValidUntil: time.Now().Add(time.Hour)}
	if err := m.CreateInvite(ctx, &inv); err != nil {
		t.Fatalf("create invite: %v", err)
	}

	dupCode := invite.Invite{Code: "code0000000001", WatchlistID: wl.ID, ValidUntil: time.Now().Add(time.Hour)}
	if err := m.CreateInvite(ctx, &dupCode); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate code, got %v", err)
	}

	other := watchlist.Watchlist{Name: "other", OwnerID: owner.ID}
	if err := m.CreateWatchlist(ctx, &other); err != nil {
		t.Fatalf("create watchlist: %v", err)
	}
	secondLive := invite.Invite{Code: "code0000000002", WatchlistID: wl.ID, ValidUntil: time.Now().Add(time.Hour)}
	if err := m.CreateInvite(ctx, &secondLive); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for second invite on one watchlist, got %v", err)
	}
}

func TestRedeemInviteIncrementsUsesWithMembership(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, wl := seed(t, m)

	joiner := user.User{Name: "Bob", Email: "bob@example.com", PasswordHash: "x"}
	if err := m.CreateUser(ctx, &joiner); err != nil {
		t.Fatalf("create user: %v", err)
	}
	inv := invite.Invite{Code: "code0000000001", WatchlistID: wl.ID, ValidUntil: time.Now().Add(time.Hour)}
	if err := m.CreateInvite(ctx, &inv); err != nil {
		t.Fatalf("create invite: %v", err)
	}

	if err := m.RedeemInvite(ctx, inv.Code, joiner.ID); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	member, _ := m.IsWatcher(ctx, wl.ID, joiner.ID)
	if !member {
		t.Fatal("expected joiner to become a member")
	}
	stored, err := m.GetInviteByCode(ctx, inv.Code)
	if err != nil {
		t.Fatalf("load invite: %v", err)
	}
	if stored.Uses != 1 {
		t.Fatalf("expected 1 use, got %d", stored.Uses)
	}

	// Redeeming twice leaves the use count untouched.
	if err := m.RedeemInvite(ctx, inv.Code, joiner.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	stored, _ = m.GetInviteByCode(ctx, inv.Code)
	if stored.Uses != 1 {
		t.Fatalf("expected use count unchanged, got %d", stored.Uses)
	}
}

func TestFindValidInviteFiltersExpiredAndExhausted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	owner, wl := seed(t, m)

	now := time.Now()
	expired := invite.Invite{Code: "expired000001", WatchlistID: wl.ID, ValidUntil: now.Add(-time.Minute)}
	if err := m.CreateInvite(ctx, &expired); err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if _, err := m.FindValidInviteByCode(ctx, expired.Code, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired invite to be hidden, got %v", err)
	}

	other := watchlist.Watchlist{Name: "other", OwnerID: owner.ID}
	if err := m.CreateWatchlist(ctx, &other); err != nil {
		t.Fatalf("create watchlist: %v", err)
	}
	one := 1
	exhausted := invite.Invite{Code: "usedup0000001", WatchlistID: other.ID, ValidUntil: now.Add(time.Hour), MaxUses: &one, Uses: 1}
	if err := m.CreateInvite(ctx, &exhausted); err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if _, err := m.FindValidInviteByCode(ctx, exhausted.Code, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected exhausted invite to be hidden, got %v", err)
	}
}

func TestDeleteWatchlistCascades(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, wl := seed(t, m)

	inv := invite.Invite{Code: "code0000000001", WatchlistID: wl.ID, ValidUntil: time.Now().Add(time.Hour)}
	if err := m.CreateInvite(ctx, &inv); err != nil {
		t.Fatalf("create invite: %v", err)
	}

	if err := m.DeleteWatchlist(ctx, wl.ID); err != nil {
		t.Fatalf("delete watchlist: %v", err)
	}
	if _, err := m.GetInviteByCode(ctx, inv.Code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected invite to be deleted with watchlist, got %v", err)
	}
}
