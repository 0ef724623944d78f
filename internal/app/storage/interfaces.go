// Package storage defines the persistence interfaces and an in-memory
// implementation used for development and tests.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/JulienZD/w2tch/internal/app/domain/invite"
	"github.com/JulienZD/w2tch/internal/app/domain/user"
	"github.com/JulienZD/w2tch/internal/app/domain/watchable"
	"github.com/JulienZD/w2tch/internal/app/domain/watchlist"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned on unique constraint violations.
	ErrConflict = errors.New("record already exists")
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error
	DeleteUser(ctx context.Context, id string) error
}

// WatchlistStore persists watchlists and their memberships.
type WatchlistStore interface {
	// CreateWatchlist inserts the watchlist and its owner membership
	// atomically.
	CreateWatchlist(ctx context.Context, wl *watchlist.Watchlist) error
	GetWatchlist(ctx context.Context, id string) (*watchlist.Watchlist, error)
	// GetWatchlistDetails loads the watchlist with owner name, counts and
	// entries, relative to the viewing user.
	GetWatchlistDetails(ctx context.Context, id, viewerID string) (*watchlist.Details, error)
	ListWatchlistsForUser(ctx context.Context, userID string) ([]watchlist.Summary, error)
	UpdateWatchlist(ctx context.Context, wl *watchlist.Watchlist) error
	DeleteWatchlist(ctx context.Context, id string) error
	// IsWatcher reports whether the user is a member of the watchlist.
	IsWatcher(ctx context.Context, watchlistID, userID string) (bool, error)
}

// EntryStore persists watchables and their placement on watchlists.
type EntryStore interface {
	// GetOrCreateWatchable returns the existing row matching the
	// (source, external ID, type) triple or inserts a new one.
	GetOrCreateWatchable(ctx context.Context, w *watchable.Watchable) (*watchable.Watchable, error)
	AddEntry(ctx context.Context, watchlistID, watchableID string, addedAt time.Time) error
	SetEntrySeen(ctx context.Context, watchlistID, watchableID string, seenOn *time.Time) error
	RemoveEntry(ctx context.Context, watchlistID, watchableID string) error
}

// InviteStore persists watchlist invites.
type InviteStore interface {
	// CreateInvite inserts the invite, returning ErrConflict when the code
	// is already taken.
	CreateInvite(ctx context.Context, inv *invite.Invite) error
	// DeleteInviteByWatchlist removes the watchlist's invite, if any.
	DeleteInviteByWatchlist(ctx context.Context, watchlistID string) error
	// GetInviteByCode returns the invite regardless of validity.
	GetInviteByCode(ctx context.Context, code string) (*invite.Invite, error)
	// FindValidInviteByCode returns the invite only when it is still
	// redeemable at now.
	FindValidInviteByCode(ctx context.Context, code string, now time.Time) (*invite.Invite, error)
	// FindValidInviteByWatchlist returns the watchlist's live invite.
	FindValidInviteByWatchlist(ctx context.Context, watchlistID string, now time.Time) (*invite.Invite, error)
	// RedeemInvite inserts the membership and increments the use count in
	// one transaction. Returns ErrConflict when the user is already a
	// member.
	RedeemInvite(ctx context.Context, code, watcherID string) error
}
