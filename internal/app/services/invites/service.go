// Package invites implements the watchlist invitation lifecycle: issuing
// invite links, previewing them and redeeming them into memberships.
package invites

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/JulienZD/w2tch/internal/app/domain/invite"
	"github.com/JulienZD/w2tch/internal/app/storage"
	"github.com/JulienZD/w2tch/internal/errors"
	"github.com/JulienZD/w2tch/pkg/logger"
)

// maxCodeAttempts bounds the retry loop when a generated code collides with
// an existing one.
const maxCodeAttempts = 10

// Service provides invite operations.
type Service struct {
	invites    storage.InviteStore
	watchlists storage.WatchlistStore
	users      storage.UserStore
	baseURL    string
	log        *logger.Logger

	// Injected for tests.
	now     func() time.Time
	newCode func() (string, error)
}

// New creates the invites service. baseURL is the public URL invite links are
// built from.
func New(invites storage.InviteStore, watchlists storage.WatchlistStore, users storage.UserStore, baseURL string, log *logger.Logger) *Service {
	return &Service{
		invites:    invites,
		watchlists: watchlists,
		users:      users,
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		newCode:    invite.NewCode,
	}
}

// Link is an issued invite as returned to the owner.
type Link struct {
	Code       string
	URL        string
	ValidUntil time.Time
	MaxUses    *int
	Uses       int
}

func (s *Service) link(inv *invite.Invite) *Link {
	return &Link{
		Code:       inv.Code,
		URL:        fmt.Sprintf("%s/join/%s", s.baseURL, inv.Code),
		ValidUntil: inv.ValidUntil,
		MaxUses:    inv.MaxUses,
		Uses:       inv.Uses,
	}
}

// Create issues a fresh invite for the watchlist, replacing any previous one.
// Only the owner may invite; everyone else sees the watchlist as missing.
func (s *Service) Create(ctx context.Context, userID string, in invite.CreateInput) (*Link, error) {
	wl, err := s.watchlists.GetWatchlist(ctx, in.WatchlistID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("watchlist not found")
		}
		return nil, errors.Internal("load watchlist", err)
	}
	if wl.OwnerID != userID {
		return nil, errors.NotFound("watchlist not found")
	}

	if violations := invite.ValidateCreateInput(in); len(violations) > 0 {
		return nil, errors.Validation("invalid invite request", violations)
	}

	if err := s.invites.DeleteInviteByWatchlist(ctx, in.WatchlistID); err != nil {
		return nil, errors.Internal("replace invite", err)
	}

	validUntil := s.now().Add(time.Duration(in.ExpiresAfterHours) * time.Hour)

	var lastErr error
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, errors.Internal("generate invite code", err)
		}

		inv := &invite.Invite{
			Code:        code,
			WatchlistID: in.WatchlistID,
			ValidUntil:  validUntil,
			MaxUses:     in.MaxUses,
		}
		err = s.invites.CreateInvite(ctx, inv)
		if err == nil {
			s.log.WithFields(map[string]interface{}{
				"watchlist_id": in.WatchlistID,
				"attempts":     attempt,
			}).Info("invite created")
			return s.link(inv), nil
		}
		if !stderrors.Is(err, storage.ErrConflict) {
			return nil, errors.Internal("create invite", err)
		}
		lastErr = err
	}
	return nil, errors.Internal("could not generate a unique invite code", lastErr)
}

// Preview is what a prospective member sees before joining.
type Preview struct {
	WatchlistID   string
	WatchlistName string
	OwnerName     string
}

// ByCode returns the invite preview. Expired and exhausted invites look the
// same as ones that never existed.
func (s *Service) ByCode(ctx context.Context, code string) (*Preview, error) {
	inv, err := s.invites.FindValidInviteByCode(ctx, code, s.now())
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("invite not found")
		}
		return nil, errors.Internal("load invite", err)
	}

	wl, err := s.watchlists.GetWatchlist(ctx, inv.WatchlistID)
	if err != nil {
		return nil, errors.Internal("load watchlist", err)
	}
	owner, err := s.users.GetUser(ctx, wl.OwnerID)
	if err != nil {
		return nil, errors.Internal("load owner", err)
	}

	return &Preview{
		WatchlistID:   wl.ID,
		WatchlistName: wl.Name,
		OwnerName:     owner.Name,
	}, nil
}

// Join redeems the invite, making the user a member of its watchlist. The
// membership insert and the use count increment happen atomically.
func (s *Service) Join(ctx context.Context, code, userID string) (string, error) {
	inv, err := s.invites.GetInviteByCode(ctx, code)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", errors.NotFound("invite not found")
		}
		return "", errors.Internal("load invite", err)
	}

	now := s.now()
	if inv.Expired(now) {
		return "", errors.FailedPrecondition("this invite has expired")
	}
	if inv.Exhausted() {
		return "", errors.FailedPrecondition("this invite has reached its maximum number of uses")
	}

	member, err := s.watchlists.IsWatcher(ctx, inv.WatchlistID, userID)
	if err != nil {
		return "", errors.Internal("check membership", err)
	}
	if member {
		return "", errors.FailedPrecondition("you are already a member of this watchlist")
	}

	if err := s.invites.RedeemInvite(ctx, code, userID); err != nil {
		// Lost a race against a concurrent join by the same user.
		if stderrors.Is(err, storage.ErrConflict) {
			return "", errors.FailedPrecondition("you are already a member of this watchlist")
		}
		return "", errors.Internal("redeem invite", err)
	}

	s.log.WithFields(map[string]interface{}{
		"watchlist_id": inv.WatchlistID,
		"user_id":      userID,
	}).Info("invite redeemed")
	return inv.WatchlistID, nil
}

// ForWatchlist returns the watchlist's live invite, owner only.
func (s *Service) ForWatchlist(ctx context.Context, watchlistID, userID string) (*Link, error) {
	wl, err := s.watchlists.GetWatchlist(ctx, watchlistID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("watchlist not found")
		}
		return nil, errors.Internal("load watchlist", err)
	}
	if wl.OwnerID != userID {
		return nil, errors.NotFound("watchlist not found")
	}

	inv, err := s.invites.FindValidInviteByWatchlist(ctx, watchlistID, s.now())
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("no active invite for this watchlist")
		}
		return nil, errors.Internal("load invite", err)
	}
	return s.link(inv), nil
}
