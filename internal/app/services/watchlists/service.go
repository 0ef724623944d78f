// Package watchlists implements watchlist CRUD and entry management.
package watchlists

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/JulienZD/w2tch/internal/app/domain/watchable"
	"github.com/JulienZD/w2tch/internal/app/domain/watchlist"
	"github.com/JulienZD/w2tch/internal/app/storage"
	"github.com/JulienZD/w2tch/internal/errors"
	"github.com/JulienZD/w2tch/pkg/logger"
)

// MetadataFinder resolves a single movie or TV show by its external ID.
type MetadataFinder interface {
	Find(ctx context.Context, externalID string, typ watchable.Type) (*watchable.Watchable, error)
}

// Service provides watchlist operations.
type Service struct {
	watchlists storage.WatchlistStore
	entries    storage.EntryStore
	metadata   MetadataFinder
	log        *logger.Logger
	now        func() time.Time
}

// New creates the watchlists service.
func New(watchlists storage.WatchlistStore, entries storage.EntryStore, metadata MetadataFinder, log *logger.Logger) *Service {
	return &Service{
		watchlists: watchlists,
		entries:    entries,
		metadata:   metadata,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create makes a new watchlist owned by the user. The owner becomes its first
// member.
func (s *Service) Create(ctx context.Context, ownerID, name string) (*watchlist.Watchlist, error) {
	if violations := watchlist.ValidateName(name); len(violations) > 0 {
		return nil, errors.Validation("invalid watchlist", violations)
	}

	wl := &watchlist.Watchlist{Name: name, OwnerID: ownerID}
	if err := s.watchlists.CreateWatchlist(ctx, wl); err != nil {
		return nil, errors.Internal("create watchlist", err)
	}

	s.log.WithField("watchlist_id", wl.ID).Info("watchlist created")
	return wl, nil
}

// List returns every watchlist the user is a member of.
func (s *Service) List(ctx context.Context, userID string) ([]watchlist.Summary, error) {
	summaries, err := s.watchlists.ListWatchlistsForUser(ctx, userID)
	if err != nil {
		return nil, errors.Internal("list watchlists", err)
	}
	return summaries, nil
}

// Get returns the watchlist with its entries. Non-members only see it when it
// is public; otherwise it appears not to exist.
func (s *Service) Get(ctx context.Context, id, viewerID string) (*watchlist.Details, error) {
	details, err := s.watchlists.GetWatchlistDetails(ctx, id, viewerID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("watchlist not found")
		}
		return nil, errors.Internal("load watchlist", err)
	}

	if !details.IsOwner && !details.IsVisibleToPublic {
		member, err := s.watchlists.IsWatcher(ctx, id, viewerID)
		if err != nil {
			return nil, errors.Internal("check membership", err)
		}
		if !member {
			return nil, errors.NotFound("watchlist not found")
		}
	}
	return details, nil
}

// UpdateInput carries the fields of a watchlist update. Nil fields are left
// unchanged.
type UpdateInput struct {
	Name              *string
	IsVisibleToPublic *bool
}

// Update modifies the watchlist. Only the owner may update it; everyone else
// gets a not found.
func (s *Service) Update(ctx context.Context, id, userID string, in UpdateInput) (*watchlist.Watchlist, error) {
	wl, err := s.requireOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if violations := watchlist.ValidateName(*in.Name); len(violations) > 0 {
			return nil, errors.Validation("invalid watchlist", violations)
		}
		wl.Name = *in.Name
	}
	if in.IsVisibleToPublic != nil {
		wl.IsVisibleToPublic = *in.IsVisibleToPublic
	}

	if err := s.watchlists.UpdateWatchlist(ctx, wl); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("watchlist not found")
		}
		return nil, errors.Internal("update watchlist", err)
	}
	return wl, nil
}

// Delete removes the watchlist with its entries, memberships and invite.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.requireOwned(ctx, id, userID); err != nil {
		return err
	}
	if err := s.watchlists.DeleteWatchlist(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("watchlist not found")
		}
		return errors.Internal("delete watchlist", err)
	}
	s.log.WithField("watchlist_id", id).Info("watchlist deleted")
	return nil
}

// AddEntry looks up the item's metadata and puts it on the watchlist. Any
// member may add entries.
func (s *Service) AddEntry(ctx context.Context, watchlistID, userID, externalID string, typ watchable.Type) (*watchlist.Entry, error) {
	if err := s.requireMember(ctx, watchlistID, userID); err != nil {
		return nil, err
	}

	found, err := s.metadata.Find(ctx, externalID, typ)
	if err != nil {
		return nil, errors.Internal("look up metadata", err)
	}
	if found == nil {
		return nil, errors.NotFound("title not found")
	}

	w, err := s.entries.GetOrCreateWatchable(ctx, found)
	if err != nil {
		return nil, errors.Internal("store watchable", err)
	}

	addedAt := s.now()
	if err := s.entries.AddEntry(ctx, watchlistID, w.ID, addedAt); err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return nil, errors.Conflict("title is already on this watchlist")
		}
		return nil, errors.Internal("add entry", err)
	}
	return &watchlist.Entry{Watchable: *w, AddedAt: addedAt}, nil
}

// SetSeen marks or unmarks an entry as watched.
func (s *Service) SetSeen(ctx context.Context, watchlistID, userID, watchableID string, seen bool) error {
	if err := s.requireMember(ctx, watchlistID, userID); err != nil {
		return err
	}

	var seenOn *time.Time
	if seen {
		t := s.now()
		seenOn = &t
	}
	if err := s.entries.SetEntrySeen(ctx, watchlistID, watchableID, seenOn); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("entry not found")
		}
		return errors.Internal("update entry", err)
	}
	return nil
}

// RemoveEntry takes an entry off the watchlist.
func (s *Service) RemoveEntry(ctx context.Context, watchlistID, userID, watchableID string) error {
	if err := s.requireMember(ctx, watchlistID, userID); err != nil {
		return err
	}
	if err := s.entries.RemoveEntry(ctx, watchlistID, watchableID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("entry not found")
		}
		return errors.Internal("remove entry", err)
	}
	return nil
}

// requireOwned loads the watchlist and hides it from non-owners.
func (s *Service) requireOwned(ctx context.Context, id, userID string) (*watchlist.Watchlist, error) {
	wl, err := s.watchlists.GetWatchlist(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("watchlist not found")
		}
		return nil, errors.Internal("load watchlist", err)
	}
	if wl.OwnerID != userID {
		return nil, errors.NotFound("watchlist not found")
	}
	return wl, nil
}

// requireMember hides the watchlist from non-members.
func (s *Service) requireMember(ctx context.Context, watchlistID, userID string) error {
	member, err := s.watchlists.IsWatcher(ctx, watchlistID, userID)
	if err != nil {
		return errors.Internal("check membership", err)
	}
	if !member {
		return errors.NotFound("watchlist not found")
	}
	return nil
}
