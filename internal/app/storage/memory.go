package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JulienZD/w2tch/internal/app/domain/invite"
	"github.com/JulienZD/w2tch/internal/app/domain/user"
	"github.com/JulienZD/w2tch/internal/app/domain/watchable"
	"github.com/JulienZD/w2tch/internal/app/domain/watchlist"
)

type memEntry struct {
	watchableID string
	seenOn      *time.Time
	addedAt     time.Time
}

// Memory is a thread-safe in-memory persistence layer implementing the storage
// interfaces defined in this package. It is intended for tests and prototyping
// and deliberately keeps the implementation simple.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]user.User
	watchlists map[string]watchlist.Watchlist
	watchers   map[string]map[string]time.Time // watchlist ID -> watcher ID -> joined at
	watchables map[string]watchable.Watchable
	entries    map[string][]memEntry // watchlist ID -> entries in insertion order
	invites    map[string]invite.Invite
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:      make(map[string]user.User),
		watchlists: make(map[string]watchlist.Watchlist),
		watchers:   make(map[string]map[string]time.Time),
		watchables: make(map[string]watchable.Watchable),
		entries:    make(map[string][]memEntry),
		invites:    make(map[string]invite.Invite),
	}
}

// UserStore implementation ----------------------------------------------------

func (m *Memory) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("user email %s: %w", u.Email, ErrConflict)
		}
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if _, exists := m.users[u.ID]; exists {
		return fmt.Errorf("user %s: %w", u.ID, ErrConflict)
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	m.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == email {
			clone := u
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (m *Memory) UpdateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.users[u.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
	}

	for id, existing := range m.users {
		if id != u.ID && existing.Email == u.Email {
			return fmt.Errorf("user email %s: %w", u.Email, ErrConflict)
		}
	}

	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	m.users[u.ID] = *u
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	delete(m.users, id)

	for wlID, wl := range m.watchlists {
		if wl.OwnerID == id {
			m.deleteWatchlistLocked(wlID)
			continue
		}
		delete(m.watchers[wlID], id)
	}
	return nil
}

// WatchlistStore implementation -----------------------------------------------

func (m *Memory) CreateWatchlist(_ context.Context, wl *watchlist.Watchlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if wl.ID == "" {
		wl.ID = uuid.NewString()
	} else if _, exists := m.watchlists[wl.ID]; exists {
		return fmt.Errorf("watchlist %s: %w", wl.ID, ErrConflict)
	}

	now := time.Now().UTC()
	wl.CreatedAt = now
	wl.UpdatedAt = now

	m.watchlists[wl.ID] = *wl
	m.watchers[wl.ID] = map[string]time.Time{wl.OwnerID: now}
	return nil
}

func (m *Memory) GetWatchlist(_ context.Context, id string) (*watchlist.Watchlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wl, ok := m.watchlists[id]
	if !ok {
		return nil, fmt.Errorf("watchlist %s: %w", id, ErrNotFound)
	}
	return &wl, nil
}

func (m *Memory) GetWatchlistDetails(_ context.Context, id, viewerID string) (*watchlist.Details, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wl, ok := m.watchlists[id]
	if !ok {
		return nil, fmt.Errorf("watchlist %s: %w", id, ErrNotFound)
	}

	details := watchlist.Details{
		Watchlist:   wl,
		IsOwner:     wl.OwnerID == viewerID,
		MemberCount: len(m.watchers[id]),
	}
	if owner, ok := m.users[wl.OwnerID]; ok {
		details.OwnerName = owner.Name
	}

	for _, e := range m.entries[id] {
		w, ok := m.watchables[e.watchableID]
		if !ok {
			continue
		}
		details.Entries = append(details.Entries, watchlist.Entry{
			Watchable: w,
			SeenOn:    cloneTime(e.seenOn),
			AddedAt:   e.addedAt,
		})
	}
	details.EntryCount = len(details.Entries)
	return &details, nil
}

func (m *Memory) ListWatchlistsForUser(_ context.Context, userID string) ([]watchlist.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]watchlist.Summary, 0)
	for id, members := range m.watchers {
		if _, ok := members[userID]; !ok {
			continue
		}
		wl := m.watchlists[id]
		result = append(result, watchlist.Summary{
			Watchlist:   wl,
			IsOwner:     wl.OwnerID == userID,
			MemberCount: len(members),
			EntryCount:  len(m.entries[id]),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) UpdateWatchlist(_ context.Context, wl *watchlist.Watchlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.watchlists[wl.ID]
	if !ok {
		return fmt.Errorf("watchlist %s: %w", wl.ID, ErrNotFound)
	}

	wl.OwnerID = original.OwnerID
	wl.CreatedAt = original.CreatedAt
	wl.UpdatedAt = time.Now().UTC()

	m.watchlists[wl.ID] = *wl
	return nil
}

func (m *Memory) DeleteWatchlist(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.watchlists[id]; !ok {
		return fmt.Errorf("watchlist %s: %w", id, ErrNotFound)
	}
	m.deleteWatchlistLocked(id)
	return nil
}

func (m *Memory) deleteWatchlistLocked(id string) {
	delete(m.watchlists, id)
	delete(m.watchers, id)
	delete(m.entries, id)
	for code, inv := range m.invites {
		if inv.WatchlistID == id {
			delete(m.invites, code)
		}
	}
}

func (m *Memory) IsWatcher(_ context.Context, watchlistID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.watchers[watchlistID][userID]
	return ok, nil
}

// EntryStore implementation ---------------------------------------------------

func (m *Memory) GetOrCreateWatchable(_ context.Context, w *watchable.Watchable) (*watchable.Watchable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.watchables {
		if existing.Source == w.Source && existing.ExternalID == w.ExternalID && existing.Type == w.Type {
			clone := existing
			return &clone, nil
		}
	}

	created := *w
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	m.watchables[created.ID] = created
	return &created, nil
}

func (m *Memory) AddEntry(_ context.Context, watchlistID, watchableID string, addedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.watchlists[watchlistID]; !ok {
		return fmt.Errorf("watchlist %s: %w", watchlistID, ErrNotFound)
	}
	for _, e := range m.entries[watchlistID] {
		if e.watchableID == watchableID {
			return fmt.Errorf("entry %s on %s: %w", watchableID, watchlistID, ErrConflict)
		}
	}

	m.entries[watchlistID] = append(m.entries[watchlistID], memEntry{
		watchableID: watchableID,
		addedAt:     addedAt,
	})
	return nil
}

func (m *Memory) SetEntrySeen(_ context.Context, watchlistID, watchableID string, seenOn *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries[watchlistID] {
		if e.watchableID == watchableID {
			m.entries[watchlistID][i].seenOn = cloneTime(seenOn)
			return nil
		}
	}
	return fmt.Errorf("entry %s on %s: %w", watchableID, watchlistID, ErrNotFound)
}

func (m *Memory) RemoveEntry(_ context.Context, watchlistID, watchableID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.entries[watchlistID]
	for i, e := range entries {
		if e.watchableID == watchableID {
			m.entries[watchlistID] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("entry %s on %s: %w", watchableID, watchlistID, ErrNotFound)
}

// InviteStore implementation --------------------------------------------------

func (m *Memory) CreateInvite(_ context.Context, inv *invite.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.invites[inv.Code]; exists {
		return fmt.Errorf("invite code %s: %w", inv.Code, ErrConflict)
	}
	if _, ok := m.watchlists[inv.WatchlistID]; !ok {
		return fmt.Errorf("watchlist %s: %w", inv.WatchlistID, ErrNotFound)
	}
	for _, existing := range m.invites {
		if existing.WatchlistID == inv.WatchlistID {
			return fmt.Errorf("invite for watchlist %s: %w", inv.WatchlistID, ErrConflict)
		}
	}

	inv.CreatedAt = time.Now().UTC()
	m.invites[inv.Code] = *inv
	return nil
}

func (m *Memory) DeleteInviteByWatchlist(_ context.Context, watchlistID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for code, inv := range m.invites {
		if inv.WatchlistID == watchlistID {
			delete(m.invites, code)
		}
	}
	return nil
}

func (m *Memory) GetInviteByCode(_ context.Context, code string) (*invite.Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invites[code]
	if !ok {
		return nil, fmt.Errorf("invite %s: %w", code, ErrNotFound)
	}
	clone := cloneInvite(inv)
	return &clone, nil
}

func (m *Memory) FindValidInviteByCode(_ context.Context, code string, now time.Time) (*invite.Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invites[code]
	if !ok || !inv.IsValidAt(now) {
		return nil, fmt.Errorf("invite %s: %w", code, ErrNotFound)
	}
	clone := cloneInvite(inv)
	return &clone, nil
}

func (m *Memory) FindValidInviteByWatchlist(_ context.Context, watchlistID string, now time.Time) (*invite.Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, inv := range m.invites {
		if inv.WatchlistID == watchlistID && inv.IsValidAt(now) {
			clone := cloneInvite(inv)
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("invite for watchlist %s: %w", watchlistID, ErrNotFound)
}

func (m *Memory) RedeemInvite(_ context.Context, code, watcherID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[code]
	if !ok {
		return fmt.Errorf("invite %s: %w", code, ErrNotFound)
	}

	members, ok := m.watchers[inv.WatchlistID]
	if !ok {
		return fmt.Errorf("watchlist %s: %w", inv.WatchlistID, ErrNotFound)
	}
	if _, exists := members[watcherID]; exists {
		return fmt.Errorf("watcher %s on %s: %w", watcherID, inv.WatchlistID, ErrConflict)
	}

	members[watcherID] = time.Now().UTC()
	inv.Uses++
	m.invites[code] = inv
	return nil
}

// Helpers ---------------------------------------------------------------------

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

func cloneInvite(inv invite.Invite) invite.Invite {
	inv.MaxUses = cloneInt(inv.MaxUses)
	return inv
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
