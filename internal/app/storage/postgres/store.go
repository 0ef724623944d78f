// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/JulienZD/w2tch/internal/app/domain/invite"
	"github.com/JulienZD/w2tch/internal/app/domain/user"
	"github.com/JulienZD/w2tch/internal/app/domain/watchable"
	"github.com/JulienZD/w2tch/internal/app/domain/watchlist"
	"github.com/JulienZD/w2tch/internal/app/storage"
)

const uniqueViolation = "23505"

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.WatchlistStore = (*Store)(nil)
var _ storage.EntryStore = (*Store)(nil)
var _ storage.InviteStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// mapError translates driver errors into the storage sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w", storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pqErr.Constraint, storage.ErrConflict)
	}
	return err
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return mapError(err)
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, updated_at = $5
		WHERE id = $1
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM users WHERE id = $1
	`, id)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

// --- WatchlistStore ---------------------------------------------------------

func (s *Store) CreateWatchlist(ctx context.Context, wl *watchlist.Watchlist) error {
	if wl.ID == "" {
		wl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	wl.CreatedAt = now
	wl.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO watchlists (id, name, owner_id, is_visible_to_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, wl.ID, wl.Name, wl.OwnerID, wl.IsVisibleToPublic, wl.CreatedAt, wl.UpdatedAt); err != nil {
		return mapError(err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO watchers_on_watchlists (watchlist_id, watcher_id, joined_at)
		VALUES ($1, $2, $3)
	`, wl.ID, wl.OwnerID, now); err != nil {
		return mapError(err)
	}

	return tx.Commit()
}

func (s *Store) GetWatchlist(ctx context.Context, id string) (*watchlist.Watchlist, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, is_visible_to_public, created_at, updated_at
		FROM watchlists
		WHERE id = $1
	`, id)

	var wl watchlist.Watchlist
	if err := row.Scan(&wl.ID, &wl.Name, &wl.OwnerID, &wl.IsVisibleToPublic, &wl.CreatedAt, &wl.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &wl, nil
}

func (s *Store) GetWatchlistDetails(ctx context.Context, id, viewerID string) (*watchlist.Details, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT w.id, w.name, w.owner_id, w.is_visible_to_public, w.created_at, w.updated_at,
		       u.name,
		       (SELECT COUNT(*) FROM watchers_on_watchlists m WHERE m.watchlist_id = w.id)
		FROM watchlists w
		JOIN users u ON u.id = w.owner_id
		WHERE w.id = $1
	`, id)

	var details watchlist.Details
	if err := row.Scan(
		&details.ID, &details.Name, &details.OwnerID, &details.IsVisibleToPublic,
		&details.CreatedAt, &details.UpdatedAt,
		&details.OwnerName, &details.MemberCount,
	); err != nil {
		return nil, mapError(err)
	}
	details.IsOwner = details.OwnerID == viewerID

	rows, err := s.db.QueryContext(ctx, `
		SELECT wa.id, wa.source, wa.external_id, wa.type, wa.name, wa.rating, wa.image, wa.runtime,
		       wa.created_at, wa.updated_at,
		       e.seen_on, e.added_at
		FROM watchables_on_watchlists e
		JOIN watchables wa ON wa.id = e.watchable_id
		WHERE e.watchlist_id = $1
		ORDER BY e.added_at
	`, id)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry  watchlist.Entry
			seenOn sql.NullTime
		)
		if err := rows.Scan(
			&entry.Watchable.ID, &entry.Watchable.Source, &entry.Watchable.ExternalID,
			&entry.Watchable.Type, &entry.Watchable.Name, &entry.Watchable.Rating,
			&entry.Watchable.Image, &entry.Watchable.Runtime,
			&entry.Watchable.CreatedAt, &entry.Watchable.UpdatedAt,
			&seenOn, &entry.AddedAt,
		); err != nil {
			return nil, mapError(err)
		}
		if seenOn.Valid {
			t := seenOn.Time.UTC()
			entry.SeenOn = &t
		}
		details.Entries = append(details.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	details.EntryCount = len(details.Entries)
	return &details, nil
}

func (s *Store) ListWatchlistsForUser(ctx context.Context, userID string) ([]watchlist.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.owner_id, w.is_visible_to_public, w.created_at, w.updated_at,
		       (SELECT COUNT(*) FROM watchers_on_watchlists m2 WHERE m2.watchlist_id = w.id),
		       (SELECT COUNT(*) FROM watchables_on_watchlists e WHERE e.watchlist_id = w.id)
		FROM watchlists w
		JOIN watchers_on_watchlists m ON m.watchlist_id = w.id
		WHERE m.watcher_id = $1
		ORDER BY w.created_at
	`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []watchlist.Summary
	for rows.Next() {
		var summary watchlist.Summary
		if err := rows.Scan(
			&summary.ID, &summary.Name, &summary.OwnerID, &summary.IsVisibleToPublic,
			&summary.CreatedAt, &summary.UpdatedAt,
			&summary.MemberCount, &summary.EntryCount,
		); err != nil {
			return nil, mapError(err)
		}
		summary.IsOwner = summary.OwnerID == userID
		result = append(result, summary)
	}
	return result, rows.Err()
}

func (s *Store) UpdateWatchlist(ctx context.Context, wl *watchlist.Watchlist) error {
	wl.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE watchlists
		SET name = $2, is_visible_to_public = $3, updated_at = $4
		WHERE id = $1
	`, wl.ID, wl.Name, wl.IsVisibleToPublic, wl.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func (s *Store) DeleteWatchlist(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlists WHERE id = $1
	`, id)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func (s *Store) IsWatcher(ctx context.Context, watchlistID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM watchers_on_watchlists
			WHERE watchlist_id = $1 AND watcher_id = $2
		)
	`, watchlistID, userID).Scan(&exists)
	if err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

// --- EntryStore -------------------------------------------------------------

func (s *Store) GetOrCreateWatchable(ctx context.Context, w *watchable.Watchable) (*watchable.Watchable, error) {
	existing, err := s.findWatchable(ctx, w.Source, w.ExternalID, w.Type)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	created := *w
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO watchables (id, source, external_id, type, name, rating, image, runtime, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, created.ID, created.Source, created.ExternalID, created.Type, created.Name,
		created.Rating, created.Image, created.Runtime, created.CreatedAt, created.UpdatedAt)
	if err = mapError(err); err != nil {
		// Lost the insert race; the row exists now.
		if errors.Is(err, storage.ErrConflict) {
			return s.findWatchable(ctx, w.Source, w.ExternalID, w.Type)
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) findWatchable(ctx context.Context, source, externalID string, typ watchable.Type) (*watchable.Watchable, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, external_id, type, name, rating, image, runtime, created_at, updated_at
		FROM watchables
		WHERE source = $1 AND external_id = $2 AND type = $3
	`, source, externalID, typ)

	var w watchable.Watchable
	if err := row.Scan(&w.ID, &w.Source, &w.ExternalID, &w.Type, &w.Name, &w.Rating, &w.Image, &w.Runtime, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &w, nil
}

func (s *Store) AddEntry(ctx context.Context, watchlistID, watchableID string, addedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watchables_on_watchlists (watchlist_id, watchable_id, added_at)
		VALUES ($1, $2, $3)
	`, watchlistID, watchableID, addedAt.UTC())
	return mapError(err)
}

func (s *Store) SetEntrySeen(ctx context.Context, watchlistID, watchableID string, seenOn *time.Time) error {
	var value sql.NullTime
	if seenOn != nil {
		value = sql.NullTime{Time: seenOn.UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE watchables_on_watchlists
		SET seen_on = $3
		WHERE watchlist_id = $1 AND watchable_id = $2
	`, watchlistID, watchableID, value)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func (s *Store) RemoveEntry(ctx context.Context, watchlistID, watchableID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM watchables_on_watchlists
		WHERE watchlist_id = $1 AND watchable_id = $2
	`, watchlistID, watchableID)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

// --- InviteStore ------------------------------------------------------------

func (s *Store) CreateInvite(ctx context.Context, inv *invite.Invite) error {
	inv.CreatedAt = time.Now().UTC()

	var maxUses sql.NullInt64
	if inv.MaxUses != nil {
		maxUses = sql.NullInt64{Int64: int64(*inv.MaxUses), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watchlist_invites (code, watchlist_id, valid_until, max_uses, uses, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inv.Code, inv.WatchlistID, inv.ValidUntil.UTC(), maxUses, inv.Uses, inv.CreatedAt)
	return mapError(err)
}

func (s *Store) DeleteInviteByWatchlist(ctx context.Context, watchlistID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlist_invites WHERE watchlist_id = $1
	`, watchlistID)
	return mapError(err)
}

func (s *Store) GetInviteByCode(ctx context.Context, code string) (*invite.Invite, error) {
	return s.scanInvite(s.db.QueryRowContext(ctx, `
		SELECT code, watchlist_id, valid_until, max_uses, uses, created_at
		FROM watchlist_invites
		WHERE code = $1
	`, code))
}

func (s *Store) FindValidInviteByCode(ctx context.Context, code string, now time.Time) (*invite.Invite, error) {
	return s.scanInvite(s.db.QueryRowContext(ctx, `
		SELECT code, watchlist_id, valid_until, max_uses, uses, created_at
		FROM watchlist_invites
		WHERE code = $1
		  AND valid_until >= $2
		  AND (max_uses IS NULL OR uses < max_uses)
	`, code, now.UTC()))
}

func (s *Store) FindValidInviteByWatchlist(ctx context.Context, watchlistID string, now time.Time) (*invite.Invite, error) {
	return s.scanInvite(s.db.QueryRowContext(ctx, `
		SELECT code, watchlist_id, valid_until, max_uses, uses, created_at
		FROM watchlist_invites
		WHERE watchlist_id = $1
		  AND valid_until >= $2
		  AND (max_uses IS NULL OR uses < max_uses)
	`, watchlistID, now.UTC()))
}

func (s *Store) scanInvite(row *sql.Row) (*invite.Invite, error) {
	var (
		inv     invite.Invite
		maxUses sql.NullInt64
	)
	if err := row.Scan(&inv.Code, &inv.WatchlistID, &inv.ValidUntil, &maxUses, &inv.Uses, &inv.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	if maxUses.Valid {
		v := int(maxUses.Int64)
		inv.MaxUses = &v
	}
	return &inv, nil
}

func (s *Store) RedeemInvite(ctx context.Context, code, watcherID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var watchlistID string
	if err := tx.QueryRowContext(ctx, `
		SELECT watchlist_id FROM watchlist_invites WHERE code = $1 FOR UPDATE
	`, code).Scan(&watchlistID); err != nil {
		return mapError(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO watchers_on_watchlists (watchlist_id, watcher_id, joined_at)
		VALUES ($1, $2, $3)
	`, watchlistID, watcherID, time.Now().UTC()); err != nil {
		return mapError(err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE watchlist_invites SET uses = uses + 1 WHERE code = $1
	`, code); err != nil {
		return mapError(err)
	}

	return tx.Commit()
}
