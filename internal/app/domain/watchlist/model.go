// Package watchlist holds the watchlist and entry models.
package watchlist

import (
	"fmt"
	"time"

	"github.com/JulienZD/w2tch/internal/app/domain/watchable"
)

// MaxNameLength bounds watchlist names.
const MaxNameLength = 100

// Watchlist is a named collection of watchables owned by one user.
type Watchlist struct {
	ID                string
	Name              string
	OwnerID           string
	IsVisibleToPublic bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Summary is a watchlist as shown in listings, with counts relative to the
// viewing user.
type Summary struct {
	Watchlist
	IsOwner     bool
	MemberCount int
	EntryCount  int
}

// Entry is a watchable on a watchlist with its watch state.
type Entry struct {
	Watchable watchable.Watchable
	SeenOn    *time.Time
	AddedAt   time.Time
}

// Details is a fully loaded watchlist including its entries.
type Details struct {
	Watchlist
	OwnerName   string
	IsOwner     bool
	MemberCount int
	EntryCount  int
	Entries     []Entry
}

// ValidateName returns the list of violations for a watchlist name.
func ValidateName(name string) []string {
	var violations []string
	if name == "" {
		violations = append(violations, "name is required")
	}
	if len(name) > MaxNameLength {
		violations = append(violations, fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	return violations
}
