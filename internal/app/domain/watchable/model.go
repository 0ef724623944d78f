// Package watchable holds the media item model shared by watchlists and
// metadata lookups.
package watchable

import (
	"fmt"
	"time"
)

// Type distinguishes movies from TV shows.
type Type string

const (
	TypeMovie  Type = "MOVIE"
	TypeTVShow Type = "TV_SHOW"
)

// SourceTMDB marks items whose external ID refers to The Movie Database.
const SourceTMDB = "TMDB"

// ParseType validates a raw type string.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypeMovie, TypeTVShow:
		return Type(raw), nil
	default:
		return "", fmt.Errorf("unknown watchable type %q", raw)
	}
}

// Watchable is a movie or TV show. The (Source, ExternalID, Type) triple is
// unique; the same item added to many watchlists shares one row.
type Watchable struct {
	ID         string
	Source     string
	ExternalID string
	Type       Type
	Name       string
	Rating     float64
	Image      string
	Runtime    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
