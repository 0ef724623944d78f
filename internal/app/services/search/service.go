// Package search implements title search across movies and TV shows.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/JulienZD/w2tch/internal/errors"
	"github.com/JulienZD/w2tch/internal/tmdb"
	"github.com/JulienZD/w2tch/pkg/logger"
)

const minQueryLength = 2

// Provider looks up titles in an external catalog.
type Provider interface {
	Search(ctx context.Context, query string) ([]tmdb.Result, error)
}

// Service provides title search.
type Service struct {
	provider Provider
	log      *logger.Logger
}

// New creates the search service.
func New(provider Provider, log *logger.Logger) *Service {
	return &Service{provider: provider, log: log}
}

// Search returns matching titles, most popular first, with titles starting
// with the query ahead of the rest.
func (s *Service) Search(ctx context.Context, query string) ([]tmdb.Result, error) {
	query = strings.TrimSpace(query)
	if len(query) < minQueryLength {
		return nil, errors.Validation("invalid search", []string{"query must be at least 2 characters"})
	}

	results, err := s.provider.Search(ctx, query)
	if err != nil {
		return nil, errors.Internal("search titles", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Popularity > results[j].Popularity
	})

	lowered := strings.ToLower(query)
	sort.SliceStable(results, func(i, j int) bool {
		iPrefix := strings.HasPrefix(strings.ToLower(results[i].Name), lowered)
		jPrefix := strings.HasPrefix(strings.ToLower(results[j].Name), lowered)
		return iPrefix && !jPrefix
	})

	return results, nil
}
