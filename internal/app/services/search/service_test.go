package search

import (
	"context"
	"testing"

	"github.com/JulienZD/w2tch/internal/app/domain/watchable"
	"github.com/JulienZD/w2tch/internal/errors"
	"github.com/JulienZD/w2tch/internal/tmdb"
	"github.com/JulienZD/w2tch/pkg/logger"
)

type stubProvider struct {
	results []tmdb.Result
}

func (p *stubProvider) Search(context.Context, string) ([]tmdb.Result, error) {
	return p.results, nil
}

func TestSearchRejectsShortQueries(t *testing.T) {
	svc := New(&stubProvider{}, logger.NewDefault("test"))

	for _, query := range []string{"", "a", " a "} {
		_, err := svc.Search(context.Background(), query)
		svcErr, ok := errors.GetServiceError(err)
		if !ok || svcErr.Code != errors.CodeValidation {
			t.Fatalf("expected validation error for %q, got %v", query, err)
		}
	}
}

func TestSearchOrdersByPrefixThenPopularity(t *testing.T) {
	provider := &stubProvider{results: []tmdb.Result{
		{Name: "The Karate Kid", Type: watchable.TypeMovie, Popularity: 90},
		{Name: "Kid Cosmic", Type: watchable.TypeTVShow, Popularity: 10},
		{Name: "Kidnapped", Type: watchable.TypeMovie, Popularity: 50},
	}}
	svc := New(provider, logger.NewDefault("test"))

	results, err := svc.Search(context.Background(), "kid")
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	want := []string{"Kidnapped", "Kid Cosmic", "The Karate Kid"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, name := range want {
		if results[i].Name != name {
			t.Fatalf("position %d: expected %q, got %q", i, name, results[i].Name)
		}
	}
}
