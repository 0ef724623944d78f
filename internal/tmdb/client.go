// Package tmdb is a client for The Movie Database v3 API. It backs title
// search and metadata lookups; upstream failures degrade to empty results so
// the API stays up when TMDB is not.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/JulienZD/w2tch/internal/app/domain/watchable"
	"github.com/JulienZD/w2tch/pkg/logger"
)

const (
	imageBaseURL   = "https://image.tmdb.org/t/p/w185"
	requestTimeout = 10 * time.Second
	searchCacheTTL = 10 * time.Minute
)

// Result is a single search hit.
type Result struct {
	ExternalID string
	Type       watchable.Type
	Name       string
	Rating     float64
	Image      string
	Popularity float64
}

// Cache stores serialized search responses. See NewRedisCache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// NoopCache satisfies Cache without storing anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (NoopCache) Set(context.Context, string, []byte, time.Duration) {}

// Config holds client settings.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client talks to the TMDB API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker
	cache      Cache
	log        *logger.Logger
}

// New creates a Client. A nil cache disables caching.
func New(cfg Config, cache Cache, log *logger.Logger) *Client {
	if cache == nil {
		cache = NoopCache{}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "tmdb",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		breaker:    breaker,
		cache:      cache,
		log:        log,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	body, err := c.breaker.Execute(func() (interface{}, error) {
		query.Set("api_key", c.apiKey)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return []byte(nil), nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("tmdb: unexpected status %d for %s", resp.StatusCode, path)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

type movieResult struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
	Popularity  float64 `json:"popularity"`
}

type tvResult struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
	Popularity  float64 `json:"popularity"`
}

func imageURL(posterPath string) string {
	if posterPath == "" {
		return ""
	}
	return imageBaseURL + posterPath
}

// SearchMovies returns movies matching the query. Upstream errors yield an
// empty slice.
func (c *Client) SearchMovies(ctx context.Context, query string) []Result {
	body, err := c.get(ctx, "/search/movie", url.Values{"query": {query}})
	if err != nil {
		c.log.WithError(err).Warn("tmdb movie search failed")
		return nil
	}

	var payload struct {
		Results []movieResult `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.log.WithError(err).Warn("tmdb movie search returned malformed payload")
		return nil
	}

	results := make([]Result, 0, len(payload.Results))
	for _, m := range payload.Results {
		results = append(results, Result{
			ExternalID: strconv.Itoa(m.ID),
			Type:       watchable.TypeMovie,
			Name:       m.Title,
			Rating:     m.VoteAverage,
			Image:      imageURL(m.PosterPath),
			Popularity: m.Popularity,
		})
	}
	return results
}

// SearchTVShows returns TV shows matching the query. Upstream errors yield an
// empty slice.
func (c *Client) SearchTVShows(ctx context.Context, query string) []Result {
	body, err := c.get(ctx, "/search/tv", url.Values{"query": {query}})
	if err != nil {
		c.log.WithError(err).Warn("tmdb tv search failed")
		return nil
	}

	var payload struct {
		Results []tvResult `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.log.WithError(err).Warn("tmdb tv search returned malformed payload")
		return nil
	}

	results := make([]Result, 0, len(payload.Results))
	for _, t := range payload.Results {
		results = append(results, Result{
			ExternalID: strconv.Itoa(t.ID),
			Type:       watchable.TypeTVShow,
			Name:       t.Name,
			Rating:     t.VoteAverage,
			Image:      imageURL(t.PosterPath),
			Popularity: t.Popularity,
		})
	}
	return results
}

// Search returns movies and TV shows matching the query, consulting the cache
// first.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	cacheKey := "tmdb:search:" + query
	if cached, ok := c.cache.Get(ctx, cacheKey); ok {
		var results []Result
		if err := json.Unmarshal(cached, &results); err == nil {
			return results, nil
		}
	}

	results := append(c.SearchMovies(ctx, query), c.SearchTVShows(ctx, query)...)

	if encoded, err := json.Marshal(results); err == nil {
		c.cache.Set(ctx, cacheKey, encoded, searchCacheTTL)
	}
	return results, nil
}

type movieDetail struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
	Runtime     int     `json:"runtime"`
}

type tvDetail struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	VoteAverage    float64 `json:"vote_average"`
	PosterPath     string  `json:"poster_path"`
	EpisodeRunTime []int   `json:"episode_run_time"`
}

// Find looks up a single title by its TMDB ID. A missing title returns
// (nil, nil).
func (c *Client) Find(ctx context.Context, externalID string, typ watchable.Type) (*watchable.Watchable, error) {
	var path string
	switch typ {
	case watchable.TypeMovie:
		path = "/movie/" + externalID
	case watchable.TypeTVShow:
		path = "/tv/" + externalID
	default:
		return nil, fmt.Errorf("tmdb: unsupported type %q", typ)
	}

	body, err := c.get(ctx, path, url.Values{})
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	if typ == watchable.TypeMovie {
		var detail movieDetail
		if err := json.Unmarshal(body, &detail); err != nil {
			return nil, fmt.Errorf("tmdb: decode movie detail: %w", err)
		}
		return &watchable.Watchable{
			Source:     watchable.SourceTMDB,
			ExternalID: strconv.Itoa(detail.ID),
			Type:       watchable.TypeMovie,
			Name:       detail.Title,
			Rating:     detail.VoteAverage,
			Image:      imageURL(detail.PosterPath),
			Runtime:    detail.Runtime,
		}, nil
	}

	var detail tvDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("tmdb: decode tv detail: %w", err)
	}
	runtime := 0
	if len(detail.EpisodeRunTime) > 0 {
		runtime = detail.EpisodeRunTime[0]
	}
	return &watchable.Watchable{
		Source:     watchable.SourceTMDB,
		ExternalID: strconv.Itoa(detail.ID),
		Type:       watchable.TypeTVShow,
		Name:       detail.Name,
		Rating:     detail.VoteAverage,
		Image:      imageURL(detail.PosterPath),
		Runtime:    runtime,
	}, nil
}
