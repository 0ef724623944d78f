// Package app wires the stores and services into a running application.
package app

import (
	"github.com/JulienZD/w2tch/internal/app/services/invites"
	"github.com/JulienZD/w2tch/internal/app/services/search"
	"github.com/JulienZD/w2tch/internal/app/services/users"
	"github.com/JulienZD/w2tch/internal/app/services/watchlists"
	"github.com/JulienZD/w2tch/internal/app/storage"
	"github.com/JulienZD/w2tch/pkg/logger"
)

// Stores bundles the persistence interfaces. Nil fields fall back to a shared
// in-memory store, which keeps tests and local development free of external
// dependencies.
type Stores struct {
	Users      storage.UserStore
	Watchlists storage.WatchlistStore
	Entries    storage.EntryStore
	Invites    storage.InviteStore
}

// Deps are the application's external collaborators.
type Deps struct {
	Stores        Stores
	Metadata      watchlists.MetadataFinder
	Search        search.Provider
	InviteBaseURL string
	Logger        *logger.Logger
}

// Application exposes the service layer.
type Application struct {
	Users      *users.Service
	Watchlists *watchlists.Service
	Invites    *invites.Service
	Search     *search.Service
}

// New builds the application, filling in in-memory defaults for any store
// left nil.
func New(deps Deps) *Application {
	log := deps.Logger
	if log == nil {
		log = logger.NewDefault("app")
	}

	var fallback *storage.Memory
	memory := func() *storage.Memory {
		if fallback == nil {
			fallback = storage.NewMemory()
		}
		return fallback
	}

	stores := deps.Stores
	if stores.Users == nil {
		stores.Users = memory()
	}
	if stores.Watchlists == nil {
		stores.Watchlists = memory()
	}
	if stores.Entries == nil {
		stores.Entries = memory()
	}
	if stores.Invites == nil {
		stores.Invites = memory()
	}

	baseURL := deps.InviteBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &Application{
		Users:      users.New(stores.Users, log.WithField("service", "users")),
		Watchlists: watchlists.New(stores.Watchlists, stores.Entries, deps.Metadata, log.WithField("service", "watchlists")),
		Invites:    invites.New(stores.Invites, stores.Watchlists, stores.Users, baseURL, log.WithField("service", "invites")),
		Search:     search.New(deps.Search, log.WithField("service", "search")),
	}
}
