// Package httpapi exposes the application services over REST.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/JulienZD/w2tch/internal/app"
	"github.com/JulienZD/w2tch/internal/app/domain/invite"
	"github.com/JulienZD/w2tch/internal/app/domain/watchable"
	"github.com/JulienZD/w2tch/internal/app/services/users"
	"github.com/JulienZD/w2tch/internal/app/services/watchlists"
	"github.com/JulienZD/w2tch/internal/errors"
	"github.com/JulienZD/w2tch/internal/metrics"
	"github.com/JulienZD/w2tch/internal/middleware"
	"github.com/JulienZD/w2tch/pkg/logger"
)

// Options configure the router beyond the application itself.
type Options struct {
	Auth        *middleware.Auth
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
	RateLimiter *middleware.RateLimiter
	CORS        *middleware.CORS
	AuditFile   string
	// HealthCheck is probed by the health endpoint, typically a database
	// ping.
	HealthCheck func(ctx context.Context) error
}

type handler struct {
	app         *app.Application
	auth        *middleware.Auth
	stats       *metrics.Metrics
	audit       *auditLog
	log         *logger.Logger
	healthCheck func(ctx context.Context) error
}

// NewRouter builds the REST API router with its middleware chain.
func NewRouter(application *app.Application, opts Options) (http.Handler, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(opts.AuditFile)
	if err != nil {
		return nil, err
	}

	h := &handler{
		app:         application,
		auth:        opts.Auth,
		stats:       opts.Metrics,
		audit:       newAuditLog(0, sink),
		log:         log,
		healthCheck: opts.HealthCheck,
	}

	router := mux.NewRouter()
	router.Use(middleware.Logging(log))
	if opts.Metrics != nil {
		router.Use(middleware.Metrics(opts.Metrics))
	}

	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/auth/signup", h.signup).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/invites/{code}", h.invitePreview).Methods(http.MethodGet)

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(h.auth.Handler)
	protected.HandleFunc("/me", h.me).Methods(http.MethodGet)
	protected.HandleFunc("/me", h.updateMe).Methods(http.MethodPatch)
	protected.HandleFunc("/me", h.deleteMe).Methods(http.MethodDelete)
	protected.HandleFunc("/watchlists", h.listWatchlists).Methods(http.MethodGet)
	protected.HandleFunc("/watchlists", h.createWatchlist).Methods(http.MethodPost)
	protected.HandleFunc("/watchlists/{id}", h.getWatchlist).Methods(http.MethodGet)
	protected.HandleFunc("/watchlists/{id}", h.updateWatchlist).Methods(http.MethodPatch)
	protected.HandleFunc("/watchlists/{id}", h.deleteWatchlist).Methods(http.MethodDelete)
	protected.HandleFunc("/watchlists/{id}/entries", h.addEntry).Methods(http.MethodPost)
	protected.HandleFunc("/watchlists/{id}/entries/{entryID}", h.updateEntry).Methods(http.MethodPatch)
	protected.HandleFunc("/watchlists/{id}/entries/{entryID}", h.removeEntry).Methods(http.MethodDelete)
	protected.HandleFunc("/watchlists/{id}/invite", h.currentInvite).Methods(http.MethodGet)
	protected.HandleFunc("/watchlists/{id}/invite", h.createInvite).Methods(http.MethodPost)
	protected.HandleFunc("/invites/{code}/join", h.joinInvite).Methods(http.MethodPost)
	protected.HandleFunc("/search", h.search).Methods(http.MethodGet)
	protected.HandleFunc("/audit", h.auditEvents).Methods(http.MethodGet)

	var wrapped http.Handler = router
	if opts.RateLimiter != nil {
		wrapped = opts.RateLimiter.Handler(wrapped)
	}
	if opts.CORS != nil {
		wrapped = opts.CORS.Handler(wrapped)
	}
	return wrapped, nil
}

// --- auth -------------------------------------------------------------------

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Validation("invalid request body", nil))
		return
	}

	account, err := h.app.Users.Signup(r.Context(), users.SignupInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	token, err := h.auth.IssueToken(account.ID)
	if err != nil {
		h.writeError(w, errors.Internal("issue token", err))
		return
	}

	h.audit.add(auditEntry{
		Time:       time.Now().UTC(),
		User:       account.ID,
		Action:     "account.created",
		RemoteAddr: r.RemoteAddr,
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"User":  account,
		"Token": token,
	})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Validation("invalid request body", nil))
		return
	}

	account, err := h.app.Users.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	token, err := h.auth.IssueToken(account.ID)
	if err != nil {
		h.writeError(w, errors.Internal("issue token", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"User":  account,
		"Token": token,
	})
}

// --- account ----------------------------------------------------------------

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	account, err := h.app.Users.Get(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     *string `json:"name"`
		Email    *string `json:"email"`
		Password *string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Validation("invalid request body", nil))
		return
	}

	account, err := h.app.Users.Update(r.Context(), middleware.UserID(r.Context()), users.UpdateInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *handler) deleteMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if err := h.app.Users.Delete(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}
	h.audit.add(auditEntry{
		Time:       time.Now().UTC(),
		User:       userID,
		Action:     "account.deleted",
		RemoteAddr: r.RemoteAddr,
	})
	w.WriteHeader(http.StatusNoContent)
}

// --- watchlists -------------------------------------------------------------

func (h *handler) listWatchlists(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.app.Watchlists.List(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *handler) createWatchlist(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Validation("invalid request body", nil))
		return
	}

	wl, err := h.app.Watchlists.Create(r.Context(), middleware.UserID(r.Context()), payload.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wl)
}

func (h *handler) getWatchlist(w http.ResponseWriter, r *http.Request) {
	details, err := h.app.Watchlists.Get(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *handler) updateWatchlist(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name              *string `json:"name"`
		IsVisibleToPublic *bool   `json:"isVisibleToPublic"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Validation("invalid request body", nil))
		return
	}

	wl, err := h.app.Watchlists.Update(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()), watchlists.UpdateInput{
		Name:              payload.Name,
		IsVisibleToPublic: payload.IsVisibleToPublic,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (h *handler) deleteWatchlist(w http.ResponseWriter, r *http.Request) {
	watchlistID := mux.Vars(r)["id"]
	userID := middleware.UserID(r.Context())
	if err := h.app.Watchlists.Delete(r.Context(), watchlistID, userID); err != nil {
		h.writeError(w, err)
		return
	}
	h.audit.add(auditEntry{
		Time:        time.Now().UTC(),
		User:        userID,
		Action:      "watchlist.deleted",
		WatchlistID: watchlistID,
		RemoteAddr:  r.RemoteAddr,
	})
	w.WriteHeader(http.StatusNoContent)
}

// --- entries ----------------------------------------------------------------

func (h *handler) addEntry(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ExternalID string `json:"externalId"`
		Type       string `json:"type"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Validation("invalid request body", nil))
		return
	}
	typ, err := watchable.ParseType(payload.Type)
	if err != nil {
		h.writeError(w, errors.Validation("invalid entry", []string{"type must be MOVIE or TV_SHOW"}))
		return
	}

	entry, err := h.app.Watchlists.AddEntry(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()), payload.ExternalID, typ)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Seen bool `json:"seen"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Validation("invalid request body", nil))
		return
	}

	vars := mux.Vars(r)
	if err := h.app.Watchlists.SetSeen(r.Context(), vars["id"], middleware.UserID(r.Context()), vars["entryID"], payload.Seen); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeEntry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.app.Watchlists.RemoveEntry(r.Context(), vars["id"], middleware.UserID(r.Context()), vars["entryID"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- invites ----------------------------------------------------------------

func (h *handler) createInvite(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ExpiresAfterHours int  `json:"expiresAfterHours"`
		MaxUses           *int `json:"maxUses"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Validation("invalid request body", nil))
		return
	}

	watchlistID := mux.Vars(r)["id"]
	userID := middleware.UserID(r.Context())
	link, err := h.app.Invites.Create(r.Context(), userID, invite.CreateInput{
		WatchlistID:       watchlistID,
		ExpiresAfterHours: payload.ExpiresAfterHours,
		MaxUses:           payload.MaxUses,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.stats != nil {
		h.stats.RecordInviteIssued()
	}
	h.audit.add(auditEntry{
		Time:        time.Now().UTC(),
		User:        userID,
		Action:      "invite.issued",
		WatchlistID: watchlistID,
		InviteCode:  link.Code,
		RemoteAddr:  r.RemoteAddr,
	})
	writeJSON(w, http.StatusCreated, link)
}

func (h *handler) currentInvite(w http.ResponseWriter, r *http.Request) {
	link, err := h.app.Invites.ForWatchlist(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *handler) invitePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.app.Invites.ByCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *handler) joinInvite(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	userID := middleware.UserID(r.Context())

	watchlistID, err := h.app.Invites.Join(r.Context(), code, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.stats != nil {
		h.stats.RecordInviteRedeemed()
	}
	h.audit.add(auditEntry{
		Time:        time.Now().UTC(),
		User:        userID,
		Action:      "invite.redeemed",
		WatchlistID: watchlistID,
		InviteCode:  code,
		RemoteAddr:  r.RemoteAddr,
	})
	writeJSON(w, http.StatusOK, map[string]string{"WatchlistID": watchlistID})
}

// --- search -----------------------------------------------------------------

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	results, err := h.app.Search.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- operational ------------------------------------------------------------

func (h *handler) auditEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.healthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.healthCheck(ctx); err != nil {
			h.log.WithError(err).Error("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ----------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	svcErr, ok := errors.GetServiceError(err)
	if !ok {
		h.log.WithError(err).Error("unhandled error")
		svcErr = errors.Internal("internal server error", nil)
	}
	if svcErr.Code == errors.CodeInternal {
		h.log.WithError(err).Error("request failed")
		// Never leak internals to the client.
		svcErr = errors.Internal("internal server error", nil)
	}

	body := map[string]interface{}{
		"code":    svcErr.Code,
		"message": svcErr.Message,
	}
	if len(svcErr.Details) > 0 {
		body["details"] = svcErr.Details
	}
	writeJSON(w, svcErr.HTTPStatus, map[string]interface{}{"error": body})
}
