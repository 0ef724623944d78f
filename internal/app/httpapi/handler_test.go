package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JulienZD/w2tch/internal/app"
	"github.com/JulienZD/w2tch/internal/app/domain/watchable"
	"github.com/JulienZD/w2tch/internal/middleware"
	"github.com/JulienZD/w2tch/internal/tmdb"
	"github.com/JulienZD/w2tch/pkg/logger"
)

type stubCatalog struct{}

func (stubCatalog) Find(_ context.Context, externalID string, typ watchable.Type) (*watchable.Watchable, error) {
	if externalID != "603" {
		return nil, nil
	}
	return &watchable.Watchable{
		Source:     watchable.SourceTMDB,
		ExternalID: externalID,
		Type:       typ,
		Name:       "The Matrix",
		Rating:     8.2,
		Runtime:    136,
	}, nil
}

func (stubCatalog) Search(context.Context, string) ([]tmdb.Result, error) {
	return []tmdb.Result{
		{ExternalID: "603", Type: watchable.TypeMovie, Name: "The Matrix", Rating: 8.2, Popularity: 80},
	}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := logger.NewDefault("test")
	application := app.New(app.Deps{
		Metadata:      stubCatalog{},
		Search:        stubCatalog{},
		InviteBaseURL: "http://app.test",
		Logger:        log,
	})

	router, err := NewRouter(application, Options{
		Auth:   middleware.NewAuth("test-secret", time.Hour, log),
		Logger: log,
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, server *httptest.Server, method, path, token string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func signup(t *testing.T, server *httptest.Server, name, email string) (userID, token string) {
	t.Helper()
	status, body := doRequest(t, server, http.MethodPost, "/auth/signup", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": "correcthorse",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d (%v)", email, status, body)
	}
	account := body["User"].(map[string]interface{})
	return account["ID"].(string), body["Token"].(string)
}

func TestInviteLifecycle(t *testing.T) {
	server := newTestServer(t)

	_, ownerToken := signup(t, server, "Alice", "alice@example.com")
	bobID, bobToken := signup(t, server, "Bob", "bob@example.com")
	_ = bobID

	// Owner creates a watchlist and puts a movie on it.
	status, body := doRequest(t, server, http.MethodPost, "/watchlists", ownerToken, map[string]string{"name": "movie night"})
	if status != http.StatusCreated {
		t.Fatalf("create watchlist: expected 201, got %d (%v)", status, body)
	}
	watchlistID := body["ID"].(string)

	status, body = doRequest(t, server, http.MethodPost, "/watchlists/"+watchlistID+"/entries", ownerToken, map[string]string{
		"externalId": "603",
		"type":       "MOVIE",
	})
	if status != http.StatusCreated {
		t.Fatalf("add entry: expected 201, got %d (%v)", status, body)
	}

	// Owner issues an invite.
	status, body = doRequest(t, server, http.MethodPost, "/watchlists/"+watchlistID+"/invite", ownerToken, map[string]interface{}{
		"expiresAfterHours": 24,
	})
	if status != http.StatusCreated {
		t.Fatalf("create invite: expected 201, got %d (%v)", status, body)
	}
	code := body["Code"].(string)
	if want := "http://app.test/join/" + code; body["URL"] != want {
		t.Fatalf("expected invite URL %s, got %v", want, body["URL"])
	}

	// Anyone can preview the invite without logging in.
	status, body = doRequest(t, server, http.MethodGet, "/invites/"+code, "", nil)
	if status != http.StatusOK {
		t.Fatalf("preview invite: expected 200, got %d (%v)", status, body)
	}
	if body["WatchlistName"] != "movie night" || body["OwnerName"] != "Alice" {
		t.Fatalf("unexpected preview: %v", body)
	}

	// Bob joins.
	status, body = doRequest(t, server, http.MethodPost, "/invites/"+code+"/join", bobToken, nil)
	if status != http.StatusOK {
		t.Fatalf("join: expected 200, got %d (%v)", status, body)
	}
	if body["WatchlistID"] != watchlistID {
		t.Fatalf("expected watchlist %s, got %v", watchlistID, body["WatchlistID"])
	}

	// Bob now sees the watchlist with its entry.
	status, body = doRequest(t, server, http.MethodGet, "/watchlists/"+watchlistID, bobToken, nil)
	if status != http.StatusOK {
		t.Fatalf("get watchlist: expected 200, got %d (%v)", status, body)
	}
	if body["MemberCount"] != float64(2) {
		t.Fatalf("expected 2 members, got %v", body["MemberCount"])
	}
	entries := body["Entries"].([]interface{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	// Joining twice fails the precondition.
	status, body = doRequest(t, server, http.MethodPost, "/invites/"+code+"/join", bobToken, nil)
	if status != http.StatusPreconditionFailed {
		t.Fatalf("second join: expected 412, got %d (%v)", status, body)
	}

	// The owner redeeming their own invite is already a member too.
	status, _ = doRequest(t, server, http.MethodPost, "/invites/"+code+"/join", ownerToken, nil)
	if status != http.StatusPreconditionFailed {
		t.Fatalf("owner join: expected 412, got %d", status)
	}
}

func TestInviteReplacementInvalidatesOldCode(t *testing.T) {
	server := newTestServer(t)

	_, ownerToken := signup(t, server, "Alice", "alice@example.com")

	status, body := doRequest(t, server, http.MethodPost, "/watchlists", ownerToken, map[string]string{"name": "movie night"})
	if status != http.StatusCreated {
		t.Fatalf("create watchlist: expected 201, got %d", status)
	}
	watchlistID := body["ID"].(string)

	_, first := doRequest(t, server, http.MethodPost, "/watchlists/"+watchlistID+"/invite", ownerToken, map[string]interface{}{"expiresAfterHours": 24})
	_, second := doRequest(t, server, http.MethodPost, "/watchlists/"+watchlistID+"/invite", ownerToken, map[string]interface{}{"expiresAfterHours": 24})

	status, _ = doRequest(t, server, http.MethodGet, "/invites/"+first["Code"].(string), "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("old invite: expected 404, got %d", status)
	}
	status, _ = doRequest(t, server, http.MethodGet, "/invites/"+second["Code"].(string), "", nil)
	if status != http.StatusOK {
		t.Fatalf("new invite: expected 200, got %d", status)
	}
}

func TestInviteValidation(t *testing.T) {
	server := newTestServer(t)

	_, ownerToken := signup(t, server, "Alice", "alice@example.com")
	_, otherToken := signup(t, server, "Bob", "bob@example.com")

	status, body := doRequest(t, server, http.MethodPost, "/watchlists", ownerToken, map[string]string{"name": "movie night"})
	if status != http.StatusCreated {
		t.Fatalf("create watchlist: expected 201, got %d", status)
	}
	watchlistID := body["ID"].(string)

	// Unknown expiry window.
	status, body = doRequest(t, server, http.MethodPost, "/watchlists/"+watchlistID+"/invite", ownerToken, map[string]interface{}{"expiresAfterHours": 2})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%v)", status, body)
	}

	// Non-owners cannot tell the watchlist exists.
	status, _ = doRequest(t, server, http.MethodPost, "/watchlists/"+watchlistID+"/invite", otherToken, map[string]interface{}{"expiresAfterHours": 24})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for non-owner, got %d", status)
	}

	// No live invite yet.
	status, _ = doRequest(t, server, http.MethodGet, "/watchlists/"+watchlistID+"/invite", ownerToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for missing invite, got %d", status)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	server := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/watchlists"},
		{http.MethodGet, "/me"},
		{http.MethodPost, "/invites/somecode12345/join"},
		{http.MethodGet, "/search?query=matrix"},
	} {
		status, _ := doRequest(t, server, route.method, route.path, "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, status)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	server := newTestServer(t)
	_, token := signup(t, server, "Alice", "alice@example.com")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/search?query=matrix", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var results []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results) != 1 || results[0]["Name"] != "The Matrix" {
		t.Fatalf("unexpected results: %v", results)
	}

	status, _ := doRequest(t, server, http.MethodGet, "/search?query=a", token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("short query: expected 400, got %d", status)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)

	status, body := doRequest(t, server, http.MethodGet, "/healthz", "", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response: %d %v", status, body)
	}
}

func TestErrorBodyShape(t *testing.T) {
	server := newTestServer(t)
	_, token := signup(t, server, "Alice", "alice@example.com")

	status, body := doRequest(t, server, http.MethodGet, "/watchlists/missing", token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	errBody, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	if errBody["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", errBody["code"])
	}
}
