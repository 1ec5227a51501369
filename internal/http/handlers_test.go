package http

import (
    "context"
    "net/http"
    "net/http/httptest"
    "net/url"
    "strings"
    "testing"

    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/example/standup-pilot/internal/adapters/jira"
    "github.com/example/standup-pilot/internal/config"
    "github.com/example/standup-pilot/internal/domain"
)

type fakeHTTPStore struct {
    deleted []string
    refs    []domain.IssueRef
}

func (f *fakeHTTPStore) UpsertCredential(ctx context.Context, c *domain.Credential) error { return nil }

func (f *fakeHTTPStore) DeleteCredential(ctx context.Context, userID string) error {
    f.deleted = append(f.deleted, userID)
    return nil
}

func (f *fakeHTTPStore) ListIssueRefs(ctx context.Context, userID string, limit int) ([]domain.IssueRef, error) {
    return f.refs, nil
}

func testRouter(t *testing.T, store *fakeHTTPStore) *gin.Engine {
    t.Helper()
    gin.SetMode(gin.TestMode)
    h := &Handlers{
        OAuth: jira.NewOAuth("client-id", "secret", "http://localhost/jira/callback", "read:jira-work offline_access"),
        Store: store,
        Log:   zerolog.Nop(),
    }
    return NewRouter(config.Config{AppEnv: "dev"}, zerolog.Nop(), h)
}

func TestConnectStateCarriesNonceAndUser(t *testing.T) {
    r := testRouter(t, &fakeHTTPStore{})
    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/jira/connect?user_id=u1", nil)
    r.ServeHTTP(w, req)

    if w.Code != http.StatusFound {
        t.Fatalf("status = %d", w.Code)
    }
    loc, err := url.Parse(w.Header().Get("Location"))
    if err != nil {
        t.Fatalf("bad redirect location: %v", err)
    }
    state := loc.Query().Get("state")
    nonce, userID := parseState(state)
    if nonce == "" || userID != "u1" {
        t.Fatalf("state %q parsed to nonce=%q user=%q", state, nonce, userID)
    }
    // a second connect must not reuse the nonce
    w2 := httptest.NewRecorder()
    r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/jira/connect?user_id=u1", nil))
    loc2, _ := url.Parse(w2.Header().Get("Location"))
    nonce2, _ := parseState(loc2.Query().Get("state"))
    if nonce2 == nonce {
        t.Fatal("nonce repeated across connects")
    }
}

func TestParseState(t *testing.T) {
    if n, u := parseState("abc:u1"); n != "abc" || u != "u1" {
        t.Fatalf("parseState = %q %q", n, u)
    }
    // user ids may themselves contain colons
    if _, u := parseState("abc:org:u1"); u != "org:u1" {
        t.Fatalf("user with colon mangled: %q", u)
    }
    if n, u := parseState("bare-user"); n != "" || u != "" {
        t.Fatalf("legacy state must be rejected: %q %q", n, u)
    }
    if n, u := parseState(""); n != "" || u != "" {
        t.Fatalf("empty state must be rejected: %q %q", n, u)
    }
}

func TestCallbackRejectsMalformedState(t *testing.T) {
    r := testRouter(t, &fakeHTTPStore{})
    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/jira/callback?code=x&state=no-nonce-here", nil)
    r.ServeHTTP(w, req)
    if w.Code != http.StatusBadRequest {
        t.Fatalf("status = %d", w.Code)
    }
}

func TestDisconnectDeletesCredential(t *testing.T) {
    store := &fakeHTTPStore{}
    r := testRouter(t, store)

    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodDelete, "/jira/connection", nil)
    req.Header.Set("X-User-ID", "u1")
    r.ServeHTTP(w, req)
    if w.Code != http.StatusOK {
        t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
    }
    if len(store.deleted) != 1 || store.deleted[0] != "u1" {
        t.Fatalf("credential not deleted: %v", store.deleted)
    }

    w = httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/jira/connection", nil))
    if w.Code != http.StatusUnauthorized {
        t.Fatalf("missing header should be 401, got %d", w.Code)
    }
}

func TestIssueRefsServesCache(t *testing.T) {
    store := &fakeHTTPStore{refs: []domain.IssueRef{
        {UserID: "u1", IssueKey: "PROJ-1", Title: "Fix login", Status: "In Progress"},
    }}
    r := testRouter(t, store)

    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/api/issue-refs", nil)
    req.Header.Set("X-User-ID", "u1")
    r.ServeHTTP(w, req)
    if w.Code != http.StatusOK {
        t.Fatalf("status = %d", w.Code)
    }
    if !strings.Contains(w.Body.String(), "PROJ-1") {
        t.Fatalf("refs missing from body: %s", w.Body.String())
    }

    w = httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/issue-refs", nil))
    if w.Code != http.StatusUnauthorized {
        t.Fatalf("missing header should be 401, got %d", w.Code)
    }
}
