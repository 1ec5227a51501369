package services

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "golang.org/x/oauth2"

    "github.com/example/standup-pilot/internal/domain"
    "github.com/example/standup-pilot/internal/repo"
)

type fakeCredStore struct {
    cred     *domain.Credential
    upserted *domain.Credential
}

func (f *fakeCredStore) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
    if f.cred == nil { return nil, repo.ErrNotFound }
    c := *f.cred
    return &c, nil
}

func (f *fakeCredStore) UpsertCredential(ctx context.Context, c *domain.Credential) error {
    cp := *c
    f.upserted = &cp
    return nil
}

type fakeRefresher struct {
    tok   *oauth2.Token
    err   error
    calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
    f.calls++
    return f.tok, f.err
}

func guardAt(store CredentialStore, oauth TokenRefresher, now time.Time) *Guard {
    g := NewGuard(store, oauth, zerolog.Nop())
    g.now = func() time.Time { return now }
    return g
}

func TestObtainMissing(t *testing.T) {
    g := guardAt(&fakeCredStore{}, &fakeRefresher{}, time.Now())
    cred, outcome, err := g.Obtain(context.Background(), "u1")
    if err != nil || cred != nil || outcome != CredentialMissing {
        t.Fatalf("cred=%v outcome=%v err=%v", cred, outcome, err)
    }
}

func TestObtainFreshBeyondBuffer(t *testing.T) {
    now := time.Now()
    store := &fakeCredStore{cred: &domain.Credential{
        UserID:      "u1",
        AccessToken: "live",
        ExpiresAt:   now.Add(6 * time.Minute),
    }}
    ref := &fakeRefresher{}
    cred, outcome, err := guardAt(store, ref, now).Obtain(context.Background(), "u1")
    if err != nil || outcome != CredentialFresh || cred.AccessToken != "live" {
        t.Fatalf("cred=%+v outcome=%v err=%v", cred, outcome, err)
    }
    if ref.calls != 0 {
        t.Fatalf("token beyond the buffer must not refresh, calls=%d", ref.calls)
    }
}

func TestObtainRefreshesInsideBuffer(t *testing.T) {
    now := time.Now()
    store := &fakeCredStore{cred: &domain.Credential{
        UserID:       "u1",
        AccessToken:  "old",
        RefreshToken: "r-old",
        ExpiresAt:    now.Add(4 * time.Minute),
    }}
    ref := &fakeRefresher{tok: &oauth2.Token{
        AccessToken:  "new",
        RefreshToken: "r-new",
        Expiry:       now.Add(time.Hour),
    }}
    cred, outcome, err := guardAt(store, ref, now).Obtain(context.Background(), "u1")
    if err != nil || outcome != CredentialRefreshed {
        t.Fatalf("outcome=%v err=%v", outcome, err)
    }
    if cred.AccessToken != "new" || cred.RefreshToken != "r-new" {
        t.Fatalf("token pair not replaced: %+v", cred)
    }
    if store.upserted == nil || store.upserted.RefreshToken != "r-new" {
        t.Fatalf("rotated refresh token not persisted: %+v", store.upserted)
    }
}

func TestObtainServesStaleOnRefreshFailure(t *testing.T) {
    now := time.Now()
    store := &fakeCredStore{cred: &domain.Credential{
        UserID:       "u1",
        AccessToken:  "old",
        RefreshToken: "r-old",
        ExpiresAt:    now.Add(-time.Minute),
    }}
    ref := &fakeRefresher{err: errors.New("invalid_grant")}
    cred, outcome, err := guardAt(store, ref, now).Obtain(context.Background(), "u1")
    if err != nil {
        t.Fatalf("stale path must not error: %v", err)
    }
    if outcome != CredentialStale || cred == nil || cred.AccessToken != "old" {
        t.Fatalf("cred=%+v outcome=%v", cred, outcome)
    }
    if store.upserted != nil {
        t.Fatalf("failed refresh must not persist anything: %+v", store.upserted)
    }
}
