package services

import (
    "context"
    "errors"
    "time"

    "golang.org/x/oauth2"
    "github.com/rs/zerolog"

    "github.com/example/standup-pilot/internal/domain"
    "github.com/example/standup-pilot/internal/repo"
)

// CredentialOutcome labels what the guard had to do to hand back a credential.
type CredentialOutcome string

const (
    CredentialMissing   CredentialOutcome = "missing"
    CredentialFresh     CredentialOutcome = "fresh"
    CredentialRefreshed CredentialOutcome = "refreshed"
    CredentialStale     CredentialOutcome = "stale"
)

// refreshBuffer forces a refresh slightly before real expiry so a token never
// dies mid-request.
const refreshBuffer = 5 * time.Minute

type CredentialStore interface {
    GetCredential(ctx context.Context, userID string) (*domain.Credential, error)
    UpsertCredential(ctx context.Context, c *domain.Credential) error
}

type TokenRefresher interface {
    Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Guard hands out usable credentials, refreshing expiring ones in place.
// Refresh failures degrade to the stored token rather than failing the
// caller's request; the stale outcome lets callers decide how loudly to
// complain.
type Guard struct {
    store CredentialStore
    oauth TokenRefresher
    now   func() time.Time
    log   zerolog.Logger
}

func NewGuard(store CredentialStore, oauth TokenRefresher, log zerolog.Logger) *Guard {
    return &Guard{store: store, oauth: oauth, now: time.Now, log: log}
}

func (g *Guard) Obtain(ctx context.Context, userID string) (*domain.Credential, CredentialOutcome, error) {
    cred, err := g.store.GetCredential(ctx, userID)
    if errors.Is(err, repo.ErrNotFound) { return nil, CredentialMissing, nil }
    if err != nil { return nil, CredentialMissing, err }

    if cred.ExpiresAt.After(g.now().Add(refreshBuffer)) {
        return cred, CredentialFresh, nil
    }

    tok, err := g.oauth.Refresh(ctx, cred.RefreshToken)
    if err != nil {
        g.log.Warn().Err(err).Str("user_id", userID).Msg("token refresh failed, serving stale credential")
        return cred, CredentialStale, nil
    }

    cred.AccessToken = tok.AccessToken
    if tok.RefreshToken != "" { cred.RefreshToken = tok.RefreshToken }
    cred.ExpiresAt = tok.Expiry
    if err := g.store.UpsertCredential(ctx, cred); err != nil {
        g.log.Error().Err(err).Str("user_id", userID).Msg("persist refreshed credential failed")
        return cred, CredentialRefreshed, nil
    }
    return cred, CredentialRefreshed, nil
}
