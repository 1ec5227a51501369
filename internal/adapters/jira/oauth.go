package jira

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strings"
    "time"

    "golang.org/x/oauth2"
)

// OAuth drives Atlassian's 3LO flow: authorize, exchange, refresh, and cloud
// resource discovery.
type OAuth struct {
    cfg  oauth2.Config
    http *http.Client
}

func NewOAuth(clientID, clientSecret, redirectURL, scopes string) *OAuth {
    return &OAuth{
        cfg: oauth2.Config{
            ClientID:     clientID,
            ClientSecret: clientSecret,
            RedirectURL:  redirectURL,
            Scopes:       strings.Fields(scopes),
            Endpoint: oauth2.Endpoint{
                AuthURL:  "https://auth.atlassian.com/authorize",
                TokenURL: "https://auth.atlassian.com/oauth/token",
            },
        },
        http: &http.Client{ Timeout: 15 * time.Second },
    }
}

// AuthCodeURL builds the consent URL. Atlassian requires audience and prompt
// on top of the standard parameters.
func (o *OAuth) AuthCodeURL(state string) string {
    return o.cfg.AuthCodeURL(state,
        oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
        oauth2.SetAuthURLParam("prompt", "consent"),
    )
}

func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
    ctx = context.WithValue(ctx, oauth2.HTTPClient, o.http)
    return o.cfg.Exchange(ctx, code)
}

// Refresh trades a refresh token for a fresh token pair. Atlassian uses
// rotating refresh tokens, so the caller must persist the whole replacement.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
    if refreshToken == "" { return nil, errors.New("jira: empty refresh token") }
    ctx = context.WithValue(ctx, oauth2.HTTPClient, o.http)
    ts := o.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Now().Add(-time.Hour)})
    return ts.Token()
}

type Resource struct {
    ID     string   `json:"id"`
    URL    string   `json:"url"`
    Name   string   `json:"name"`
    Scopes []string `json:"scopes"`
}

// AccessibleResources returns the Jira sites the token can reach. The first
// site granting read:jira-work is the one the app binds to.
func (o *OAuth) AccessibleResources(ctx context.Context, accessToken string) ([]Resource, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.atlassian.com/oauth/token/accessible-resources", nil)
    if err != nil { return nil, err }
    req.Header.Set("Authorization", "Bearer "+accessToken)
    req.Header.Set("Accept", "application/json")
    resp, err := o.http.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    b, _ := io.ReadAll(resp.Body)
    if resp.StatusCode != http.StatusOK {
        return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
    }
    var out []Resource
    if err := json.Unmarshal(b, &out); err != nil { return nil, err }
    return out, nil
}

// PickSite selects the first resource carrying read:jira-work.
func PickSite(resources []Resource) (*Resource, error) {
    for i := range resources {
        for _, s := range resources[i].Scopes {
            if s == "read:jira-work" { return &resources[i], nil }
        }
    }
    if len(resources) > 0 { return &resources[0], nil }
    return nil, errors.New("jira: no accessible sites for token")
}
