/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/example/standup-pilot/internal/domain"
    "github.com/rs/zerolog"
)

// APIError carries the tracker's HTTP status and body for any non-2xx reply.
type APIError struct {
    StatusCode int
    Body       string
}

func (e *APIError) Error() string {
    return fmt.Sprintf("jira api status=%d body=%s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Client is a per-credential Jira Cloud REST v3 client. OAuth 2.0 (3LO) apps
// go through api.atlassian.com/ex/jira/<cloudID>.
type Client struct {
    baseURL string
    token   string
    http    *http.Client
    log     zerolog.Logger
}

func NewClient(cloudID, accessToken string, timeout time.Duration, log zerolog.Logger) *Client {
    return &Client{
        baseURL: "https://api.atlassian.com/ex/jira/" + url.PathEscape(cloudID) + "/rest/api/3",
        token:   accessToken,
        http:    &http.Client{ Timeout: timeout },
        log:     log,
    }
}

func (c *Client) apiURL(path string, q url.Values) string {
    u := c.baseURL + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

// do issues one request and decodes a JSON 2xx body into out. A 204 or empty
// body is success with no payload; a non-JSON 2xx body is returned as text.
// Rate limits and server errors get up to three attempts with backoff.
func (c *Client) do(ctx context.Context, method, u string, body any, out any) (string, error) {
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return "", err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        if attempt > 0 {
            select {
            case <-ctx.Done():
                return "", ctx.Err()
            case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
            }
        }
        var r io.Reader
        if payload != nil { r = strings.NewReader(string(payload)) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return "", err }
        req.Header.Set("Authorization", "Bearer "+c.token)
        req.Header.Set("Accept", "application/json")
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        resp, err := c.http.Do(req)
        if err != nil {
            lastErr = err
            continue
        }
        b, _ := io.ReadAll(resp.Body)
        resp.Body.Close()
        if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
            lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(b)}
            continue
        }
        if resp.StatusCode < 200 || resp.StatusCode >= 300 {
            return "", &APIError{StatusCode: resp.StatusCode, Body: string(b)}
        }
        if resp.StatusCode == http.StatusNoContent || len(b) == 0 { return "", nil }
        if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
            return string(b), nil
        }
        if out == nil { return "", nil }
        if err := json.Unmarshal(b, out); err != nil { return "", err }
        return "", nil
    }
    return "", lastErr
}

// ---- wire shapes ----

type issueJSON struct {
    ID     string `json:"id"`
    Key    string `json:"key"`
    Fields struct {
        Summary     string `json:"summary"`
        Description any    `json:"description"`
        Status      struct {
            Name           string `json:"name"`
            StatusCategory struct {
                Key string `json:"key"`
            } `json:"statusCategory"`
        } `json:"status"`
        Assignee *struct {
            DisplayName  string `json:"displayName"`
            EmailAddress string `json:"emailAddress"`
        } `json:"assignee"`
        Priority *struct {
            Name string `json:"name"`
        } `json:"priority"`
        Labels  []string `json:"labels"`
        Created string   `json:"created"`
        Updated string   `json:"updated"`
    } `json:"fields"`
}

type transitionJSON struct {
    ID   string `json:"id"`
    Name string `json:"name"`
    To   *struct {
        Name           string `json:"name"`
        StatusCategory *struct {
            Key string `json:"key"`
        } `json:"statusCategory"`
    } `json:"to"`
}

type statusJSON struct {
    ID             string `json:"id"`
    Name           string `json:"name"`
    StatusCategory *struct {
        Key string `json:"key"`
    } `json:"statusCategory"`
}

func parseJiraTime(s string) time.Time {
    if s == "" { return time.Time{} }
    layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05-0700"}
    for _, l := range layouts {
        if t, err := time.Parse(l, s); err == nil { return t.UTC() }
    }
    return time.Time{}
}

// descriptionText flattens an ADF description to plain text, best effort.
func descriptionText(v any) string {
    switch t := v.(type) {
    case string:
        return t
    case map[string]any:
        var b strings.Builder
        var walk func(n map[string]any)
        walk = func(n map[string]any) {
            if s, ok := n["text"].(string); ok { b.WriteString(s) }
            if n["type"] == "paragraph" && b.Len() > 0 { b.WriteString("\n") }
            if content, ok := n["content"].([]any); ok {
                for _, c0 := range content {
                    if cm, ok := c0.(map[string]any); ok { walk(cm) }
                }
            }
        }
        walk(t)
        return strings.TrimSpace(b.String())
    default:
        return ""
    }
}

func toIssue(ij issueJSON) domain.Issue {
    out := domain.Issue{
        ID:             ij.ID,
        Key:            ij.Key,
        Title:          ij.Fields.Summary,
        Description:    descriptionText(ij.Fields.Description),
        Status:         ij.Fields.Status.Name,
        StatusCategory: ij.Fields.Status.StatusCategory.Key,
        Labels:         ij.Fields.Labels,
        Created:        parseJiraTime(ij.Fields.Created),
        Updated:        parseJiraTime(ij.Fields.Updated),
    }
    if ij.Fields.Assignee != nil {
        out.Assignee = &domain.Assignee{Name: ij.Fields.Assignee.DisplayName, Email: ij.Fields.Assignee.EmailAddress}
    }
    if ij.Fields.Priority != nil { out.Priority = ij.Fields.Priority.Name }
    return out
}

func toTransition(tj transitionJSON) domain.Transition {
    out := domain.Transition{ID: tj.ID, Name: tj.Name}
    if tj.To != nil {
        out.ToStatus = tj.To.Name
        if tj.To.StatusCategory != nil { out.ToStatusCategory = tj.To.StatusCategory.Key }
    }
    return out
}

type SearchResult struct {
    Issues []domain.Issue
    Total  int
}

var defaultFields = []string{"summary", "status", "assignee", "created", "updated", "priority"}

// SearchIssues runs a JQL query. The caller owns query correctness; this layer
// does not validate the grammar. Total may exceed len(Issues) when capped.
func (c *Client) SearchIssues(ctx context.Context, jql string, fields []string, maxResults int) (*SearchResult, error) {
    if strings.TrimSpace(jql) == "" { return nil, errors.New("jira: empty jql") }
    if len(fields) == 0 { fields = defaultFields }
    if maxResults <= 0 { maxResults = 50 }
    q := url.Values{}
    q.Set("jql", jql)
    q.Set("fields", strings.Join(fields, ","))
    q.Set("maxResults", fmt.Sprint(maxResults))
    var out struct {
        Issues []issueJSON `json:"issues"`
        Total  int         `json:"total"`
    }
    // /search/jql replaced the removed /search endpoint
    if _, err := c.do(ctx, http.MethodGet, c.apiURL("/search/jql", q), nil, &out); err != nil { return nil, err }
    res := &SearchResult{Total: out.Total}
    for _, ij := range out.Issues { res.Issues = append(res.Issues, toIssue(ij)) }
    if res.Total == 0 { res.Total = len(res.Issues) }
    return res, nil
}

func (c *Client) GetIssue(ctx context.Context, key string) (*domain.Issue, error) {
    if key == "" { return nil, errors.New("jira: empty issue key") }
    var ij issueJSON
    if _, err := c.do(ctx, http.MethodGet, c.apiURL("/issue/"+url.PathEscape(key), nil), nil, &ij); err != nil { return nil, err }
    iss := toIssue(ij)
    return &iss, nil
}

// UpdateIssueStatus posts a transition. No payload comes back; callers must
// re-fetch the issue to observe the new state.
func (c *Client) UpdateIssueStatus(ctx context.Context, key, transitionID string) error {
    if key == "" { return errors.New("jira: empty issue key") }
    body := map[string]any{"transition": map[string]string{"id": transitionID}}
    _, err := c.do(ctx, http.MethodPost, c.apiURL("/issue/"+url.PathEscape(key)+"/transitions", nil), body, nil)
    return err
}

// textToADF converts plain text to Atlassian Document Format: one paragraph
// per line. Empty lines become a single-space paragraph since ADF paragraphs
// must be non-empty.
func textToADF(text string) map[string]any {
    lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
    paragraphs := make([]any, 0, len(lines))
    for _, line := range lines {
        if line == "" { line = " " }
        paragraphs = append(paragraphs, map[string]any{
            "type":    "paragraph",
            "content": []any{map[string]any{"type": "text", "text": line}},
        })
    }
    return map[string]any{"type": "doc", "version": 1, "content": paragraphs}
}

func (c *Client) AddComment(ctx context.Context, key, text string) error {
    if key == "" { return errors.New("jira: empty issue key") }
    body := map[string]any{"body": textToADF(text)}
    _, err := c.do(ctx, http.MethodPost, c.apiURL("/issue/"+url.PathEscape(key)+"/comment", nil), body, nil)
    return err
}

func (c *Client) GetTransitions(ctx context.Context, key string) ([]domain.Transition, error) {
    if key == "" { return nil, errors.New("jira: empty issue key") }
    var out struct {
        Transitions []transitionJSON `json:"transitions"`
    }
    if _, err := c.do(ctx, http.MethodGet, c.apiURL("/issue/"+url.PathEscape(key)+"/transitions", nil), nil, &out); err != nil { return nil, err }
    res := make([]domain.Transition, 0, len(out.Transitions))
    for _, tj := range out.Transitions { res = append(res, toTransition(tj)) }
    return res, nil
}

// GetAllStatuses lists instance-wide statuses. Which ones apply to an issue
// still depends on its project workflow.
func (c *Client) GetAllStatuses(ctx context.Context) ([]domain.Status, error) {
    var out []statusJSON
    if _, err := c.do(ctx, http.MethodGet, c.apiURL("/status", nil), nil, &out); err != nil { return nil, err }
    res := make([]domain.Status, 0, len(out))
    for _, sj := range out {
        st := domain.Status{ID: sj.ID, Name: sj.Name}
        if sj.StatusCategory != nil { st.StatusCategory = sj.StatusCategory.Key }
        res = append(res, st)
    }
    return res, nil
}

// GetProjectStatuses lists statuses used by a project, flattened from the
// per-issue-type grouping Jira returns.
func (c *Client) GetProjectStatuses(ctx context.Context, projectKey string) ([]domain.ProjectStatus, error) {
    if projectKey == "" { return nil, errors.New("jira: empty project key") }
    var out []struct {
        Name     string       `json:"name"`
        Statuses []statusJSON `json:"statuses"`
    }
    if _, err := c.do(ctx, http.MethodGet, c.apiURL("/project/"+url.PathEscape(projectKey)+"/statuses", nil), nil, &out); err != nil { return nil, err }
    var res []domain.ProjectStatus
    for _, it := range out {
        for _, sj := range it.Statuses {
            ps := domain.ProjectStatus{IssueType: it.Name, ID: sj.ID, Name: sj.Name}
            if sj.StatusCategory != nil { ps.StatusCategory = sj.StatusCategory.Key }
            res = append(res, ps)
        }
    }
    return res, nil
}

func (c *Client) GetMyself(ctx context.Context) (*domain.Myself, error) {
    var out struct {
        AccountID    string `json:"accountId"`
        DisplayName  string `json:"displayName"`
        EmailAddress string `json:"emailAddress"`
        Groups       struct {
            Items []struct {
                Name string `json:"name"`
            } `json:"items"`
        } `json:"groups"`
        ApplicationRoles struct {
            Items []struct {
                Key string `json:"key"`
            } `json:"items"`
        } `json:"applicationRoles"`
    }
    if _, err := c.do(ctx, http.MethodGet, c.apiURL("/myself", nil), nil, &out); err != nil { return nil, err }
    me := &domain.Myself{AccountID: out.AccountID, DisplayName: out.DisplayName, EmailAddress: out.EmailAddress}
    for _, g := range out.Groups.Items { me.Groups = append(me.Groups, g.Name) }
    for _, r := range out.ApplicationRoles.Items { me.ApplicationRoles = append(me.ApplicationRoles, r.Key) }
    return me, nil
}

// GetMyPermissions checks the administration permissions used to classify the
// caller. Jira Cloud requires naming the permissions to check.
func (c *Client) GetMyPermissions(ctx context.Context, projectKey string, permissions []string) (*domain.Permissions, error) {
    if len(permissions) == 0 { permissions = []string{"ADMINISTER", "ADMINISTER_PROJECTS"} }
    q := url.Values{}
    if projectKey != "" { q.Set("projectKey", projectKey) }
    q.Set("permissions", strings.Join(permissions, ","))
    var out struct {
        Permissions map[string]struct {
            HavePermission bool `json:"havePermission"`
        } `json:"permissions"`
    }
    if _, err := c.do(ctx, http.MethodGet, c.apiURL("/mypermissions", q), nil, &out); err != nil { return nil, err }
    return &domain.Permissions{
        CanAdministerJira:     out.Permissions["ADMINISTER"].HavePermission,
        CanAdministerProjects: out.Permissions["ADMINISTER_PROJECTS"].HavePermission,
    }, nil
}

// MyIssuesJQL scopes a search to the caller's assigned issues, most recently
// updated first.
func MyIssuesJQL(projectKey string) string {
    if projectKey != "" {
        return fmt.Sprintf("assignee = currentUser() AND project = %q ORDER BY updated DESC", projectKey)
    }
    return "assignee = currentUser() ORDER BY updated DESC"
}

func ProjectJQL(projectKey string) string {
    return fmt.Sprintf("project = %q ORDER BY updated DESC", projectKey)
}

// TextSearchJQL matches key, text and summary against a free-text query.
func TextSearchJQL(query string) string {
    q := strings.ReplaceAll(query, `"`, ``)
    return fmt.Sprintf("key ~ %q OR text ~ %q OR summary ~ %q ORDER BY updated DESC", q, q, q)
}
