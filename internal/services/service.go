/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "strings"

    "github.com/rs/zerolog"

    "github.com/example/standup-pilot/internal/adapters/jira"
    "github.com/example/standup-pilot/internal/domain"
)

const (
    msgNotConnected    = "Jira account not connected. Please connect your Jira account first."
    msgInvalidIssueKey = "Invalid issue key. Please mention a Jira issue like PROJ-123 (you can type @ to pick one)."
    msgNoDraft         = "No weekly update draft found. Generate your weekly update first."
    msgAdminNeedsProject = "To generate an administrator (team) weekly summary, please specify a Jira project key (e.g., PROJ)."
)

const (
    defaultListLimit  = 20
    personalFetchSize = 100
    summaryFetchSize  = 200
)

// JiraAPI is the per-credential tracker surface the orchestrator needs.
type JiraAPI interface {
    SearchIssues(ctx context.Context, jql string, fields []string, maxResults int) (*jira.SearchResult, error)
    GetIssue(ctx context.Context, key string) (*domain.Issue, error)
    UpdateIssueStatus(ctx context.Context, key, transitionID string) error
    AddComment(ctx context.Context, key, text string) error
    GetTransitions(ctx context.Context, key string) ([]domain.Transition, error)
    GetAllStatuses(ctx context.Context) ([]domain.Status, error)
    GetProjectStatuses(ctx context.Context, projectKey string) ([]domain.ProjectStatus, error)
    GetMyself(ctx context.Context) (*domain.Myself, error)
    GetMyPermissions(ctx context.Context, projectKey string, permissions []string) (*domain.Permissions, error)
}

// GatewayFactory binds a credential to a tracker client.
type GatewayFactory func(cred *domain.Credential) JiraAPI

// LLM is the generation capability the orchestrator depends on.
type LLM interface {
    GenerateObject(ctx context.Context, system, user, schemaName string, schema any, out any) error
}

// Store is the persistence surface beyond credentials.
type Store interface {
    UpsertIssueRefs(ctx context.Context, userID string, refs []domain.IssueRef) error
    CreateDraft(ctx context.Context, d *domain.UpdateDraft) error
    LatestDraft(ctx context.Context, userID string) (*domain.UpdateDraft, error)
}

// Service is the tool orchestrator: every operation resolves a credential,
// validates input, calls the tracker, and returns a tagged result. Nothing
// escapes as an error; failures become messages the model can relay.
type Service struct {
    guard   *Guard
    store   Store
    gateway GatewayFactory
    llm     LLM
    log     zerolog.Logger
}

func New(guard *Guard, store Store, gateway GatewayFactory, llm LLM, log zerolog.Logger) *Service {
    return &Service{guard: guard, store: store, gateway: gateway, llm: llm, log: log}
}

// ---- tagged tool results ----

type IssueListResult struct {
    Success bool           `json:"success"`
    Message string         `json:"message,omitempty"`
    Issues  []domain.Issue `json:"issues,omitempty"`
    Total   int            `json:"total"`
    SiteURL string         `json:"siteUrl,omitempty"`
}

type IssueResult struct {
    Success bool          `json:"success"`
    Message string        `json:"message,omitempty"`
    Issue   *domain.Issue `json:"issue,omitempty"`
    SiteURL string        `json:"siteUrl,omitempty"`
}

type StatusUpdateResult struct {
    Success              bool                `json:"success"`
    Message              string              `json:"message,omitempty"`
    Issue                *domain.Issue       `json:"issue,omitempty"`
    AvailableTransitions []domain.Transition `json:"availableTransitions,omitempty"`
}

type StatusListResult struct {
    Success         bool                   `json:"success"`
    Message         string                 `json:"message,omitempty"`
    Statuses        []domain.Status        `json:"statuses,omitempty"`
    ProjectStatuses []domain.ProjectStatus `json:"projectStatuses,omitempty"`
}

type TransitionListResult struct {
    Success     bool                `json:"success"`
    Message     string              `json:"message,omitempty"`
    IssueKey    string              `json:"issueKey,omitempty"`
    Transitions []domain.Transition `json:"transitions,omitempty"`
}

type UserContextResult struct {
    Success        bool                `json:"success"`
    Message        string              `json:"message,omitempty"`
    Myself         *domain.Myself      `json:"myself,omitempty"`
    Permissions    *domain.Permissions `json:"permissions,omitempty"`
    Role           string              `json:"role,omitempty"` // admin | developer
    NeedsReconnect bool                `json:"needsReconnect,omitempty"`
}

// connect resolves the caller's credential and builds a gateway. An empty
// message means the caller may proceed; stale credentials proceed too, the
// tracker's own 401 is the final arbiter.
func (s *Service) connect(ctx context.Context, userID string) (JiraAPI, *domain.Credential, string) {
    cred, outcome, err := s.guard.Obtain(ctx, userID)
    if err != nil {
        s.log.Error().Err(err).Str("user_id", userID).Msg("credential lookup failed")
        return nil, nil, msgNotConnected
    }
    if outcome == CredentialMissing { return nil, nil, msgNotConnected }
    return s.gateway(cred), cred, ""
}

func (s *Service) rememberIssues(ctx context.Context, userID string, issues []domain.Issue) {
    refs := make([]domain.IssueRef, 0, len(issues))
    for _, iss := range issues {
        refs = append(refs, domain.IssueRef{
            UserID:   userID,
            IssueKey: iss.Key,
            IssueID:  iss.ID,
            Title:    iss.Title,
            Status:   iss.Status,
        })
    }
    if err := s.store.UpsertIssueRefs(ctx, userID, refs); err != nil {
        s.log.Warn().Err(err).Str("user_id", userID).Msg("issue ref upsert failed")
    }
}

// ListIssues searches the caller's issues. With a query it runs a free-text
// search, otherwise it lists what is assigned to the caller.
func (s *Service) ListIssues(ctx context.Context, userID, query, projectKey string, maxResults int) IssueListResult {
    api, cred, msg := s.connect(ctx, userID)
    if msg != "" { return IssueListResult{Message: msg} }
    if maxResults <= 0 || maxResults > 50 { maxResults = defaultListLimit }

    jql := jira.MyIssuesJQL(projectKey)
    if strings.TrimSpace(query) != "" {
        jql = jira.TextSearchJQL(query)
        if projectKey != "" {
            jql = fmt.Sprintf("(%s) AND project = %q ORDER BY updated DESC", strings.TrimSuffix(jql, " ORDER BY updated DESC"), projectKey)
        }
    }
    res, err := api.SearchIssues(ctx, jql, nil, maxResults)
    if err != nil {
        s.log.Warn().Err(err).Str("user_id", userID).Msg("issue search failed")
        return IssueListResult{Message: fmt.Sprintf("Could not list issues: %v", err)}
    }
    s.rememberIssues(ctx, userID, res.Issues)
    return IssueListResult{Success: true, Issues: res.Issues, Total: res.Total, SiteURL: cred.SiteURL}
}

func (s *Service) GetIssue(ctx context.Context, userID, rawKey string) IssueResult {
    api, cred, msg := s.connect(ctx, userID)
    if msg != "" { return IssueResult{Message: msg} }
    key := SanitizeIssueKey(rawKey)
    if key == "" { return IssueResult{Message: msgInvalidIssueKey} }

    iss, err := api.GetIssue(ctx, key)
    if err != nil {
        s.log.Warn().Err(err).Str("issue_key", key).Msg("issue fetch failed")
        return IssueResult{Message: fmt.Sprintf("Could not fetch %s: %v", key, err)}
    }
    s.rememberIssues(ctx, userID, []domain.Issue{*iss})
    return IssueResult{Success: true, Issue: iss, SiteURL: cred.SiteURL}
}

// UpdateIssueStatus moves an issue toward a requested status. When no
// transition matches, the available ones come back so the model can ask the
// user to pick; that is a disambiguation result, not an error.
func (s *Service) UpdateIssueStatus(ctx context.Context, userID, rawKey, status string) StatusUpdateResult {
    api, _, msg := s.connect(ctx, userID)
    if msg != "" { return StatusUpdateResult{Message: msg} }
    key := SanitizeIssueKey(rawKey)
    if key == "" { return StatusUpdateResult{Message: msgInvalidIssueKey} }

    transitions, err := api.GetTransitions(ctx, key)
    if err != nil {
        s.log.Warn().Err(err).Str("issue_key", key).Msg("transition fetch failed")
        return StatusUpdateResult{Message: fmt.Sprintf("Could not fetch transitions for %s: %v", key, err)}
    }
    match := PickBestTransition(status, transitions)
    if match == nil {
        return StatusUpdateResult{
            Message:              fmt.Sprintf("Status %q is not available for %s in its current workflow.", status, key),
            AvailableTransitions: transitions,
        }
    }
    if err := api.UpdateIssueStatus(ctx, key, match.ID); err != nil {
        s.log.Warn().Err(err).Str("issue_key", key).Str("transition_id", match.ID).Msg("transition failed")
        return StatusUpdateResult{Message: fmt.Sprintf("Could not update %s: %v", key, err)}
    }
    iss, err := api.GetIssue(ctx, key)
    if err != nil {
        // transition went through; report it even if the re-fetch failed
        return StatusUpdateResult{Success: true, Message: fmt.Sprintf("Moved %s via %q.", key, match.Name)}
    }
    s.rememberIssues(ctx, userID, []domain.Issue{*iss})
    return StatusUpdateResult{Success: true, Issue: iss}
}

func (s *Service) ListStatuses(ctx context.Context, userID, projectKey string) StatusListResult {
    api, _, msg := s.connect(ctx, userID)
    if msg != "" { return StatusListResult{Message: msg} }

    if projectKey != "" {
        ps, err := api.GetProjectStatuses(ctx, projectKey)
        if err != nil {
            return StatusListResult{Message: fmt.Sprintf("Could not fetch statuses for %s: %v", projectKey, err)}
        }
        return StatusListResult{Success: true, ProjectStatuses: ps}
    }
    all, err := api.GetAllStatuses(ctx)
    if err != nil {
        return StatusListResult{Message: fmt.Sprintf("Could not fetch statuses: %v", err)}
    }
    return StatusListResult{Success: true, Statuses: all}
}

func (s *Service) ListTransitions(ctx context.Context, userID, rawKey string) TransitionListResult {
    api, _, msg := s.connect(ctx, userID)
    if msg != "" { return TransitionListResult{Message: msg} }
    key := SanitizeIssueKey(rawKey)
    if key == "" { return TransitionListResult{Message: msgInvalidIssueKey} }

    transitions, err := api.GetTransitions(ctx, key)
    if err != nil {
        return TransitionListResult{Message: fmt.Sprintf("Could not fetch transitions for %s: %v", key, err)}
    }
    return TransitionListResult{Success: true, IssueKey: key, Transitions: transitions}
}

// GetUserContext fetches identity and admin permissions. A scope complaint
// from the tracker means the stored grant predates a permission the app now
// needs, which only a reconnect fixes.
func (s *Service) GetUserContext(ctx context.Context, userID, projectKey string) UserContextResult {
    api, _, msg := s.connect(ctx, userID)
    if msg != "" { return UserContextResult{Message: msg} }

    me, err := api.GetMyself(ctx)
    if err != nil {
        if isScopeError(err) {
            return UserContextResult{Message: "Your Jira connection is missing required permissions. Please reconnect your Jira account.", NeedsReconnect: true}
        }
        return UserContextResult{Message: fmt.Sprintf("Could not fetch your Jira profile: %v", err)}
    }
    perms, err := api.GetMyPermissions(ctx, projectKey, nil)
    if err != nil {
        if isScopeError(err) {
            return UserContextResult{Message: "Your Jira connection is missing required permissions. Please reconnect your Jira account.", NeedsReconnect: true}
        }
        return UserContextResult{Message: fmt.Sprintf("Could not fetch your Jira permissions: %v", err)}
    }
    role := "developer"
    if perms.CanAdministerJira || perms.CanAdministerProjects { role = "admin" }
    return UserContextResult{Success: true, Myself: me, Permissions: perms, Role: role}
}

func isScopeError(err error) bool {
    return err != nil && strings.Contains(strings.ToLower(err.Error()), "scope does not match")
}
