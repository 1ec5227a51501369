package domain

import "time"

// Credential is a user's OAuth grant for a Jira Cloud site. At most one live
// credential per user; refresh replaces the row wholesale.
type Credential struct {
    UserID       string
    CloudID      string
    SiteURL      string
    AccessToken  string
    RefreshToken string
    ExpiresAt    time.Time
}

type Assignee struct {
    Name  string `json:"name"`
    Email string `json:"email,omitempty"`
}

// Issue is a flattened view of a Jira issue. Status categories are Jira's
// fixed partition: new | indeterminate | done.
type Issue struct {
    ID             string    `json:"id"`
    Key            string    `json:"key"`
    Title          string    `json:"title"`
    Description    string    `json:"description,omitempty"`
    Status         string    `json:"status"`
    StatusCategory string    `json:"statusCategory"`
    Assignee       *Assignee `json:"assignee"`
    Priority       string    `json:"priority,omitempty"`
    Labels         []string  `json:"labels,omitempty"`
    Created        time.Time `json:"created"`
    Updated        time.Time `json:"updated"`
}

// Transition is an edge from an issue's current status to a reachable target.
// Availability is per-issue and per-workflow; never assume one exists by name.
type Transition struct {
    ID               string `json:"id"`
    Name             string `json:"name"`
    ToStatus         string `json:"toStatus"`
    ToStatusCategory string `json:"toStatusCategory"`
}

type Status struct {
    ID             string `json:"id"`
    Name           string `json:"name"`
    StatusCategory string `json:"statusCategory"`
}

// ProjectStatus is a status scoped to one issue type of a project workflow.
type ProjectStatus struct {
    IssueType      string `json:"issueType"`
    ID             string `json:"id"`
    Name           string `json:"name"`
    StatusCategory string `json:"statusCategory"`
}

type Myself struct {
    AccountID        string   `json:"accountId"`
    DisplayName      string   `json:"displayName"`
    EmailAddress     string   `json:"emailAddress,omitempty"`
    Groups           []string `json:"groups,omitempty"`
    ApplicationRoles []string `json:"applicationRoles,omitempty"`
}

type Permissions struct {
    CanAdministerJira     bool `json:"canAdministerJira"`
    CanAdministerProjects bool `json:"canAdministerProjects"`
}

// IssueRef is the local display cache of an issue, keyed by (user, issue key).
// Never authoritative; the tracker always wins.
type IssueRef struct {
    UserID   string
    IssueKey string
    IssueID  string
    Title    string
    Status   string
}

// PersonalUpdate is the generated 3-question answer set plus a combined draft
// message and private nudges.
type PersonalUpdate struct {
    Answers UpdateAnswers `json:"answers"`
    Draft   string        `json:"draft"`
    Nudges  []string      `json:"nudges"`
}

type UpdateAnswers struct {
    Completed    string `json:"completed"`
    NotCompleted string `json:"notCompleted"`
    Blocked      string `json:"blocked"`
}

// UpdateDraft pairs a personal update with the issue snapshot it was written
// from. The latest draft per user supersedes all prior ones.
type UpdateDraft struct {
    ID         string
    UserID     string
    ProjectKey string
    Issues     []Issue
    Update     PersonalUpdate
    CreatedAt  time.Time
}

type StatusCount struct {
    Name           string `json:"name"`
    StatusCategory string `json:"statusCategory"`
    Count          int    `json:"count"`
}

type StaleCount struct {
    StatusName string `json:"statusName"`
    Count      int    `json:"count"`
}

type Velocity struct {
    CompletedThisWeek int    `json:"completedThisWeek"`
    CompletedPrevWeek *int   `json:"completedPrevWeek,omitempty"`
    Trend             string `json:"trend"` // up | down | stable | unknown
}

type Overcommitment struct {
    Detected             bool    `json:"detected"`
    Planned              int     `json:"planned"`
    BaselineAvgCompleted *int    `json:"baselineAvgCompleted"`
    ThresholdMultiplier  float64 `json:"thresholdMultiplier"`
}

type Week struct {
    Start time.Time `json:"start"`
    End   time.Time `json:"end"`
}

// WeeklyStats is the deterministic snapshot the summary narrative is built
// from. It has no persistent identity and is recomputed per request.
type WeeklyStats struct {
    Week                    Week           `json:"week"`
    ProjectKey              string         `json:"projectKey,omitempty"`
    TotalIssues             int            `json:"totalIssues"`
    CompletionRate          int            `json:"completionRate"` // 0..100
    CountsByStatusCategory  map[string]int `json:"countsByStatusCategory"`
    CountsByStatusName      []StatusCount  `json:"countsByStatusName"`
    StaleIssuesOver2Days    []StaleCount   `json:"staleIssuesOver2Days"`
    CarryoverFromBeforeWeek int            `json:"carryoverFromBeforeWeek"`
    Velocity                Velocity       `json:"velocity"`
    Overcommitment          Overcommitment `json:"overcommitment"`
    Anomalies               []string       `json:"anomalies"`
}

// SummaryCard, SummaryBar and SummarySection form the UI schema rendered by
// the chat client, filled either by the LLM or by the deterministic fallback.
type SummaryCard struct {
    Title    string `json:"title"`
    Value    string `json:"value"`
    Subtitle string `json:"subtitle,omitempty"`
    Tone     string `json:"tone,omitempty"` // neutral | success | warning | danger
}

type BarSegment struct {
    Label string `json:"label"`
    Value int    `json:"value"`
    Color string `json:"color,omitempty"`
}

type SummaryBar struct {
    Type       string       `json:"type"` // progress | stacked
    Label      string       `json:"label"`
    Value      int          `json:"value,omitempty"`      // progress: 0..100
    ValueLabel string       `json:"valueLabel,omitempty"` // progress
    Segments   []BarSegment `json:"segments,omitempty"`   // stacked
}

type SummarySection struct {
    Title   string   `json:"title"`
    Kind    string   `json:"kind,omitempty"` // text | bullets
    Text    string   `json:"text,omitempty"`
    Bullets []string `json:"bullets,omitempty"`
    Tone    string   `json:"tone,omitempty"`
}

type SummaryUI struct {
    Cards    []SummaryCard    `json:"cards"`
    Bars     []SummaryBar     `json:"bars"`
    Sections []SummarySection `json:"sections"`
}
