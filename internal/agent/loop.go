package agent

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/rs/zerolog"

    openaiadapter "github.com/example/standup-pilot/internal/adapters/openai"
    "github.com/example/standup-pilot/internal/services"
)

// ChatModel is the tool-calling completion surface the loop drives.
type ChatModel interface {
    ChatWithTools(ctx context.Context, messages []openaiadapter.Message, tools []openaiadapter.ToolDef) (*openaiadapter.Message, error)
}

// ToolEvent is one executed tool call with its structured result, surfaced to
// the UI alongside the final text.
type ToolEvent struct {
    Name   string          `json:"name"`
    Result json.RawMessage `json:"result"`
}

type Reply struct {
    Text  string      `json:"text"`
    Tools []ToolEvent `json:"tools,omitempty"`
    Flow  string      `json:"flow"`
}

// Agent runs the chat turn loop: generate, execute requested tools, feed
// results back, repeat until the model answers in text or the step cap hits.
type Agent struct {
    svc      *services.Service
    model    ChatModel
    maxSteps int
    now      func() time.Time
    log      zerolog.Logger
}

func New(svc *services.Service, model ChatModel, maxSteps int, log zerolog.Logger) *Agent {
    if maxSteps <= 0 { maxSteps = 5 }
    return &Agent{svc: svc, model: model, maxSteps: maxSteps, now: time.Now, log: log}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
    if required == nil { required = []string{} }
    return map[string]any{
        "type":                 "object",
        "properties":           props,
        "required":             required,
        "additionalProperties": false,
    }
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

func (a *Agent) tools() []openaiadapter.ToolDef {
    return []openaiadapter.ToolDef{
        {
            Name:        "list_issues",
            Description: "List the user's Jira issues. With a query it searches key, summary and text; without one it lists issues assigned to the user.",
            Parameters: objectSchema(map[string]any{
                "query":      str("Optional free-text search"),
                "projectKey": str("Optional project key to scope to"),
                "maxResults": map[string]any{"type": "integer", "description": "Cap on returned issues, default 20"},
            }),
        },
        {
            Name:        "get_issue",
            Description: "Fetch one Jira issue in full detail by key.",
            Parameters:  objectSchema(map[string]any{"issueKey": str("Issue key, e.g. PROJ-123")}, "issueKey"),
        },
        {
            Name:        "update_issue_status",
            Description: "Move an issue to a named status. If the status is not reachable, the available transitions come back for disambiguation.",
            Parameters: objectSchema(map[string]any{
                "issueKey": str("Issue key, e.g. PROJ-123"),
                "status":   str("Desired status name, e.g. Done"),
            }, "issueKey", "status"),
        },
        {
            Name:        "list_statuses",
            Description: "List workflow statuses, instance-wide or scoped to a project.",
            Parameters:  objectSchema(map[string]any{"projectKey": str("Optional project key")}),
        },
        {
            Name:        "list_transitions",
            Description: "List the transitions currently available for an issue.",
            Parameters:  objectSchema(map[string]any{"issueKey": str("Issue key, e.g. PROJ-123")}, "issueKey"),
        },
        {
            Name:        "get_user_context",
            Description: "Fetch the user's Jira identity and whether they hold administration permissions.",
            Parameters:  objectSchema(map[string]any{"projectKey": str("Optional project key for project-scoped permission checks")}),
        },
        {
            Name:        "generate_personal_update",
            Description: "Generate the user's three-part weekly standup update and save it as a draft.",
            Parameters:  objectSchema(map[string]any{"projectKey": str("Optional project key to scope to")}),
        },
        {
            Name:        "apply_personal_update",
            Description: "Post the saved weekly update draft (optionally edited by the user) as comments on the relevant issues.",
            Parameters:  objectSchema(map[string]any{"draft": str("Optional edited draft text; omit to use the saved draft")}),
        },
        {
            Name:        "generate_weekly_summary",
            Description: "Compute weekly statistics and render a summary with cards, bars and sections. Admins must name a project.",
            Parameters: objectSchema(map[string]any{
                "windowStart": str("Optional RFC3339 date inside the target week; defaults to the current week"),
                "projectKey":  str("Optional project key"),
            }),
        },
    }
}

func (a *Agent) execute(ctx context.Context, userID, name, args string) (json.RawMessage, error) {
    var in struct {
        Query       string `json:"query"`
        ProjectKey  string `json:"projectKey"`
        MaxResults  int    `json:"maxResults"`
        IssueKey    string `json:"issueKey"`
        Status      string `json:"status"`
        Draft       string `json:"draft"`
        WindowStart string `json:"windowStart"`
    }
    if args != "" {
        if err := json.Unmarshal([]byte(args), &in); err != nil {
            return nil, fmt.Errorf("bad tool arguments: %w", err)
        }
    }
    var result any
    switch name {
    case "list_issues":
        result = a.svc.ListIssues(ctx, userID, in.Query, in.ProjectKey, in.MaxResults)
    case "get_issue":
        result = a.svc.GetIssue(ctx, userID, in.IssueKey)
    case "update_issue_status":
        result = a.svc.UpdateIssueStatus(ctx, userID, in.IssueKey, in.Status)
    case "list_statuses":
        result = a.svc.ListStatuses(ctx, userID, in.ProjectKey)
    case "list_transitions":
        result = a.svc.ListTransitions(ctx, userID, in.IssueKey)
    case "get_user_context":
        result = a.svc.GetUserContext(ctx, userID, in.ProjectKey)
    case "generate_personal_update":
        result = a.svc.GeneratePersonalUpdate(ctx, userID, in.ProjectKey)
    case "apply_personal_update":
        result = a.svc.ApplyPersonalUpdate(ctx, userID, in.Draft)
    case "generate_weekly_summary":
        var ws *time.Time
        if in.WindowStart != "" {
            if t, err := time.Parse(time.RFC3339, in.WindowStart); err == nil { ws = &t }
        }
        result = a.svc.GenerateWeeklySummary(ctx, userID, ws, in.ProjectKey)
    default:
        return nil, fmt.Errorf("unknown tool %q", name)
    }
    return json.Marshal(result)
}

// Run executes one chat turn. Tool calls within a step run sequentially in
// the order the model asked for them.
func (a *Agent) Run(ctx context.Context, userID, message string) (*Reply, error) {
    now := a.now()
    flow := FlowFor(now)
    messages := []openaiadapter.Message{
        {Role: "system", Content: SystemPrompt(flow, now)},
        {Role: "user", Content: message},
    }
    reply := &Reply{Flow: flow}
    tools := a.tools()

    for step := 0; step < a.maxSteps; step++ {
        resp, err := a.model.ChatWithTools(ctx, messages, tools)
        if err != nil { return nil, err }
        if len(resp.ToolCalls) == 0 {
            reply.Text = resp.Content
            return reply, nil
        }
        messages = append(messages, *resp)
        for _, tc := range resp.ToolCalls {
            out, err := a.execute(ctx, userID, tc.Name, tc.Arguments)
            if err != nil {
                a.log.Warn().Err(err).Str("tool", tc.Name).Msg("tool execution rejected")
                out, _ = json.Marshal(map[string]any{"success": false, "message": err.Error()})
            }
            reply.Tools = append(reply.Tools, ToolEvent{Name: tc.Name, Result: out})
            messages = append(messages, openaiadapter.Message{Role: "tool", Content: string(out), ToolCallID: tc.ID})
        }
    }

    // step cap reached with tool calls still pending
    reply.Text = "I gathered what I could; ask me to continue if you need more."
    return reply, nil
}
