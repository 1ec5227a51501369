package services

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/example/standup-pilot/internal/adapters/jira"
    openaiadapter "github.com/example/standup-pilot/internal/adapters/openai"
    "github.com/example/standup-pilot/internal/domain"
)

const fallbackQuestion = "Do you want me to focus this report on a specific Jira project?"

type WeeklySummaryResult struct {
    Success          bool                `json:"success"`
    Message          string              `json:"message,omitempty"`
    Role             string              `json:"role,omitempty"`
    Stats            *domain.WeeklyStats `json:"stats,omitempty"`
    UI               *domain.SummaryUI   `json:"ui,omitempty"`
    FollowUpQuestion string              `json:"followUpQuestion,omitempty"`
}

type summaryOut struct {
    Cards            []domain.SummaryCard    `json:"cards" jsonschema_description:"3 to 6 headline metric cards"`
    Bars             []domain.SummaryBar     `json:"bars" jsonschema_description:"A completion progress bar and a status-category stacked bar"`
    Sections         []domain.SummarySection `json:"sections" jsonschema_description:"Summary, Insights, Next Week Focus, and Anomalies when present"`
    FollowUpQuestion string                  `json:"followUpQuestion" jsonschema_description:"Exactly one follow-up question for the user"`
}

var summarySchema = openaiadapter.GenerateSchema[summaryOut]()

const summaryPrompt = `You turn a precomputed weekly Jira statistics snapshot into a presentation schema.
Rules:
- Use only the numbers in the snapshot; never invent figures.
- Produce 3 to 6 cards, a completion progress bar, a status-category stacked bar.
- Produce sections titled "Summary", "Insights" and "Next Week Focus". Add an "Anomalies" section only when the snapshot lists anomalies.
- Ask exactly one follow-up question.`

// GenerateWeeklySummary builds the deterministic stats snapshot for the
// requested window and has the model narrate it. Admins report on a project,
// developers on their own assignments. The model never sees raw issues, only
// the snapshot.
func (s *Service) GenerateWeeklySummary(ctx context.Context, userID string, windowStart *time.Time, projectKey string) WeeklySummaryResult {
    api, _, msg := s.connect(ctx, userID)
    if msg != "" { return WeeklySummaryResult{Message: msg} }

    uc := s.GetUserContext(ctx, userID, projectKey)
    if !uc.Success {
        return WeeklySummaryResult{Message: uc.Message}
    }
    if uc.Role == "admin" && projectKey == "" {
        return WeeklySummaryResult{Message: msgAdminNeedsProject, Role: uc.Role}
    }

    jql := jira.MyIssuesJQL(projectKey)
    if uc.Role == "admin" { jql = jira.ProjectJQL(projectKey) }
    res, err := api.SearchIssues(ctx, jql, nil, summaryFetchSize)
    if err != nil {
        s.log.Warn().Err(err).Str("user_id", userID).Msg("summary fetch failed")
        return WeeklySummaryResult{Message: fmt.Sprintf("Could not fetch issues for the summary: %v", err), Role: uc.Role}
    }

    now := time.Now()
    anchor := now
    if windowStart != nil { anchor = *windowStart }
    week := WeekOf(anchor)

    inWeek := func(w domain.Week) []domain.Issue {
        var out []domain.Issue
        for _, iss := range res.Issues {
            if InWeek(iss, w) { out = append(out, iss) }
        }
        return out
    }

    scoped := inWeek(week)
    prevWeek := domain.Week{Start: week.Start.AddDate(0, 0, -7), End: week.Start}
    prevScoped := inWeek(prevWeek)
    var prevCompleted *int
    if len(prevScoped) > 0 {
        n := CompletedCount(prevScoped)
        prevCompleted = &n
    }

    // baseline looks at the 4 immediately preceding weeks only; empty ones
    // are excluded from the mean, never substituted from further back
    var samples []WeekSample
    for i := 1; i <= baselineWindowCount; i++ {
        w := domain.Week{Start: week.Start.AddDate(0, 0, -7*i), End: week.Start.AddDate(0, 0, -7*(i-1))}
        issues := inWeek(w)
        samples = append(samples, WeekSample{Planned: len(issues), Completed: CompletedCount(issues)})
    }
    baseline := Baseline(samples)

    stats := ComputeWeeklyStats(scoped, projectKey, week, now, prevCompleted, baseline)

    // project workflow statuses give the model the team's vocabulary
    workflowContext := ""
    if projectKey != "" {
        if ps, err := api.GetProjectStatuses(ctx, projectKey); err == nil {
            names := map[string]bool{}
            for _, p := range ps { names[p.Name] = true }
            var uniq []string
            for n := range names { uniq = append(uniq, n) }
            b, _ := json.Marshal(uniq)
            workflowContext = fmt.Sprintf("\nWorkflow statuses in %s: %s", projectKey, b)
        }
    }

    snapshot, err := json.Marshal(stats)
    if err != nil {
        return WeeklySummaryResult{Message: "Could not prepare the summary snapshot.", Role: uc.Role}
    }

    var out summaryOut
    llmErr := s.llm.GenerateObject(ctx, summaryPrompt,
        fmt.Sprintf("Snapshot:\n%s%s", snapshot, workflowContext),
        "weekly_summary", summarySchema, &out)
    if llmErr != nil || len(out.Cards) < 3 || out.FollowUpQuestion == "" {
        if llmErr != nil {
            s.log.Warn().Err(llmErr).Str("user_id", userID).Msg("summary generation failed, using fallback")
        }
        ui, q := fallbackSummaryUI(stats)
        return WeeklySummaryResult{Success: true, Role: uc.Role, Stats: &stats, UI: ui, FollowUpQuestion: q}
    }
    if len(out.Cards) > 6 { out.Cards = out.Cards[:6] }
    ui := &domain.SummaryUI{Cards: out.Cards, Bars: out.Bars, Sections: out.Sections}
    return WeeklySummaryResult{Success: true, Role: uc.Role, Stats: &stats, UI: ui, FollowUpQuestion: out.FollowUpQuestion}
}

// fallbackSummaryUI renders the snapshot without any model involvement so the
// operation degrades instead of failing.
func fallbackSummaryUI(stats domain.WeeklyStats) (*domain.SummaryUI, string) {
    ui := &domain.SummaryUI{
        Cards: []domain.SummaryCard{
            {Title: "Completion", Value: fmt.Sprintf("%d%%", stats.CompletionRate), Tone: "neutral"},
            {Title: "Total issues", Value: fmt.Sprint(stats.TotalIssues), Tone: "neutral"},
            {Title: "Carryover", Value: fmt.Sprint(stats.CarryoverFromBeforeWeek), Tone: "neutral"},
        },
        Bars: []domain.SummaryBar{
            {Type: "progress", Label: "Completion", Value: stats.CompletionRate, ValueLabel: fmt.Sprintf("%d%%", stats.CompletionRate)},
        },
        Sections: []domain.SummarySection{
            {Title: "Summary", Kind: "text", Tone: "warning",
                Text: "The detailed narrative is temporarily unavailable. The numbers above are computed directly from your Jira issues."},
        },
    }
    var segments []domain.BarSegment
    for _, sc := range stats.CountsByStatusName {
        segments = append(segments, domain.BarSegment{Label: sc.Name, Value: sc.Count})
    }
    if len(segments) > 0 {
        ui.Bars = append(ui.Bars, domain.SummaryBar{Type: "stacked", Label: "Status breakdown", Segments: segments})
    }
    if len(stats.Anomalies) > 0 {
        ui.Sections = append(ui.Sections, domain.SummarySection{Title: "Anomalies", Kind: "bullets", Bullets: stats.Anomalies, Tone: "warning"})
    }
    return ui, fallbackQuestion
}
