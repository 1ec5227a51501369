package agent

import (
    "fmt"
    "time"
)

// Flow names the day-conditioned conversation mode.
const (
    FlowMondayPlanning = "monday_planning"
    FlowFridayReview   = "friday_review"
    FlowGeneral        = "general"
)

// FlowFor picks the flow from the ISO day of week: Monday plans, Friday
// reviews, everything else is general issue management.
func FlowFor(t time.Time) string {
    switch t.Weekday() {
    case time.Monday:
        return FlowMondayPlanning
    case time.Friday:
        return FlowFridayReview
    default:
        return FlowGeneral
    }
}

const basePrompt = `You are a standup assistant that helps a developer manage their Jira issues and weekly updates through conversation.
You have tools for listing and inspecting issues, moving them through their workflow, and generating weekly updates and summaries.
Ground every statement in tool results; never invent issue keys, statuses or numbers.
When a requested status is not available, show the user the transitions that are and ask which to use.
Issue keys look like PROJ-123; users may write them with an @ prefix or stray punctuation.`

var flowGuidance = map[string]string{
    FlowMondayPlanning: `It is Monday. Lean toward planning: help the user review carryover, pick this week's focus, and tidy stale issues.`,
    FlowFridayReview:   `It is Friday. Lean toward review: offer to generate the weekly update or summary and to close out finished work.`,
    FlowGeneral:        `Help with whatever issue management the user asks for.`,
}

// SystemPrompt renders the full system prompt for one chat turn.
func SystemPrompt(flow string, now time.Time) string {
    guidance, ok := flowGuidance[flow]
    if !ok { guidance = flowGuidance[FlowGeneral] }
    return fmt.Sprintf("%s\n\n%s\nToday is %s.", basePrompt, guidance, now.Format("Monday, 2 January 2006"))
}
