package services

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/example/standup-pilot/internal/adapters/jira"
    openaiadapter "github.com/example/standup-pilot/internal/adapters/openai"
    "github.com/example/standup-pilot/internal/domain"
    "github.com/example/standup-pilot/internal/repo"
)

const (
    updateSliceSize    = 10
    updateStaleSlice   = 5
    updateStaleAfter   = 72 * time.Hour
    applyCommentCap    = 10
    applyPromptTaskCap = 25
)

type PersonalUpdateResult struct {
    Success    bool                   `json:"success"`
    Message    string                 `json:"message,omitempty"`
    Update     *domain.PersonalUpdate `json:"update,omitempty"`
    IssueCount int                    `json:"issueCount,omitempty"`
}

type ApplyItem struct {
    IssueKey string `json:"issueKey"`
    Success  bool   `json:"success"`
    Error    string `json:"error,omitempty"`
}

type ApplyUpdateResult struct {
    Success bool        `json:"success"`
    Message string      `json:"message,omitempty"`
    Applied int         `json:"applied"`
    Items   []ApplyItem `json:"items,omitempty"`
}

type personalUpdateOut struct {
    Answers domain.UpdateAnswers `json:"answers" jsonschema_description:"Three-part standup answer"`
    Draft   string               `json:"draft" jsonschema_description:"One combined message ready to share"`
    Nudges  []string             `json:"nudges" jsonschema_description:"Zero to three gentle private reminders"`
}

var personalUpdateSchema = openaiadapter.GenerateSchema[personalUpdateOut]()

const personalUpdatePrompt = `You write short, friendly weekly standup updates for a software developer.
Rules:
- Never rank, score, or compare the person's output.
- Produce exactly three answer parts: what was completed, what was not completed, what is blocked or unclear.
- Produce one combined draft message suitable for posting to a team channel.
- Produce 0 to 3 gentle private nudges (for the person only), each one sentence. Omit nudges rather than inventing them.`

func issueLines(issues []domain.Issue) string {
    var b strings.Builder
    for _, iss := range issues {
        fmt.Fprintf(&b, "- %s: %s (%s)\n", iss.Key, iss.Title, iss.Status)
    }
    if b.Len() == 0 { return "- none\n" }
    return b.String()
}

// GeneratePersonalUpdate turns the caller's assigned issues into a three-part
// standup answer plus a draft message, and stores the draft superseding any
// previous one.
func (s *Service) GeneratePersonalUpdate(ctx context.Context, userID, projectKey string) PersonalUpdateResult {
    api, _, msg := s.connect(ctx, userID)
    if msg != "" { return PersonalUpdateResult{Message: msg} }

    res, err := api.SearchIssues(ctx, jira.MyIssuesJQL(projectKey), nil, personalFetchSize)
    if err != nil {
        s.log.Warn().Err(err).Str("user_id", userID).Msg("personal update fetch failed")
        return PersonalUpdateResult{Message: fmt.Sprintf("Could not fetch your issues: %v", err)}
    }

    now := time.Now()
    var done, notDone, stale []domain.Issue
    for _, iss := range res.Issues {
        if iss.StatusCategory == "done" {
            done = append(done, iss)
        } else {
            notDone = append(notDone, iss)
        }
        // staleness is independent of completion state
        if !iss.Updated.IsZero() && now.Sub(iss.Updated) >= updateStaleAfter {
            stale = append(stale, iss)
        }
    }
    if len(done) > updateSliceSize { done = done[:updateSliceSize] }
    if len(notDone) > updateSliceSize { notDone = notDone[:updateSliceSize] }
    if len(stale) > updateStaleSlice { stale = stale[:updateStaleSlice] }

    user := fmt.Sprintf("Completed recently:\n%s\nStill open:\n%s\nNot touched in over 3 days:\n%s",
        issueLines(done), issueLines(notDone), issueLines(stale))

    var out personalUpdateOut
    if err := s.llm.GenerateObject(ctx, personalUpdatePrompt, user, "personal_update", personalUpdateSchema, &out); err != nil {
        s.log.Warn().Err(err).Str("user_id", userID).Msg("personal update generation failed")
        return PersonalUpdateResult{Message: "Could not generate your weekly update right now. Please try again."}
    }
    if len(out.Nudges) > 3 { out.Nudges = out.Nudges[:3] }

    update := domain.PersonalUpdate{Answers: out.Answers, Draft: out.Draft, Nudges: out.Nudges}
    draft := &domain.UpdateDraft{
        UserID:     userID,
        ProjectKey: projectKey,
        Issues:     res.Issues,
        Update:     update,
    }
    if err := s.store.CreateDraft(ctx, draft); err != nil {
        s.log.Error().Err(err).Str("user_id", userID).Msg("draft persist failed")
        return PersonalUpdateResult{Message: "Generated your update but could not save the draft. Please try again."}
    }
    return PersonalUpdateResult{Success: true, Update: &update, IssueCount: len(res.Issues)}
}

type applyCommentsOut struct {
    Comments []struct {
        IssueKey string `json:"issueKey" jsonschema_description:"Key of an issue from the provided list"`
        Comment  string `json:"comment" jsonschema_description:"Comment text for that issue"`
    } `json:"comments"`
}

var applyCommentsSchema = openaiadapter.GenerateSchema[applyCommentsOut]()

const applyCommentsPrompt = `You split a developer's weekly update into per-issue comments.
Rules:
- Only use issue keys from the provided list; never invent keys.
- At most 10 comments; skip issues the update says nothing about.
- Each comment is a short, factual note of this week's progress on that issue.`

// ApplyPersonalUpdate maps the latest draft (optionally edited by the user)
// onto per-issue comments and posts them. One failed comment never aborts the
// batch; the tally reports per-issue outcomes.
func (s *Service) ApplyPersonalUpdate(ctx context.Context, userID, editedDraft string) ApplyUpdateResult {
    api, _, msg := s.connect(ctx, userID)
    if msg != "" { return ApplyUpdateResult{Message: msg} }

    draft, err := s.store.LatestDraft(ctx, userID)
    if err == repo.ErrNotFound { return ApplyUpdateResult{Message: msgNoDraft} }
    if err != nil {
        s.log.Error().Err(err).Str("user_id", userID).Msg("draft load failed")
        return ApplyUpdateResult{Message: "Could not load your weekly update draft. Please try again."}
    }

    text := strings.TrimSpace(editedDraft)
    if text == "" { text = strings.TrimSpace(draft.Update.Draft) }
    if text == "" { return ApplyUpdateResult{Message: msgNoDraft} }

    snapshot := draft.Issues
    if len(snapshot) > applyPromptTaskCap { snapshot = snapshot[:applyPromptTaskCap] }
    allowed := map[string]bool{}
    for _, iss := range draft.Issues { allowed[iss.Key] = true }

    user := fmt.Sprintf("Update:\n%s\n\nIssues:\n%s", text, issueLines(snapshot))
    var out applyCommentsOut
    if err := s.llm.GenerateObject(ctx, applyCommentsPrompt, user, "apply_comments", applyCommentsSchema, &out); err != nil {
        s.log.Warn().Err(err).Str("user_id", userID).Msg("comment mapping failed")
        return ApplyUpdateResult{Message: "Could not map your update onto issues right now. Please try again."}
    }

    var items []ApplyItem
    applied := 0
    for _, c := range out.Comments {
        if len(items) == applyCommentCap { break }
        key := SanitizeIssueKey(c.IssueKey)
        if key == "" || !allowed[key] || strings.TrimSpace(c.Comment) == "" { continue }
        item := ApplyItem{IssueKey: key}
        if err := api.AddComment(ctx, key, c.Comment); err != nil {
            item.Error = err.Error()
            s.log.Warn().Err(err).Str("issue_key", key).Msg("comment post failed")
        } else {
            item.Success = true
            applied++
        }
        items = append(items, item)
    }
    return ApplyUpdateResult{
        Success: true,
        Message: fmt.Sprintf("Applied comments to %d issue(s).", applied),
        Applied: applied,
        Items:   items,
    }
}
