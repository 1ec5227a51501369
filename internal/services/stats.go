package services

import (
    "math"
    "sort"
    "time"

    "github.com/example/standup-pilot/internal/domain"
)

const (
    staleAfter          = 48 * time.Hour
    overcommitFactor    = 1.2
    baselineWindowCount = 4
)

// WeekStart truncates t to the preceding Monday at 00:00 in t's location.
func WeekStart(t time.Time) time.Time {
    day := t.Weekday()
    offset := int(day) - int(time.Monday)
    if offset < 0 { offset += 7 }
    d := t.AddDate(0, 0, -offset)
    return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

// WeekOf is the half-open Monday-to-Monday window containing t.
func WeekOf(t time.Time) domain.Week {
    start := WeekStart(t)
    return domain.Week{Start: start, End: start.AddDate(0, 0, 7)}
}

// InWeek reports whether the issue was touched in the window: created or
// updated inside [Start, End).
func InWeek(iss domain.Issue, w domain.Week) bool {
    in := func(t time.Time) bool {
        return !t.IsZero() && !t.Before(w.Start) && t.Before(w.End)
    }
    return in(iss.Created) || in(iss.Updated)
}

// WeekSample is one prior window's scope and outcome, newest first.
type WeekSample struct {
    Planned   int
    Completed int
}

// Baseline averages completed counts over up to four of the most recent
// non-empty prior windows. Nil when no prior window had any scope.
func Baseline(samples []WeekSample) *float64 {
    sum, n := 0, 0
    for _, s := range samples {
        if s.Planned == 0 { continue }
        sum += s.Completed
        n++
        if n == baselineWindowCount { break }
    }
    if n == 0 { return nil }
    avg := float64(sum) / float64(n)
    return &avg
}

func CompletedCount(issues []domain.Issue) int {
    n := 0
    for _, iss := range issues {
        if iss.StatusCategory == "done" { n++ }
    }
    return n
}

// ComputeWeeklyStats derives the full deterministic snapshot for one window.
// issues is the in-scope set for the window; prevCompleted is last week's
// completed count when known; baselineAvg comes from Baseline.
func ComputeWeeklyStats(issues []domain.Issue, projectKey string, week domain.Week, now time.Time, prevCompleted *int, baselineAvg *float64) domain.WeeklyStats {
    planned := len(issues)
    completed := CompletedCount(issues)

    byCategory := map[string]int{}
    var byName []domain.StatusCount
    nameIdx := map[string]int{}
    for _, iss := range issues {
        byCategory[iss.StatusCategory]++
        if i, ok := nameIdx[iss.Status]; ok {
            byName[i].Count++
        } else {
            nameIdx[iss.Status] = len(byName)
            byName = append(byName, domain.StatusCount{Name: iss.Status, StatusCategory: iss.StatusCategory, Count: 1})
        }
    }
    sort.SliceStable(byName, func(i, j int) bool { return byName[i].Count > byName[j].Count })

    var stale []domain.StaleCount
    staleIdx := map[string]int{}
    staleTotal := 0
    for _, iss := range issues {
        if iss.Updated.IsZero() || now.Sub(iss.Updated) < staleAfter { continue }
        staleTotal++
        if i, ok := staleIdx[iss.Status]; ok {
            stale[i].Count++
        } else {
            staleIdx[iss.Status] = len(stale)
            stale = append(stale, domain.StaleCount{StatusName: iss.Status, Count: 1})
        }
    }
    sort.SliceStable(stale, func(i, j int) bool { return stale[i].Count > stale[j].Count })

    carryover := 0
    for _, iss := range issues {
        if !iss.Created.IsZero() && iss.Created.Before(week.Start) && iss.StatusCategory != "done" { carryover++ }
    }

    rate := 0
    if planned > 0 { rate = int(math.Round(100 * float64(completed) / float64(planned))) }

    velocity := domain.Velocity{CompletedThisWeek: completed, CompletedPrevWeek: prevCompleted, Trend: "unknown"}
    if prevCompleted != nil {
        switch {
        case completed > *prevCompleted:
            velocity.Trend = "up"
        case completed < *prevCompleted:
            velocity.Trend = "down"
        default:
            velocity.Trend = "stable"
        }
    }

    over := domain.Overcommitment{Planned: planned, ThresholdMultiplier: overcommitFactor}
    if baselineAvg != nil {
        rounded := int(math.Round(*baselineAvg))
        over.BaselineAvgCompleted = &rounded
        over.Detected = float64(planned) > float64(rounded)*overcommitFactor
    }

    var anomalies []string
    if prevCompleted != nil && *prevCompleted >= 3 && completed <= *prevCompleted-2 {
        anomalies = append(anomalies, "Completion dropped vs last week")
    }
    if planned >= 3 && completed == 0 {
        anomalies = append(anomalies, "No issues completed this week")
    }
    if planned >= 5 && rate <= 40 {
        anomalies = append(anomalies, "Low completion rate this week")
    }
    if staleTotal > 0 {
        anomalies = append(anomalies, "Some issues have not been updated in > 2 days")
    }
    if carryover >= 3 {
        anomalies = append(anomalies, "High carryover from before this week")
    }
    if planned > 0 && float64(carryover)/float64(planned) >= 0.5 {
        anomalies = append(anomalies, "Majority of in-scope issues are carryover from before this week")
    }
    if over.Detected {
        anomalies = append(anomalies, "Overcommitment detected vs recent baseline")
    }

    return domain.WeeklyStats{
        Week:                    week,
        ProjectKey:              projectKey,
        TotalIssues:             planned,
        CompletionRate:          rate,
        CountsByStatusCategory:  byCategory,
        CountsByStatusName:      byName,
        StaleIssuesOver2Days:    stale,
        CarryoverFromBeforeWeek: carryover,
        Velocity:                velocity,
        Overcommitment:          over,
        Anomalies:               anomalies,
    }
}
