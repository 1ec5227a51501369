package services

import (
    "reflect"
    "testing"
    "time"

    "github.com/example/standup-pilot/internal/domain"
)

func mustTime(t *testing.T, s string) time.Time {
    t.Helper()
    ts, err := time.Parse(time.RFC3339, s)
    if err != nil {
        t.Fatalf("parse %q: %v", s, err)
    }
    return ts
}

func TestWeekStartIsMonday(t *testing.T) {
    cases := []struct {
        in   string
        want string
    }{
        {"2025-08-27T15:04:05Z", "2025-08-25T00:00:00Z"}, // Wednesday
        {"2025-08-25T00:00:00Z", "2025-08-25T00:00:00Z"}, // Monday itself
        {"2025-08-31T23:59:59Z", "2025-08-25T00:00:00Z"}, // Sunday
    }
    for _, c := range cases {
        got := WeekStart(mustTime(t, c.in))
        if !got.Equal(mustTime(t, c.want)) {
            t.Fatalf("WeekStart(%s) = %s, want %s", c.in, got, c.want)
        }
    }
}

func TestInWeekHalfOpen(t *testing.T) {
    w := WeekOf(mustTime(t, "2025-08-27T12:00:00Z"))
    inside := domain.Issue{Created: mustTime(t, "2025-08-26T08:00:00Z")}
    if !InWeek(inside, w) {
        t.Fatal("created inside window should be in scope")
    }
    updatedOnly := domain.Issue{
        Created: mustTime(t, "2025-08-01T08:00:00Z"),
        Updated: mustTime(t, "2025-08-28T08:00:00Z"),
    }
    if !InWeek(updatedOnly, w) {
        t.Fatal("updated inside window should be in scope")
    }
    atEnd := domain.Issue{Created: w.End}
    if InWeek(atEnd, w) {
        t.Fatal("window end is exclusive")
    }
    before := domain.Issue{
        Created: mustTime(t, "2025-08-01T08:00:00Z"),
        Updated: mustTime(t, "2025-08-10T08:00:00Z"),
    }
    if InWeek(before, w) {
        t.Fatal("untouched issue should be out of scope")
    }
}

func TestBaselineSkipsEmptyWindowsAndCaps(t *testing.T) {
    if got := Baseline(nil); got != nil {
        t.Fatalf("no samples should yield nil, got %v", *got)
    }
    if got := Baseline([]WeekSample{{Planned: 0, Completed: 0}}); got != nil {
        t.Fatalf("empty windows should yield nil, got %v", *got)
    }
    got := Baseline([]WeekSample{
        {Planned: 5, Completed: 4},
        {Planned: 0, Completed: 0}, // skipped
        {Planned: 3, Completed: 2},
        {Planned: 6, Completed: 6},
        {Planned: 4, Completed: 4},
        {Planned: 9, Completed: 9}, // beyond the 4-window cap
    })
    if got == nil || *got != 4 {
        t.Fatalf("baseline = %v, want 4", got)
    }
}

func statsFixture(t *testing.T, n int, completed int, carryover int, staleCount int) ([]domain.Issue, domain.Week, time.Time) {
    t.Helper()
    now := mustTime(t, "2025-08-29T12:00:00Z")
    w := WeekOf(now)
    var issues []domain.Issue
    for i := 0; i < n; i++ {
        iss := domain.Issue{
            Key:            "PROJ-" + string(rune('1'+i)),
            Status:         "In Progress",
            StatusCategory: "indeterminate",
            Created:        w.Start.Add(time.Hour),
            Updated:        now.Add(-time.Hour),
        }
        if i < completed {
            iss.Status = "Done"
            iss.StatusCategory = "done"
        }
        if i >= n-carryover && iss.StatusCategory != "done" {
            iss.Created = w.Start.Add(-72 * time.Hour)
        }
        if i >= n-staleCount {
            iss.Updated = now.Add(-72 * time.Hour)
        }
        issues = append(issues, iss)
    }
    return issues, w, now
}

func TestComputeWeeklyStatsDeterministic(t *testing.T) {
    issues, w, now := statsFixture(t, 4, 2, 0, 0)
    a := ComputeWeeklyStats(issues, "PROJ", w, now, nil, nil)
    b := ComputeWeeklyStats(issues, "PROJ", w, now, nil, nil)
    if !reflect.DeepEqual(a, b) {
        t.Fatal("same inputs must produce identical stats")
    }
    if a.TotalIssues != 4 || a.CompletionRate != 50 {
        t.Fatalf("unexpected stats %+v", a)
    }
    if a.CountsByStatusCategory["done"] != 2 || a.CountsByStatusCategory["indeterminate"] != 2 {
        t.Fatalf("category counts wrong: %+v", a.CountsByStatusCategory)
    }
    if a.Velocity.Trend != "unknown" {
        t.Fatalf("trend without history should be unknown, got %q", a.Velocity.Trend)
    }
}

func TestCompletionRateZeroScope(t *testing.T) {
    s := ComputeWeeklyStats(nil, "", WeekOf(mustTime(t, "2025-08-29T12:00:00Z")), mustTime(t, "2025-08-29T12:00:00Z"), nil, nil)
    if s.CompletionRate != 0 || s.TotalIssues != 0 {
        t.Fatalf("empty scope: %+v", s)
    }
    if len(s.Anomalies) != 0 {
        t.Fatalf("empty scope should raise no anomalies, got %v", s.Anomalies)
    }
}

func TestNoCompletionAnomalyThreshold(t *testing.T) {
    // two planned, none done: below threshold, no anomaly
    issues, w, now := statsFixture(t, 2, 0, 0, 0)
    s := ComputeWeeklyStats(issues, "", w, now, nil, nil)
    for _, a := range s.Anomalies {
        if a == "No issues completed this week" {
            t.Fatal("anomaly must not fire under 3 planned issues")
        }
    }
    // three planned, none done: fires
    issues, w, now = statsFixture(t, 3, 0, 0, 0)
    s = ComputeWeeklyStats(issues, "", w, now, nil, nil)
    found := false
    for _, a := range s.Anomalies {
        if a == "No issues completed this week" { found = true }
    }
    if !found {
        t.Fatalf("expected anomaly at 3 planned, got %v", s.Anomalies)
    }
}

func TestCompletionDropAnomaly(t *testing.T) {
    issues, w, now := statsFixture(t, 4, 1, 0, 0)
    prev := 3
    s := ComputeWeeklyStats(issues, "", w, now, &prev, nil)
    if len(s.Anomalies) == 0 || s.Anomalies[0] != "Completion dropped vs last week" {
        t.Fatalf("expected drop anomaly first, got %v", s.Anomalies)
    }
    if s.Velocity.Trend != "down" {
        t.Fatalf("trend = %q, want down", s.Velocity.Trend)
    }
}

func TestStaleAndCarryoverAnomalies(t *testing.T) {
    issues, w, now := statsFixture(t, 6, 0, 3, 2)
    s := ComputeWeeklyStats(issues, "", w, now, nil, nil)
    if s.CarryoverFromBeforeWeek != 3 {
        t.Fatalf("carryover = %d, want 3", s.CarryoverFromBeforeWeek)
    }
    var names []string
    for _, a := range s.Anomalies { names = append(names, a) }
    want := []string{
        "No issues completed this week",
        "Low completion rate this week",
        "Some issues have not been updated in > 2 days",
        "High carryover from before this week",
        "Majority of in-scope issues are carryover from before this week",
    }
    if !reflect.DeepEqual(names, want) {
        t.Fatalf("anomalies = %v, want %v", names, want)
    }
}

func TestOvercommitDetection(t *testing.T) {
    issues, w, now := statsFixture(t, 5, 5, 0, 0)
    baseline := 3.4 // rounds to 3; 5 > 3*1.2
    s := ComputeWeeklyStats(issues, "", w, now, nil, &baseline)
    if !s.Overcommitment.Detected {
        t.Fatalf("expected overcommitment, got %+v", s.Overcommitment)
    }
    if s.Overcommitment.BaselineAvgCompleted == nil || *s.Overcommitment.BaselineAvgCompleted != 3 {
        t.Fatalf("baseline rounding wrong: %+v", s.Overcommitment)
    }
    baseline = 5
    s = ComputeWeeklyStats(issues, "", w, now, nil, &baseline)
    if s.Overcommitment.Detected {
        t.Fatalf("5 planned vs baseline 5 must not trip the 1.2x threshold: %+v", s.Overcommitment)
    }
}

func TestStatusNameCountsOrderedDesc(t *testing.T) {
    now := mustTime(t, "2025-08-29T12:00:00Z")
    w := WeekOf(now)
    mk := func(status, cat string) domain.Issue {
        return domain.Issue{Status: status, StatusCategory: cat, Created: w.Start.Add(time.Hour), Updated: now}
    }
    issues := []domain.Issue{
        mk("To Do", "new"),
        mk("In Progress", "indeterminate"),
        mk("In Progress", "indeterminate"),
        mk("Done", "done"),
    }
    s := ComputeWeeklyStats(issues, "", w, now, nil, nil)
    if s.CountsByStatusName[0].Name != "In Progress" || s.CountsByStatusName[0].Count != 2 {
        t.Fatalf("expected In Progress first, got %+v", s.CountsByStatusName)
    }
    // equal counts keep first-seen order
    if s.CountsByStatusName[1].Name != "To Do" || s.CountsByStatusName[2].Name != "Done" {
        t.Fatalf("tie order wrong: %+v", s.CountsByStatusName)
    }
}
