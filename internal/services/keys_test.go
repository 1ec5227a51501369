package services

import (
    "testing"

    "github.com/example/standup-pilot/internal/domain"
)

func TestSanitizeIssueKey(t *testing.T) {
    cases := []struct {
        in   string
        want string
    }{
        {"PROJ-123", "PROJ-123"},
        {"proj-123", "PROJ-123"},
        {"@proj-123", "PROJ-123"},
        {"@@PROJ-123", "PROJ-123"},
        {"(PROJ-123),", "PROJ-123"},
        {"  proj-123!  ", "PROJ-123"},
        {"AB2-9", "AB2-9"},
        {"see PROJ-7 please", "PROJ-7"},
        {"A-1", ""},     // single-letter prefix is not a key
        {"123-456", ""}, // must start with a letter
        {"PROJ-", ""},
        {"", ""},
        {"@", ""},
        {"hello", ""},
    }
    for _, c := range cases {
        if got := SanitizeIssueKey(c.in); got != c.want {
            t.Fatalf("SanitizeIssueKey(%q) = %q, want %q", c.in, got, c.want)
        }
    }
}

func TestPickBestTransitionExactBeatsSubstring(t *testing.T) {
    trs := []domain.Transition{
        {ID: "1", Name: "Start progress", ToStatus: "In Progress"},
        {ID: "2", Name: "Done", ToStatus: "Done"},
        {ID: "3", Name: "Close as done", ToStatus: "Closed Done"},
    }
    got := PickBestTransition("done", trs)
    if got == nil || got.ID != "2" {
        t.Fatalf("expected exact match on transition 2, got %+v", got)
    }
}

func TestPickBestTransitionNormalizes(t *testing.T) {
    trs := []domain.Transition{
        {ID: "1", Name: "Move to In-Progress", ToStatus: "In Progress"},
    }
    got := PickBestTransition("IN PROGRESS", trs)
    if got == nil || got.ID != "1" {
        t.Fatalf("expected normalized match, got %+v", got)
    }
}

func TestPickBestTransitionSubstringEitherDirection(t *testing.T) {
    trs := []domain.Transition{
        {ID: "1", Name: "Review", ToStatus: "In Review"},
    }
    if got := PickBestTransition("review", trs); got == nil || got.ID != "1" {
        t.Fatalf("requested-in-candidate: got %+v", got)
    }
    if got := PickBestTransition("in review now", trs); got == nil || got.ID != "1" {
        t.Fatalf("candidate-in-requested: got %+v", got)
    }
}

func TestPickBestTransitionTieKeepsFirst(t *testing.T) {
    trs := []domain.Transition{
        {ID: "1", Name: "Done", ToStatus: "Done"},
        {ID: "2", Name: "Done", ToStatus: "Done"},
    }
    got := PickBestTransition("done", trs)
    if got == nil || got.ID != "1" {
        t.Fatalf("tie should keep the first transition, got %+v", got)
    }
}

func TestPickBestTransitionNoMatch(t *testing.T) {
    trs := []domain.Transition{
        {ID: "1", Name: "Start progress", ToStatus: "In Progress"},
    }
    if got := PickBestTransition("blocked", trs); got != nil {
        t.Fatalf("expected nil, got %+v", got)
    }
    if got := PickBestTransition("", trs); got != nil {
        t.Fatalf("empty request should not match, got %+v", got)
    }
    if got := PickBestTransition("done", nil); got != nil {
        t.Fatalf("no transitions should yield nil, got %+v", got)
    }
}
