package services

import (
    "regexp"
    "strings"

    "github.com/example/standup-pilot/internal/domain"
)

var (
    issueKeyRe     = regexp.MustCompile(`[A-Z][A-Z0-9]+-\d+`)
    leadingAtRe    = regexp.MustCompile(`^@+`)
    leadingJunkRe  = regexp.MustCompile(`^[^A-Za-z0-9]+`)
    trailingJunkRe = regexp.MustCompile(`[^A-Za-z0-9-]+$`)
    nonAlnumRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// SanitizeIssueKey extracts a canonical issue key from chat text such as
// "@proj-42," or "(PROJ-42)". Returns "" when no key can be recovered.
func SanitizeIssueKey(raw string) string {
    s := strings.TrimSpace(raw)
    if s == "" { return "" }
    s = leadingAtRe.ReplaceAllString(s, "")
    s = leadingJunkRe.ReplaceAllString(s, "")
    s = trailingJunkRe.ReplaceAllString(s, "")
    s = strings.ToUpper(s)
    return issueKeyRe.FindString(s)
}

func normalizeName(s string) string {
    return nonAlnumRe.ReplaceAllString(strings.ToLower(s), "")
}

// PickBestTransition matches a requested status name against the available
// transitions. Exact normalized match beats substring match in either
// direction; ties keep the first candidate in order. Returns nil when nothing
// matches at all.
func PickBestTransition(requested string, transitions []domain.Transition) *domain.Transition {
    want := normalizeName(requested)
    if want == "" { return nil }
    best := -1
    bestScore := 0
    for i, tr := range transitions {
        score := 0
        for _, cand := range []string{normalizeName(tr.ToStatus), normalizeName(tr.Name)} {
            if cand == "" { continue }
            var s int
            switch {
            case cand == want:
                s = 3
            case strings.Contains(cand, want) || strings.Contains(want, cand):
                s = 2
            }
            if s > score { score = s }
        }
        if score > bestScore {
            bestScore = score
            best = i
        }
    }
    if best < 0 { return nil }
    return &transitions[best]
}
