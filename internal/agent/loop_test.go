package agent

import (
    "context"
    "strings"
    "testing"
    "time"

    "github.com/rs/zerolog"

    openaiadapter "github.com/example/standup-pilot/internal/adapters/openai"
)

func TestFlowFor(t *testing.T) {
    cases := []struct {
        day  string
        want string
    }{
        {"2025-08-25", FlowMondayPlanning}, // Monday
        {"2025-08-29", FlowFridayReview},   // Friday
        {"2025-08-27", FlowGeneral},        // Wednesday
        {"2025-08-31", FlowGeneral},        // Sunday
    }
    for _, c := range cases {
        d, err := time.Parse("2006-01-02", c.day)
        if err != nil {
            t.Fatalf("parse %s: %v", c.day, err)
        }
        if got := FlowFor(d); got != c.want {
            t.Fatalf("FlowFor(%s) = %q, want %q", c.day, got, c.want)
        }
    }
}

func TestSystemPromptMentionsFlow(t *testing.T) {
    d, _ := time.Parse("2006-01-02", "2025-08-25")
    p := SystemPrompt(FlowMondayPlanning, d)
    if !strings.Contains(p, "It is Monday") || !strings.Contains(p, "Monday, 25 August 2025") {
        t.Fatalf("prompt missing flow guidance or date:\n%s", p)
    }
    if got := SystemPrompt("nonsense", d); !strings.Contains(got, "whatever issue management") {
        t.Fatal("unknown flow should fall back to general guidance")
    }
}

type scriptedModel struct {
    turns []openaiadapter.Message
    seen  [][]openaiadapter.Message
}

func (m *scriptedModel) ChatWithTools(ctx context.Context, messages []openaiadapter.Message, tools []openaiadapter.ToolDef) (*openaiadapter.Message, error) {
    cp := make([]openaiadapter.Message, len(messages))
    copy(cp, messages)
    m.seen = append(m.seen, cp)
    turn := m.turns[0]
    if len(m.turns) > 1 { m.turns = m.turns[1:] }
    return &turn, nil
}

func TestRunStopsOnPlainText(t *testing.T) {
    model := &scriptedModel{turns: []openaiadapter.Message{
        {Role: "assistant", Content: "All caught up."},
    }}
    a := New(nil, model, 5, zerolog.Nop())
    reply, err := a.Run(context.Background(), "u1", "anything new?")
    if err != nil {
        t.Fatalf("run: %v", err)
    }
    if reply.Text != "All caught up." || len(reply.Tools) != 0 {
        t.Fatalf("unexpected reply %+v", reply)
    }
    if len(model.seen) != 1 {
        t.Fatalf("expected a single model turn, got %d", len(model.seen))
    }
}

func TestRunHonorsStepCap(t *testing.T) {
    // the model asks for an unknown tool forever; the loop must still stop
    model := &scriptedModel{turns: []openaiadapter.Message{
        {Role: "assistant", ToolCalls: []openaiadapter.ToolCall{{ID: "c1", Name: "no_such_tool", Arguments: "{}"}}},
    }}
    a := New(nil, model, 3, zerolog.Nop())
    reply, err := a.Run(context.Background(), "u1", "loop forever")
    if err != nil {
        t.Fatalf("run: %v", err)
    }
    if len(model.seen) != 3 {
        t.Fatalf("expected exactly 3 model turns, got %d", len(model.seen))
    }
    if len(reply.Tools) != 3 {
        t.Fatalf("each step's tool call should be recorded, got %d", len(reply.Tools))
    }
    if reply.Text == "" {
        t.Fatal("capped run must still produce text")
    }
}

func TestRunFeedsToolResultBack(t *testing.T) {
    model := &scriptedModel{turns: []openaiadapter.Message{
        {Role: "assistant", ToolCalls: []openaiadapter.ToolCall{{ID: "c1", Name: "bogus", Arguments: "{}"}}},
        {Role: "assistant", Content: "done"},
    }}
    a := New(nil, model, 5, zerolog.Nop())
    reply, err := a.Run(context.Background(), "u1", "hi")
    if err != nil {
        t.Fatalf("run: %v", err)
    }
    if reply.Text != "done" {
        t.Fatalf("text = %q", reply.Text)
    }
    second := model.seen[1]
    last := second[len(second)-1]
    if last.Role != "tool" || last.ToolCallID != "c1" {
        t.Fatalf("tool result not fed back: %+v", last)
    }
    if !strings.Contains(last.Content, `"success":false`) {
        t.Fatalf("unknown tool should produce a failure payload: %s", last.Content)
    }
}
