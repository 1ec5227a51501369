package openai

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/invopop/jsonschema"
    oa "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/openai/openai-go/v2/shared"
    "github.com/rs/zerolog"
)

// Client wraps chat completions for the two call shapes the app needs:
// schema-constrained JSON and tool-calling turns.
type Client struct {
    api   oa.Client
    model shared.ChatModel
    log   zerolog.Logger
}

func New(apiKey, model string, timeout time.Duration, log zerolog.Logger) *Client {
    api := oa.NewClient(
        option.WithAPIKey(apiKey),
        option.WithRequestTimeout(timeout),
    )
    return &Client{api: api, model: shared.ChatModel(model), log: log}
}

// GenerateSchema builds a strict JSON schema for T. Inlined definitions and
// no additional properties, as required for structured outputs.
func GenerateSchema[T any]() any {
    reflector := jsonschema.Reflector{
        AllowAdditionalProperties: false,
        DoNotReference:            true,
    }
    var v T
    return reflector.Reflect(v)
}

// GenerateObject asks for strict schema-shaped JSON and unmarshals it into
// out. The schema name shows up in API logs, keep it stable.
func (c *Client) GenerateObject(ctx context.Context, system, user, schemaName string, schema any, out any) error {
    resp, err := c.api.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
        Model: c.model,
        Messages: []oa.ChatCompletionMessageParamUnion{
            oa.SystemMessage(system),
            oa.UserMessage(user),
        },
        ResponseFormat: oa.ChatCompletionNewParamsResponseFormatUnion{
            OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
                JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
                    Name:   schemaName,
                    Schema: schema,
                    Strict: oa.Bool(true),
                },
            },
        },
    })
    if err != nil { return err }
    if len(resp.Choices) == 0 { return errors.New("openai: empty response") }
    return json.Unmarshal([]byte(resp.Choices[0].Message.Content), out)
}

// ToolDef describes one callable tool surfaced to the model.
type ToolDef struct {
    Name        string
    Description string
    Parameters  map[string]any
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
    ID        string
    Name      string
    Arguments string
}

// Message is a minimal conversation turn for the agent loop.
type Message struct {
    Role       string // system, user, assistant, tool
    Content    string
    ToolCallID string // role=tool only
    ToolCalls  []ToolCall
}

// ChatWithTools runs one completion turn with tools attached. The model either
// answers in text or requests tool calls, never both here.
func (c *Client) ChatWithTools(ctx context.Context, messages []Message, tools []ToolDef) (*Message, error) {
    params := oa.ChatCompletionNewParams{
        Model:    c.model,
        Messages: convertMessages(messages),
        Tools:    convertTools(tools),
    }
    resp, err := c.api.Chat.Completions.New(ctx, params)
    if err != nil { return nil, err }
    if len(resp.Choices) == 0 { return nil, errors.New("openai: empty response") }
    msg := resp.Choices[0].Message
    out := &Message{Role: "assistant", Content: msg.Content}
    for _, tc := range msg.ToolCalls {
        out.ToolCalls = append(out.ToolCalls, ToolCall{
            ID:        tc.ID,
            Name:      tc.Function.Name,
            Arguments: tc.Function.Arguments,
        })
    }
    return out, nil
}

func convertMessages(in []Message) []oa.ChatCompletionMessageParamUnion {
    out := make([]oa.ChatCompletionMessageParamUnion, 0, len(in))
    for _, m := range in {
        switch m.Role {
        case "system":
            out = append(out, oa.SystemMessage(m.Content))
        case "user":
            out = append(out, oa.UserMessage(m.Content))
        case "tool":
            out = append(out, oa.ToolMessage(m.Content, m.ToolCallID))
        default:
            if len(m.ToolCalls) > 0 {
                asst := oa.ChatCompletionAssistantMessageParam{}
                if m.Content != "" {
                    asst.Content.OfString = oa.String(m.Content)
                }
                for _, tc := range m.ToolCalls {
                    asst.ToolCalls = append(asst.ToolCalls, oa.ChatCompletionMessageToolCallUnionParam{
                        OfFunction: &oa.ChatCompletionMessageFunctionToolCallParam{
                            ID: tc.ID,
                            Function: oa.ChatCompletionMessageFunctionToolCallFunctionParam{
                                Name:      tc.Name,
                                Arguments: tc.Arguments,
                            },
                        },
                    })
                }
                out = append(out, oa.ChatCompletionMessageParamUnion{OfAssistant: &asst})
            } else {
                out = append(out, oa.AssistantMessage(m.Content))
            }
        }
    }
    return out
}

func convertTools(in []ToolDef) []oa.ChatCompletionToolUnionParam {
    out := make([]oa.ChatCompletionToolUnionParam, 0, len(in))
    for _, t := range in {
        out = append(out, oa.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
            Name:        t.Name,
            Description: oa.String(t.Description),
            Parameters:  shared.FunctionParameters(t.Parameters),
        }))
    }
    return out
}
