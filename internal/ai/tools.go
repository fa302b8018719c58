package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
)

// ToolHandler runs a read-only lookup. It receives the parsed JSON arguments
// and returns a JSON-encoded result.
type ToolHandler func(ctx context.Context, params map[string]any) (string, error)

// ToolDefinition is a read tool the model may call while drafting. The agent
// never exposes write tools; drafts are submitted by the caller.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     ToolHandler
}

type ToolRegistry struct {
	tools []ToolDefinition
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

func (r *ToolRegistry) Register(t ToolDefinition) {
	r.tools = append(r.tools, t)
}

func (r *ToolRegistry) Get(name string) (ToolDefinition, bool) {
	for _, t := range r.tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDefinition{}, false
}

func (r *ToolRegistry) All() []ToolDefinition {
	return r.tools
}

// Execute decodes the model's argument string and runs the named tool.
// Failures are returned as a JSON error object so the model can recover.
func (r *ToolRegistry) Execute(ctx context.Context, name, arguments string) string {
	t, ok := r.Get(name)
	if !ok {
		return errorJSON(fmt.Errorf("unknown tool %q", name))
	}
	params := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &params); err != nil {
			return errorJSON(fmt.Errorf("invalid arguments for %s: %w", name, err))
		}
	}
	out, err := t.Handler(ctx, params)
	if err != nil {
		return errorJSON(err)
	}
	return out
}

func (r *ToolRegistry) ToOpenAITools() []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.InputSchema,
				Strict:      openai.Bool(false),
			},
		})
	}
	return out
}

// IntParam reads an integer argument. JSON numbers decode as float64.
func IntParam(params map[string]any, key string) (int, error) {
	switch v := params[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, v)
		}
		return int(v), nil
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

// IDSchema is the input schema of a tool that takes one integer id.
func IDSchema(key, description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			key: map[string]any{"type": "integer", "description": description},
		},
		"required":             []string{key},
		"additionalProperties": false,
	}
}

func errorJSON(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}
