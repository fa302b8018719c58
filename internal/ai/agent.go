package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/shopspring/decimal"

	"stock-ledger/internal/core"
)

const maxToolRounds = 4

// Interpretation is the model's reading of a stock event: either a draft or a
// question back to the user.
type Interpretation struct {
	IsClarificationRequest bool       `json:"is_clarification_request" jsonschema_description:"True when the event cannot be drafted without more information"`
	ClarificationMessage   string     `json:"clarification_message" jsonschema_description:"Question for the user when is_clarification_request is true"`
	Draft                  core.Draft `json:"draft" jsonschema_description:"The proposed stock transaction. Ignored when asking for clarification."`
	Confidence             float64    `json:"confidence" jsonschema_description:"Confidence between 0.0 and 1.0"`
	Reasoning              string     `json:"reasoning" jsonschema_description:"Short explanation of how the event maps to the draft"`
}

type DraftInterpreter interface {
	InterpretEvent(ctx context.Context, event string, tools *ToolRegistry) (*Interpretation, error)
}

type Agent struct {
	client *openai.Client
	model  shared.ResponsesModel
}

// NewAgent returns an agent using model, or gpt-4o when model is empty.
func NewAgent(apiKey, model string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	m := shared.ResponsesModel(shared.ChatModelGPT4o)
	if model != "" {
		m = shared.ResponsesModel(model)
	}
	return &Agent{client: &client, model: m}
}

func (a *Agent) InterpretEvent(ctx context.Context, event string, tools *ToolRegistry) (*Interpretation, error) {
	prompt := fmt.Sprintf(`You are a warehouse stock clerk.
Turn the stock event below into exactly one inventory transaction draft.
Rules:
1. type is one of purchase, sale, transfer, adjustment, return, write_off, count.
2. purchase and return need to_location_id; sale and write_off need from_location_id; transfer needs both.
3. adjustment uses a signed quantity: positive with to_location_id, negative with from_location_id.
4. count records the absolute quantity observed at to_location_id.
5. unit_price is a decimal string such as "12.50".
6. Use the lookup tools to confirm item and location ids. Never invent ids.
7. If a required detail is missing, set is_clarification_request and ask one question.

Event: %s`, event)

	schemaMap, err := DraftSchema()
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: a.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "stock_transaction_draft",
					Strict:      param.NewOpt(false),
					Schema:      schemaMap,
					Description: param.NewOpt("A draft inventory transaction or a clarification request"),
				},
			},
		},
	}
	if tools != nil {
		params.Tools = tools.ToOpenAITools()
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	for round := 0; tools != nil; round++ {
		var outputs responses.ResponseInputParam
		for _, item := range resp.Output {
			if item.Type != "function_call" {
				continue
			}
			result := tools.Execute(ctx, item.Name, item.Arguments)
			outputs = append(outputs, responses.ResponseInputItemParamOfFunctionCallOutput(item.CallID, result))
		}
		if len(outputs) == 0 {
			break
		}
		if round == maxToolRounds {
			return nil, fmt.Errorf("agent exceeded %d tool rounds", maxToolRounds)
		}

		params.PreviousResponseID = openai.String(resp.ID)
		params.Input = responses.ResponseNewParamsInputUnion{OfInputItemList: outputs}
		resp, err = a.client.Responses.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai responses error: %w", err)
		}
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}
	return ParseInterpretation(content)
}

// ParseInterpretation decodes model output and structurally validates the draft.
func ParseInterpretation(content string) (*Interpretation, error) {
	var in Interpretation
	if err := json.Unmarshal([]byte(content), &in); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}
	if in.IsClarificationRequest {
		if in.ClarificationMessage == "" {
			return nil, fmt.Errorf("clarification requested without a message")
		}
		return &in, nil
	}

	in.Draft.Normalize()
	in.Draft.TotalPrice = decimal.Zero
	in.Draft.CreatedBy = ""
	if err := in.Draft.Validate(); err != nil {
		return nil, fmt.Errorf("draft validation failed: %w", err)
	}
	return &in, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType {
				return &jsonschema.Schema{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`}
			}
			return nil
		},
	}
}

// GenerateSchema reflects the interpretation envelope. Decimals are strings.
func GenerateSchema() *jsonschema.Schema {
	return reflector().Reflect(Interpretation{})
}

// GenerateDraftSchema reflects core.Draft alone, as accepted by submit.
func GenerateDraftSchema() *jsonschema.Schema {
	return reflector().Reflect(core.Draft{})
}

// DraftSchema returns GenerateSchema as the generic map the API expects.
func DraftSchema() (map[string]any, error) {
	schemaJSON, err := json.Marshal(GenerateSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}
