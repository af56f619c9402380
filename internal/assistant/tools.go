package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"atende_backend/platform/validator"

	"google.golang.org/genai"
)

// MaxToolResultChars bounds the tool output fed back to the provider.
const MaxToolResultChars = 2000

// Tool is a named side-effecting callback offered to the provider.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters map[string]any
	Execute    func(ctx context.Context, args map[string]any) (string, error)
}

func (t Tool) declaration() *genai.FunctionDeclaration {
	params := t.Parameters
	if params == nil {
		params = objectSchema(nil)
	}
	return &genai.FunctionDeclaration{
		Name:                 t.Name,
		Description:          t.Description,
		ParametersJsonSchema: params,
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func integerProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// ArgDecoder turns raw provider arguments into validated structs.
type ArgDecoder struct {
	val *validator.Validator
}

// NewArgDecoder creates a decoder backed by struct tag validation.
func NewArgDecoder(val *validator.Validator) *ArgDecoder {
	if val == nil {
		val = validator.New()
	}
	return &ArgDecoder{val: val}
}

// Decode maps args onto dst through JSON and validates the result.
func (d *ArgDecoder) Decode(args map[string]any, dst any) error {
	if raw, ok := args["_raw"]; ok && len(args) == 1 {
		return fmt.Errorf("arguments are not valid JSON: %v", raw)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := d.val.Struct(dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func truncateResult(s string) string {
	r := []rune(s)
	if len(r) <= MaxToolResultChars {
		return s
	}
	return string(r[:MaxToolResultChars])
}
