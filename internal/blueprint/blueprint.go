// Package blueprint implements the "create stack from blueprint" block: it
// turns a blueprint id and template inputs into the blueprintCreateStack
// mutation, runs it through the shared GraphQL client and emits the ids of
// the created stacks and runs.
package blueprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrInvalidInput is wrapped by errors caused by the block input itself.
var ErrInvalidInput = errors.New("blueprint: invalid input")

const createStackMutation = `mutation CreateStackFromBlueprint($id: ID!, $input: BlueprintStackCreateInput!) {
  blueprintCreateStack(id: $id, input: $input) {
    stackIds
    runIds
  }
}`

// Input is the block input.
type Input struct {
	BlueprintID string `json:"blueprintId"`
	// Inputs maps template input ids to their values. It may be nil.
	Inputs map[string]any `json:"inputs,omitempty"`
}

// Validate reports whether in can be sent to the API.
func (in Input) Validate() error {
	if in.BlueprintID == "" {
		return fmt.Errorf("%w: blueprintId is required", ErrInvalidInput)
	}
	return nil
}

// Output is the payload emitted after a stack was created.
type Output struct {
	StackIDs []string `json:"stackIds"`
	RunIDs   []string `json:"runIds"`
}

// TemplateInput is one entry of the mutation's templateInputs list.
type TemplateInput struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// TemplateInputs converts inputs into the list the API expects, ordered by
// id. The result is never nil.
func TemplateInputs(inputs map[string]any) ([]TemplateInput, error) {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]TemplateInput, 0, len(keys))
	for _, k := range keys {
		v, err := stringify(inputs[k])
		if err != nil {
			return nil, fmt.Errorf("%w: input %q: %w", ErrInvalidInput, k, err)
		}
		out = append(out, TemplateInput{ID: k, Value: v})
	}
	return out, nil
}

// BuildVariables returns the variables of the creation mutation for in:
//
//	{"id": <blueprintId>, "input": {"templateInputs": [{"id": k, "value": v}, ...]}}
func BuildVariables(in Input) (map[string]any, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	templateInputs, err := TemplateInputs(in.Inputs)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id": in.BlueprintID,
		"input": map[string]any{
			"templateInputs": templateInputs,
		},
	}, nil
}

// stringify renders a template input value as the API's string form.
func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "null", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case json.Number:
		return t.String(), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
