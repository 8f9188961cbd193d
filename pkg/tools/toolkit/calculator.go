// Package toolkit ships small self-contained tools used by examples and
// tests. Production deployments register their own domain tools instead.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Calculator performs basic arithmetic on two operands.
type Calculator struct{}

// NewCalculator creates a calculator tool.
func NewCalculator() *Calculator {
	return &Calculator{}
}

func (c *Calculator) Name() string {
	return "calculator"
}

func (c *Calculator) Description() string {
	return "Perform basic arithmetic. Supports add, subtract, multiply, and divide on two numbers."
}

func (c *Calculator) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {
				"type": "string",
				"enum": ["add", "subtract", "multiply", "divide"]
			},
			"a": {"type": "number"},
			"b": {"type": "number"}
		},
		"required": ["operation", "a", "b"]
	}`)
}

func (c *Calculator) Execute(_ context.Context, args map[string]interface{}) (string, error) {
	op, _ := args["operation"].(string)
	a, aOK := toFloat(args["a"])
	b, bOK := toFloat(args["b"])
	if !aOK || !bOK {
		return "", fmt.Errorf("operands must be numbers")
	}

	var result float64
	switch op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return "", fmt.Errorf("division by zero")
		}
		result = a / b
	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}

	return strconv.FormatFloat(result, 'f', -1, 64), nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
