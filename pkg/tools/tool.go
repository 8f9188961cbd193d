// Package tools defines the capability surface the model can invoke: the
// Tool interface, a concurrency-safe registry with schema validation, and
// the finalize sentinel the orchestrator special-cases.
package tools

import (
	"context"
	"encoding/json"
)

// FinalizeToolName is a reserved name. A call to it signals the model is
// ready to answer; the orchestrator never executes it as a tool and instead
// issues a dedicated clean completion call. It must not be registered.
const FinalizeToolName = "finalize"

// Tool is a named, schema-described capability invocable by the model. The
// core has no knowledge of tool internals; document stores, indexes and
// external systems all arrive through this interface.
type Tool interface {
	// Name is the registry key and the identifier advertised to models.
	Name() string

	// Description tells the model what the tool does and when to use it.
	Description() string

	// ParameterSchema is a JSON Schema object describing the argument map.
	ParameterSchema() json.RawMessage

	// Execute runs the tool with decoded arguments and returns the text
	// fed back to the model. A returned error marks the call failed; it is
	// reported to the model, never retried by the core.
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// IsFinalize reports whether the named call is the finalize sentinel.
func IsFinalize(name string) bool {
	return name == FinalizeToolName
}

// FinalizeArguments is the argument shape of a finalize sentinel call: the
// accumulated context plus the restated question that seed the clean
// completion call.
type FinalizeArguments struct {
	Context  string `json:"context"`
	Question string `json:"question"`
}

// FinalizeDescription documents the sentinel for prompt builders that
// advertise it to the model.
const FinalizeDescription = "Call this when you have gathered enough information to answer. " +
	"Provide the accumulated context and a restatement of the user's question."

// FinalizeSchema is the sentinel's advertised parameter schema.
var FinalizeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"context": {
			"type": "string",
			"description": "Everything learned so far that the answer should draw on"
		},
		"question": {
			"type": "string",
			"description": "The user's question, restated precisely"
		}
	},
	"required": ["context", "question"]
}`)
