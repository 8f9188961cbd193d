package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/types"
)

// MaxToolNameLength bounds registered names; anything longer is a
// registration bug, not a legitimate tool.
const MaxToolNameLength = 256

// Registry is the name→Tool capability map the orchestrator dispatches
// through. It is populated at startup and read-only afterwards; the mutex
// exists for safety, not for a mutation-heavy workload.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	logger  *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	logger, _ := logging.NewLogger("tool-registry")
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger,
	}
}

// Register adds a tool, compiling its parameter schema for argument
// validation at execution time. The finalize sentinel cannot be registered.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tool name %q exceeds %d characters", name[:32], MaxToolNameLength)
	}
	if IsFinalize(name) {
		return fmt.Errorf("%q is a reserved name and cannot be registered", FinalizeToolName)
	}

	var schema *jsonschema.Schema
	if raw := tool.ParameterSchema(); len(raw) > 0 {
		compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
		if err != nil {
			return fmt.Errorf("tool %s has invalid parameter schema: %w", name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}
	r.tools[name] = tool
	r.schemas[name] = schema
	return nil
}

// Get returns the named tool, if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the registered tools in the shape providers advertise
// to models, including the finalize sentinel when includeFinalize is set.
func (r *Registry) Definitions(includeFinalize bool) []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.tools)+1)
	for _, t := range r.tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParameterSchema(),
		})
	}
	if includeFinalize {
		defs = append(defs, llm.ToolDefinition{
			Name:        FinalizeToolName,
			Description: FinalizeDescription,
			Parameters:  FinalizeSchema,
		})
	}
	return defs
}

// Execute dispatches one assembled tool call. Every failure class (unknown
// tool, malformed arguments, schema violation, execution error) comes back
// as a failed ToolResult correlated to the call, never as a Go error: the
// model reacts to tool failures, the run does not abort.
func (r *Registry) Execute(ctx context.Context, call types.ToolCall) *types.ToolResult {
	tool, ok := r.Get(call.Name)
	if !ok {
		r.logger.Warnf("tool call %s names unknown tool %q", call.ID, call.Name)
		return types.NewToolError(&call, fmt.Sprintf("tool %q is not available", call.Name))
	}

	args, err := call.ParseArguments()
	if err != nil {
		r.logger.Warnf("tool call %s to %s has unparsable arguments: %v", call.ID, call.Name, err)
		return types.NewToolError(&call, fmt.Sprintf("arguments are not valid JSON: %v", err))
	}

	if schema := r.schemaFor(call.Name); schema != nil {
		if err := schema.Validate(toJSONValue(args)); err != nil {
			return types.NewToolError(&call, fmt.Sprintf("arguments do not match the tool schema: %v", err))
		}
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		return types.NewToolError(&call, err.Error())
	}
	return types.NewToolResult(&call, result)
}

func (r *Registry) schemaFor(name string) *jsonschema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemas[name]
}

// toJSONValue normalizes the decoded argument map into the generic shape
// the schema validator expects.
func toJSONValue(args map[string]interface{}) interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
