// Package tools resolves model-issued tool-use requests against registered
// handlers. A broken tool call never kills the conversation: malformed
// input and handler failures are absorbed into result objects the model
// can acknowledge.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/internal/protocol"
)

// Handler produces a tool result from the model-supplied input. It may
// perform I/O and may fail; failures are converted to error-shaped results
// unless the dispatcher runs in strict mode.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// ToolInputError marks tool input that could not be parsed as JSON.
type ToolInputError struct {
	ToolName string
	Err      error
}

func (e *ToolInputError) Error() string {
	return fmt.Sprintf("invalid input for tool %s: %v", e.ToolName, e.Err)
}

func (e *ToolInputError) Unwrap() error { return e.Err }

// ToolHandlerError marks a handler that returned an error.
type ToolHandlerError struct {
	ToolName string
	Err      error
}

func (e *ToolHandlerError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Err)
}

func (e *ToolHandlerError) Unwrap() error { return e.Err }

// Registry maps tool names to handlers. Matching is case-insensitive.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	specs    []protocol.ToolSpec
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a tool under its spec. Re-registering a name replaces the
// previous handler.
func (r *Registry) Register(spec protocol.ToolSpec, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(spec.Name)
	if _, exists := r.handlers[key]; !exists {
		r.specs = append(r.specs, spec)
	}
	r.handlers[key] = handler
}

// Lookup finds a handler by case-insensitive name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(name)]
	return h, ok
}

// Specs returns the tool descriptors for promptStart advertisement.
func (r *Registry) Specs() []protocol.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ToolSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Dispatcher invokes registered handlers for tool-use events. Strict mode
// turns recovered failures into session-fatal errors; the default policy
// keeps the conversation alive.
type Dispatcher struct {
	registry *Registry
	strict   bool
	logger   *zap.Logger
}

// NewDispatcher wires a dispatcher over a registry.
func NewDispatcher(registry *Registry, strict bool, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, strict: strict, logger: logger}
}

// Dispatch resolves one tool call and returns the JSON result string plus
// the wire status. The returned error is non-nil only in strict mode.
func (d *Dispatcher) Dispatch(ctx context.Context, toolUseID, toolName, rawInput string) (string, string, error) {
	input, err := parseInput(rawInput)
	if err != nil {
		inputErr := &ToolInputError{ToolName: toolName, Err: err}
		d.logger.Warn("Malformed tool input, forwarding empty result",
			zap.String("toolUseId", toolUseID),
			zap.String("toolName", toolName),
			zap.Error(inputErr))
		if d.strict {
			return "", "", inputErr
		}
		return "{}", protocol.ToolStatusSuccess, nil
	}

	handler, ok := d.registry.Lookup(toolName)
	if !ok {
		d.logger.Warn("No handler registered for tool",
			zap.String("toolUseId", toolUseID),
			zap.String("toolName", toolName))
		return "{}", protocol.ToolStatusSuccess, nil
	}

	result, err := handler(ctx, input)
	if err != nil {
		handlerErr := &ToolHandlerError{ToolName: toolName, Err: err}
		if d.strict {
			return "", "", handlerErr
		}
		d.logger.Warn("Tool handler failed, forwarding error result",
			zap.String("toolUseId", toolUseID),
			zap.String("toolName", toolName),
			zap.Error(handlerErr))
		return marshalResult(map[string]string{
			"status": protocol.ToolStatusError,
			"error":  err.Error(),
		}), protocol.ToolStatusError, nil
	}

	return marshalResult(result), protocol.ToolStatusSuccess, nil
}

// parseInput validates the opaque JSON string carried by the toolUse
// event. An empty input is treated as an empty object.
func parseInput(rawInput string) (json.RawMessage, error) {
	if strings.TrimSpace(rawInput) == "" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid([]byte(rawInput)) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	return json.RawMessage(rawInput), nil
}

func marshalResult(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
