package hook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Type enumerates the hook boundaries the engine serves.
type Type string

const (
	TypePreTool    Type = "pre_tool"
	TypePostTool   Type = "post_tool"
	TypeSessionEnd Type = "session_end"
)

// Request is the structured payload a hook invocation consumes.
type Request struct {
	HostSessionID string         `json:"host_session_id"`
	Tool          string         `json:"tool,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	// Message is the triggering free-text user request (pre-tool only).
	Message string `json:"message,omitempty"`
	// Result and DurationMs describe an executed call (post-tool only).
	Result     map[string]any `json:"result,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	// Reason is the termination reason (session-end only).
	Reason string `json:"reason,omitempty"`
}

// Action is the response verb consumed by the calling environment.
type Action string

const (
	ActionApprove Action = "approve"
	ActionModify  Action = "modify"
	ActionBlock   Action = "block"
	ActionError   Action = "error"
	ActionSuccess Action = "success"
)

// Response is the structured result of one hook invocation. Message is
// always present and usable for operator-facing logging; Parameters is set
// only on modify.
type Response struct {
	Action     Action         `json:"action"`
	Message    string         `json:"message"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Per-hook request schemas. Validation happens on the raw bytes before
// unmarshalling so a malformed payload is rejected with a usable message
// instead of half-populating a Request.
var requestSchemas = map[Type]string{
	TypePreTool: `{
		"type": "object",
		"required": ["host_session_id", "tool"],
		"properties": {
			"host_session_id": {"type": "string", "minLength": 1},
			"tool": {"type": "string", "minLength": 1},
			"params": {"type": "object"},
			"message": {"type": "string"}
		}
	}`,
	TypePostTool: `{
		"type": "object",
		"required": ["host_session_id", "tool"],
		"properties": {
			"host_session_id": {"type": "string", "minLength": 1},
			"tool": {"type": "string", "minLength": 1},
			"params": {"type": "object"},
			"result": {"type": "object"},
			"duration_ms": {"type": "integer", "minimum": 0}
		}
	}`,
	TypeSessionEnd: `{
		"type": "object",
		"required": ["host_session_id"],
		"properties": {
			"host_session_id": {"type": "string", "minLength": 1},
			"reason": {"type": "string"}
		}
	}`,
}

// ValidationError reports a request that failed its schema.
type ValidationError struct {
	Hook   Type
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s request validation failed: %s", e.Hook, strings.Join(e.Errors, "; "))
}

// Decode validates raw request bytes against the hook's schema and
// unmarshals them.
func Decode(hookType Type, raw []byte) (*Request, error) {
	schema, ok := requestSchemas[hookType]
	if !ok {
		return nil, fmt.Errorf("unknown hook type %q", hookType)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &ValidationError{Hook: hookType, Errors: msgs}
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return &req, nil
}

// Errorf builds an error response with a formatted operator-facing message.
func Errorf(format string, args ...any) *Response {
	return &Response{Action: ActionError, Message: fmt.Sprintf(format, args...)}
}
