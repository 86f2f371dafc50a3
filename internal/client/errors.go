package client

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnknownOperationError is a local validation failure: the requested
// operation name is absent from the cached catalog. It short-circuits before
// any transport call.
type UnknownOperationError struct {
	Name      string
	Available []string
}

func (e *UnknownOperationError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown operation %q (catalog is empty)", e.Name)
	}
	return fmt.Sprintf("unknown operation %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// ArgumentParseError is malformed JSON supplied as operation arguments. It is
// local and never sent to the transport.
type ArgumentParseError struct {
	Raw string
	Err error
}

func (e *ArgumentParseError) Error() string {
	return fmt.Sprintf("invalid JSON arguments: %v", e.Err)
}

func (e *ArgumentParseError) Unwrap() error { return e.Err }

// ParseArguments decodes a JSON object supplied as raw operation arguments.
// Empty input yields an empty argument map.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &ArgumentParseError{Raw: raw, Err: err}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
