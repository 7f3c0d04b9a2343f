package release

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion is bumped whenever the persisted Request layout changes in a
// way older readers cannot decode.
const SchemaVersion = 1

var ErrUnsupportedSchema = errors.New("unsupported release request schema")

type envelope struct {
	Schema  int             `json:"schema"`
	Request json.RawMessage `json:"request"`
}

// Encode serializes a request for the store's payload column. The same text
// is shown in the check run output.
func Encode(req *Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	data, err := json.Marshal(envelope{Schema: SchemaVersion, Request: body})
	if err != nil {
		return "", fmt.Errorf("marshaling envelope: %w", err)
	}
	return string(data), nil
}

func Decode(text string) (*Request, error) {
	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	if env.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, env.Schema)
	}

	var req Request
	if err := json.Unmarshal(env.Request, &req); err != nil {
		return nil, fmt.Errorf("unmarshaling request: %w", err)
	}
	if req.Results == nil {
		req.Results = make(map[string]GateResponse)
	}
	return &req, nil
}
