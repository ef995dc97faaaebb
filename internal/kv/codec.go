package kv

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedState reports a stored blob that cannot be decoded into its schema.
var ErrMalformedState = errors.New("kv: malformed state")

type envelope struct {
	Schema  string          `json:"schema"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Encode wraps v in a versioned envelope.
func Encode(schema string, version int, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("kv: encode %s: %w", schema, err)
	}
	raw, err := json.Marshal(envelope{Schema: schema, Version: version, Data: data})
	if err != nil {
		return "", fmt.Errorf("kv: encode %s: %w", schema, err)
	}
	return string(raw), nil
}

// Decode unwraps a blob written by Encode into v. Blobs without an envelope
// are read as version 0 of the schema. Versions newer than maxVersion and
// schema mismatches are ErrMalformedState.
func Decode(raw, schema string, maxVersion int, v any) error {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedState, schema, err)
	}

	data := env.Data
	switch {
	case env.Schema == "" && env.Data == nil:
		data = json.RawMessage(raw)
	case env.Schema != schema:
		return fmt.Errorf("%w: expected schema %q, got %q", ErrMalformedState, schema, env.Schema)
	case env.Version > maxVersion:
		return fmt.Errorf("%w: %s version %d is newer than supported %d", ErrMalformedState, schema, env.Version, maxVersion)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedState, schema, err)
	}
	return nil
}
