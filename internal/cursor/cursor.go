// Package cursor encodes and decodes opaque page cursors. A cursor is a
// base64-encoded JSON payload binding the continuation offset to the
// operation it came from, so clients cannot replay a cursor against a
// different query.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type payload struct {
	Version   int    `json:"v"`
	Operation string `json:"op"`
	Offset    int    `json:"off"`
}

const version = 1

// Encode builds the opaque cursor for the next page of an operation.
func Encode(operation string, offset int) string {
	data, err := json.Marshal(payload{Version: version, Operation: operation, Offset: offset})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses a cursor and returns its continuation offset. The cursor
// must have been issued for the given operation.
func Decode(raw, operation string) (int, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, fmt.Errorf("invalid cursor format")
	}
	if p.Version != version {
		return 0, fmt.Errorf("invalid cursor format")
	}
	if p.Operation != operation {
		return 0, fmt.Errorf("cursor operation mismatch: expected %s, got %s", operation, p.Operation)
	}
	if p.Offset < 0 {
		return 0, fmt.Errorf("invalid cursor offset")
	}
	return p.Offset, nil
}
