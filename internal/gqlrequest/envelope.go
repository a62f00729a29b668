// Package gqlrequest maps GraphQL request documents onto engine operation
// invocations. The engine does not execute GraphQL itself; it serves named
// operations, so this package only needs the language front half: envelope
// decoding, document parsing, operation selection, and argument resolution.
package gqlrequest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Envelope is a normalized GraphQL request payload.
type Envelope struct {
	Query         string
	OperationName string
	VariablesRaw  json.RawMessage
}

// Variables decodes the request variables, or an empty map when absent.
func (e Envelope) Variables() (map[string]any, error) {
	if len(e.VariablesRaw) == 0 {
		return map[string]any{}, nil
	}
	var vars map[string]any
	if err := json.Unmarshal(e.VariablesRaw, &vars); err != nil {
		return nil, fmt.Errorf("invalid variables: %w", err)
	}
	if vars == nil {
		vars = map[string]any{}
	}
	return vars, nil
}

// DecodeEnvelope extracts the GraphQL payload from an HTTP request. GET
// requests carry the query in the URL; POST bodies are either a JSON
// envelope or a bare application/graphql document.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r.Method == http.MethodGet {
		return Envelope{
			Query:         r.URL.Query().Get("query"),
			OperationName: r.URL.Query().Get("operationName"),
		}, nil
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return Envelope{}, fmt.Errorf("unsupported method %s", r.Method)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Envelope{}, err
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, _, parseErr := mime.ParseMediaType(contentType)
	if parseErr != nil || mediaType == "" {
		mediaType = strings.TrimSpace(contentType)
	}

	if mediaType == "application/graphql" {
		return Envelope{Query: string(body)}, nil
	}

	var payload struct {
		Query         string          `json:"query"`
		OperationName string          `json:"operationName"`
		Variables     json.RawMessage `json:"variables"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil {
		return Envelope{}, fmt.Errorf("invalid request body: %w", err)
	}
	env := Envelope{
		Query:         payload.Query,
		OperationName: payload.OperationName,
	}
	if len(payload.Variables) > 0 && !bytes.Equal(bytes.TrimSpace(payload.Variables), []byte("null")) {
		env.VariablesRaw = append(json.RawMessage(nil), payload.Variables...)
	}
	return env, nil
}
