// Package httpapi adapts GraphQL HTTP requests onto runtime operation calls.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"viewql/internal/compiler"
	"viewql/internal/gqlrequest"
	"viewql/internal/logging"
	"viewql/internal/middleware"
	"viewql/internal/runtime"
	"viewql/internal/schema"
)

// graphQLError is one entry of the response errors array.
type graphQLError struct {
	Message    string         `json:"message"`
	Path       []string       `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type graphQLResponse struct {
	Data   map[string]any `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

// GraphQLHandler serves POST and GET /graphql. Each root field of the
// document becomes one runtime execution; results are keyed by alias.
func GraphQLHandler(rt *runtime.Runtime) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env, err := gqlrequest.DecodeEnvelope(r)
		if err != nil {
			writeRequestError(w, http.StatusBadRequest, err)
			return
		}

		invocations, err := gqlrequest.Parse(env)
		if err != nil {
			writeRequestError(w, http.StatusBadRequest, err)
			return
		}

		art := rt.Artifact()
		if art == nil {
			writeRequestError(w, http.StatusServiceUnavailable, runtime.ErrNoArtifact)
			return
		}

		caller := middleware.CallerFromContext(r.Context())
		logger := logging.FromContext(r.Context())

		resp := graphQLResponse{Data: make(map[string]any, len(invocations))}
		for _, inv := range invocations {
			op := art.Operation(inv.Operation)
			if op != nil && !rootKindMatches(inv.Kind, op.Kind) {
				resp.Data[inv.Alias] = nil
				resp.Errors = append(resp.Errors, graphQLError{
					Message: "operation " + inv.Operation + " is not a " + inv.Kind,
					Path:    []string{inv.Alias},
					Extensions: map[string]any{
						"classification": "client",
					},
				})
				continue
			}
			if inv.Kind == "subscription" {
				resp.Data[inv.Alias] = nil
				resp.Errors = append(resp.Errors, graphQLError{
					Message: "subscriptions are not served over HTTP",
					Path:    []string{inv.Alias},
					Extensions: map[string]any{
						"classification": "client",
					},
				})
				continue
			}

			result, err := rt.Execute(r.Context(), inv.Operation, caller, inv.Args)
			if err != nil {
				fault := runtime.FaultOf(err)
				if fault == runtime.FaultServer {
					logger.Error("operation failed",
						slog.String("operation", inv.Operation),
						slog.String("error", err.Error()))
				}
				resp.Data[inv.Alias] = nil
				resp.Errors = append(resp.Errors, graphQLError{
					Message: errorMessage(err, fault),
					Path:    []string{inv.Alias},
					Extensions: map[string]any{
						"classification": faultLabel(fault),
					},
				})
				continue
			}

			resp.Data[inv.Alias] = shapeResult(op, result)
		}

		writeJSON(w, http.StatusOK, resp)
	})
}

func rootKindMatches(docKind string, opKind compiler.OpKind) bool {
	switch docKind {
	case "query":
		return opKind == compiler.OpQuery || opKind == compiler.OpAggregate
	case "mutation":
		return opKind == compiler.OpMutation
	case "subscription":
		return opKind == compiler.OpSubscription
	default:
		return false
	}
}

// shapeResult maps a runtime response onto the document field value.
// Lists are wrapped in a page envelope so the cursor has somewhere to live.
func shapeResult(op *compiler.Operation, resp *runtime.Response) any {
	if op == nil {
		return nil
	}
	switch {
	case op.Kind == compiler.OpAggregate:
		groups := make([]map[string]any, 0, len(resp.Groups))
		for _, row := range resp.Groups {
			group := make(map[string]any, len(row.Dimensions)+len(row.Measures))
			for k, v := range row.Dimensions {
				group[k] = v
			}
			for k, v := range row.Measures {
				group[k] = v
			}
			groups = append(groups, group)
		}
		return groups
	case op.Kind == compiler.OpMutation && op.ReturnType == schema.VoidType:
		return map[string]any{"affected": resp.Affected}
	case op.ReturnsList:
		page := map[string]any{
			"items":       resp.List,
			"hasNextPage": resp.HasNextPage,
		}
		if resp.NextCursor != "" {
			page["nextCursor"] = resp.NextCursor
		}
		return page
	default:
		if resp.Object == nil {
			return nil
		}
		return resp.Object
	}
}

// errorMessage hides server fault details from clients.
func errorMessage(err error, fault runtime.Fault) string {
	if fault == runtime.FaultServer {
		return "internal error"
	}
	return err.Error()
}

func faultLabel(fault runtime.Fault) string {
	switch fault {
	case runtime.FaultClient:
		return "client"
	case runtime.FaultRetryable:
		return "retryable"
	default:
		return "server"
	}
}

func writeRequestError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, graphQLResponse{
		Errors: []graphQLError{{Message: err.Error()}},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
