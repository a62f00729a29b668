package gqlrequest

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// Invocation is one engine call extracted from a GraphQL document: a root
// field with resolved arguments.
type Invocation struct {
	// Operation is the root field name, which is the compiled operation name.
	Operation string
	// Alias is the response key, defaulting to the field name.
	Alias string
	// Kind is query, mutation, or subscription.
	Kind string
	Args map[string]any
}

// Parse extracts the invocations of the selected operation from an
// envelope. Every root field of the operation becomes one invocation, in
// document order.
func Parse(env Envelope) ([]Invocation, error) {
	vars, err := env.Variables()
	if err != nil {
		return nil, err
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(env.Query),
			Name: "graphql",
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}

	op, err := selectOperation(doc, env.OperationName)
	if err != nil {
		return nil, err
	}

	invocations := make([]Invocation, 0, len(op.SelectionSet.Selections))
	for _, selection := range op.SelectionSet.Selections {
		field, ok := selection.(*ast.Field)
		if !ok {
			return nil, fmt.Errorf("root selections must be plain fields")
		}
		args, err := resolveArguments(field, vars)
		if err != nil {
			return nil, err
		}
		inv := Invocation{
			Operation: field.Name.Value,
			Alias:     field.Name.Value,
			Kind:      string(op.Operation),
			Args:      args,
		}
		if field.Alias != nil && field.Alias.Value != "" {
			inv.Alias = field.Alias.Value
		}
		invocations = append(invocations, inv)
	}
	if len(invocations) == 0 {
		return nil, fmt.Errorf("operation selects no fields")
	}
	return invocations, nil
}

func selectOperation(doc *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok && op != nil {
			operations = append(operations, op)
		}
	}
	if operationName != "" {
		for _, op := range operations {
			if op.Name != nil && op.Name.Value == operationName {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", operationName)
	}
	switch len(operations) {
	case 0:
		return nil, fmt.Errorf("request does not include an operation")
	case 1:
		return operations[0], nil
	default:
		return nil, fmt.Errorf("operationName is required when request has multiple operations")
	}
}

func resolveArguments(field *ast.Field, vars map[string]any) (map[string]any, error) {
	args := map[string]any{}
	for _, arg := range field.Arguments {
		value, err := resolveValue(arg.Value, vars)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg.Name.Value, err)
		}
		args[arg.Name.Value] = value
	}
	return args, nil
}

func resolveValue(value ast.Value, vars map[string]any) (any, error) {
	switch v := value.(type) {
	case *ast.Variable:
		name := v.Name.Value
		resolved, ok := vars[name]
		if !ok {
			return nil, fmt.Errorf("variable $%s is not provided", name)
		}
		return resolved, nil
	case *ast.IntValue:
		return strconv.ParseInt(v.Value, 10, 64)
	case *ast.FloatValue:
		return strconv.ParseFloat(v.Value, 64)
	case *ast.StringValue:
		return v.Value, nil
	case *ast.BooleanValue:
		return v.Value, nil
	case *ast.EnumValue:
		return v.Value, nil
	case *ast.ListValue:
		items := make([]any, 0, len(v.Values))
		for _, item := range v.Values {
			resolved, err := resolveValue(item, vars)
			if err != nil {
				return nil, err
			}
			items = append(items, resolved)
		}
		return items, nil
	case *ast.ObjectValue:
		obj := make(map[string]any, len(v.Fields))
		for _, f := range v.Fields {
			resolved, err := resolveValue(f.Value, vars)
			if err != nil {
				return nil, err
			}
			obj[f.Name.Value] = resolved
		}
		return obj, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %T", value)
	}
}
