// Package rpc carries the todo procedures over HTTP: a gin router on the
// server side and a typed client on the other.
package rpc

import (
	"encoding/json"
	"net/http"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

// BasePath prefixes every procedure route.
const BasePath = "/trpc"

// Procedure names.
const (
	ProcAll             = "todo.all"
	ProcAdd             = "todo.add"
	ProcToggleCompleted = "todo.toggleCompleted"
	ProcDelete          = "todo.delete"
)

// ToggleInput is the payload of todo.toggleCompleted.
type ToggleInput struct {
	ID        string `json:"id"`
	Completed bool   `json:"completed"`
}

// Input schemas, one per procedure taking input.
var (
	titleSchema = jsonschema.MustCompileString("todo.add.json", `{
		"type": "string",
		"minLength": 1
	}`)
	idSchema = jsonschema.MustCompileString("todo.delete.json", `{
		"type": "string",
		"minLength": 1
	}`)
	toggleSchema = jsonschema.MustCompileString("todo.toggleCompleted.json", `{
		"type": "object",
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"completed": {"type": "boolean"}
		},
		"required": ["id", "completed"]
	}`)
)

// envelope is the body of every procedure response.
type envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPStatus returns the status code a kind is served with.
func HTTPStatus(k todo.Kind) int {
	switch k {
	case todo.KindUnauthorized:
		return http.StatusUnauthorized
	case todo.KindForbidden:
		return http.StatusForbidden
	case todo.KindNotFound:
		return http.StatusNotFound
	case todo.KindInvalid:
		return http.StatusBadRequest
	case todo.KindConflict:
		return http.StatusConflict
	case todo.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// validateInput decodes body and checks it against schema.
func validateInput(schema *jsonschema.Schema, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return todo.NewError(todo.KindInvalid, "Request body is not valid JSON.", err)
	}
	if err := schema.Validate(v); err != nil {
		return todo.NewError(todo.KindInvalid, "Invalid input: "+schemaMessage(err), err)
	}
	return nil
}

// schemaMessage flattens a validation error into its leaf messages.
func schemaMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var leaves []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(leaves, "; ")
}
