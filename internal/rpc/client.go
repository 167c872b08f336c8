package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

// maxResponseBytes bounds how much of a response body the client reads.
const maxResponseBytes = 4 << 20

// ClientOptions configures NewClient.
type ClientOptions struct {
	// TokenSource supplies the bearer token. Nil sends anonymous requests.
	TokenSource oauth2.TokenSource

	// Timeout bounds each call. Zero means no limit.
	Timeout time.Duration

	// Base is the underlying transport; http.DefaultTransport when nil.
	Base http.RoundTripper
}

// Client calls the todo procedures of a server.
type Client struct {
	baseURL string
	http    *http.Client
}

// StaticToken returns a token source for a fixed bearer token, or nil when
// token is empty.
func StaticToken(token string) oauth2.TokenSource {
	if token == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// NewClient returns a Client for the server at baseURL.
func NewClient(baseURL string, opts ClientOptions) *Client {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	var transport http.RoundTripper = otelhttp.NewTransport(base)
	if opts.TokenSource != nil {
		transport = &oauth2.Transport{Source: opts.TokenSource, Base: transport}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: opts.Timeout},
	}
}

// All returns the caller's todos.
func (c *Client) All(ctx context.Context) ([]todo.Todo, error) {
	var todos []todo.Todo
	if err := c.call(ctx, http.MethodGet, ProcAll, nil, &todos); err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []todo.Todo{}
	}
	return todos, nil
}

// Add creates a todo with the given title.
func (c *Client) Add(ctx context.Context, title string) error {
	return c.mutate(ctx, ProcAdd, title)
}

// ToggleCompleted sets the completed flag of a todo.
func (c *Client) ToggleCompleted(ctx context.Context, id string, completed bool) error {
	return c.mutate(ctx, ProcToggleCompleted, ToggleInput{ID: id, Completed: completed})
}

// Delete removes a todo.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.mutate(ctx, ProcDelete, id)
}

func (c *Client) mutate(ctx context.Context, proc string, input any) error {
	var ok bool
	if err := c.call(ctx, http.MethodPost, proc, input, &ok); err != nil {
		return err
	}
	if !ok {
		return todo.NewError(todo.KindInternal, "The server did not confirm the change.", nil)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, proc string, input, out any) error {
	var body io.Reader
	if input != nil {
		b, err := json.Marshal(input)
		if err != nil {
			return todo.NewError(todo.KindInvalid, "Cannot encode request.", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+BasePath+"/"+proc, body)
	if err != nil {
		return todo.NewError(todo.KindTransport, "Cannot build request.", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return todo.NewError(todo.KindTransport, "Cannot reach the server.", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		return todo.NewError(todo.KindTransport,
			fmt.Sprintf("Unexpected response from the server (status %d).", resp.StatusCode), err)
	}
	if env.Error != nil {
		return todo.NewError(todo.ParseKind(env.Error.Code), env.Error.Message, nil)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return todo.NewError(todo.KindTransport,
			fmt.Sprintf("Unexpected response from the server (status %d).", resp.StatusCode), nil)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return todo.NewError(todo.KindTransport, "Cannot decode the server response.", err)
		}
	}
	return nil
}
