package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dankoteck/extremely-simple-todo-app/internal/auth"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

// Service is the server side of the todo procedures.
type Service interface {
	List(ctx context.Context) ([]todo.Todo, error)
	Add(ctx context.Context, title string) error
	ToggleCompleted(ctx context.Context, id string, completed bool) error
	Delete(ctx context.Context, id string) error
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// ServiceName names the otelgin server spans.
	ServiceName string
}

// procedureKey is the gin context key holding the procedure name.
const procedureKey = "rpc.procedure"

type procedure struct {
	name   string
	method string
	schema *jsonschema.Schema
	call   func(ctx context.Context, svc Service, input []byte) (any, error)
}

var procedures = []procedure{
	{
		name:   ProcAll,
		method: http.MethodGet,
		call: func(ctx context.Context, svc Service, _ []byte) (any, error) {
			return svc.List(ctx)
		},
	},
	{
		name:   ProcAdd,
		method: http.MethodPost,
		schema: titleSchema,
		call: func(ctx context.Context, svc Service, input []byte) (any, error) {
			var title string
			if err := json.Unmarshal(input, &title); err != nil {
				return nil, todo.NewError(todo.KindInvalid, "Invalid input.", err)
			}
			return true, svc.Add(ctx, title)
		},
	},
	{
		name:   ProcToggleCompleted,
		method: http.MethodPost,
		schema: toggleSchema,
		call: func(ctx context.Context, svc Service, input []byte) (any, error) {
			var in ToggleInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, todo.NewError(todo.KindInvalid, "Invalid input.", err)
			}
			return true, svc.ToggleCompleted(ctx, in.ID, in.Completed)
		},
	},
	{
		name:   ProcDelete,
		method: http.MethodPost,
		schema: idSchema,
		call: func(ctx context.Context, svc Service, input []byte) (any, error) {
			var id string
			if err := json.Unmarshal(input, &id); err != nil {
				return nil, todo.NewError(todo.KindInvalid, "Invalid input.", err)
			}
			return true, svc.Delete(ctx, id)
		},
	},
}

// NewRouter returns a gin engine serving the todo procedures under BasePath.
func NewRouter(svc Service, verifier *auth.Verifier, opts RouterOptions) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "todo-server"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// Add tracing middleware
	r.Use(otelgin.Middleware(opts.ServiceName))

	r.Use(MetricsMiddleware())
	r.Use(auth.Middleware(verifier))

	g := r.Group(BasePath)
	for _, p := range procedures {
		g.Handle(p.method, "/"+p.name, serve(svc, p))
	}

	r.NoRoute(func(c *gin.Context) {
		abort(c, todo.NewError(todo.KindNotFound, "Unknown procedure.", nil))
	})
	return r
}

func serve(svc Service, p procedure) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(procedureKey, p.name)

		var input []byte
		if p.schema != nil {
			body, err := c.GetRawData()
			if err != nil {
				abort(c, todo.NewError(todo.KindInvalid, "Cannot read request body.", err))
				return
			}
			if err := validateInput(p.schema, body); err != nil {
				abort(c, err)
				return
			}
			input = body
		}

		result, err := p.call(c.Request.Context(), svc, input)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}

// abort writes the error envelope. Only typed errors carry their message
// to the client.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)

	kind := todo.KindOf(err)
	body := errorBody{Code: kind.String(), Message: "Something went wrong."}
	var e *todo.Error
	if errors.As(err, &e) {
		body.Message = e.Error()
	}
	c.AbortWithStatusJSON(HTTPStatus(kind), gin.H{"error": body})
}
