package graph

import (
	"context"
	_ "embed"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-sessionauth"
	graphql "github.com/graph-gophers/graphql-go"
)

//go:embed schema.graphql
var Schema string

const maxQueryDepth = 12

// Request is a GraphQL request in its JSON or query string form
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// Handler serves /graphql over fiber
type Handler struct {
	schema   *graphql.Schema
	sessions *auth.SessionManager
	logger   auth.Logger
	guards   []fiber.Handler
}

// NewHandler parses the schema against resolver
func NewHandler(resolver *Resolver) (*Handler, error) {
	schema, err := graphql.ParseSchema(Schema, resolver,
		graphql.MaxDepth(maxQueryDepth),
	)
	if err != nil {
		return nil, err
	}
	return &Handler{
		schema:   schema,
		sessions: resolver.sessions,
		logger:   resolver.logger,
	}, nil
}

func (h *Handler) WithLogger(logger auth.Logger) *Handler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Use adds handlers that run before the session middleware, such as
// auth.TrustedOrigins.
func (h *Handler) Use(guards ...fiber.Handler) *Handler {
	h.guards = append(h.guards, guards...)
	return h
}

// Register mounts GET and POST /graphql behind the guards and the session
// middleware
func (h *Handler) Register(r fiber.Router) {
	chain := append(append([]fiber.Handler{}, h.guards...), h.sessions.Middleware(), h.Serve)
	r.Get("/graphql", chain...)
	r.Post("/graphql", chain...)
}

// Serve executes one request. The fiber context travels with the request
// context so mutations can write cookies.
func (h *Handler) Serve(c *fiber.Ctx) error {
	req := Request{}
	if c.Method() == fiber.MethodGet {
		req.Query = c.Query("query")
		req.OperationName = c.Query("operationName")
		if raw := c.Query("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(errorResponse("invalid variables"))
			}
		}
	} else {
		// form posts are refused so a cross site form cannot reach mutations
		if !c.Is("json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(errorResponse("content type must be application/json"))
		}
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse("invalid request body"))
		}
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse("query is required"))
	}

	ctx := withFiberCtx(c.UserContext(), c)
	if c.Method() == fiber.MethodGet {
		ctx = context.WithValue(ctx, readOnlyKey{}, true)
	}
	resp := h.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)
	if len(resp.Errors) > 0 {
		h.logger.Debug("graphql response has errors", "operation", req.OperationName, "count", len(resp.Errors))
	}

	return c.JSON(resp)
}

func errorResponse(msg string) fiber.Map {
	return fiber.Map{
		"errors": []fiber.Map{{
			"message":    msg,
			"extensions": fiber.Map{"code": CodeBadUserInput},
		}},
	}
}
