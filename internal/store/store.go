// Package store is the generic data-access dispatch layer. Repositories
// describe each persistence call as an Operation (model, action, args) and run
// it through a Client, which passes it down a middleware chain before the
// executor touches the database. The audit interceptor plugs in as middleware.
package store

import (
	"context"
	"fmt"
)

// Action names a data-store operation kind.
type Action string

const (
	ActionCreate     Action = "create"
	ActionCreateMany Action = "createMany"
	ActionUpdate     Action = "update"
	ActionUpdateMany Action = "updateMany"
	ActionUpsert     Action = "upsert"
	ActionDelete     Action = "delete"
	ActionDeleteMany Action = "deleteMany"
	ActionFindUnique Action = "findUnique"
	ActionFindFirst  Action = "findFirst"
	ActionFindMany   Action = "findMany"
	ActionCount      Action = "count"
)

// Args carries the filter and payload of an operation.
type Args struct {
	// Where filters the affected rows by column equality.
	Where map[string]any
	// Data is the posted payload for create/update/upsert.
	Data map[string]any
	// Rows holds the payloads of a createMany.
	Rows []map[string]any
}

// Operation describes one persistence call.
type Operation struct {
	Model  string
	Action Action
	Args   Args
}

// Result is the outcome of an executed operation.
type Result struct {
	// Record is the affected row for single-record operations; the deleted
	// row's prior state for delete.
	Record map[string]any
	// Records holds rows returned by findMany.
	Records []map[string]any
	// Affected is the row count for batch operations.
	Affected int64
}

// Handler executes an operation.
type Handler func(ctx context.Context, op Operation) (Result, error)

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Client dispatches operations through the middleware chain.
type Client struct {
	handler Handler
}

// NewClient builds a Client around the executor. Middlewares run in the order
// given, outermost first.
func NewClient(exec Handler, mws ...Middleware) *Client {
	h := exec
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return &Client{handler: h}
}

// Do runs the operation.
func (c *Client) Do(ctx context.Context, op Operation) (Result, error) {
	if op.Model == "" || op.Action == "" {
		return Result{}, fmt.Errorf("store: operation requires model and action")
	}
	return c.handler(ctx, op)
}
