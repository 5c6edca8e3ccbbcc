package store

import (
	"context"
	"testing"
)

func TestClientRequiresModelAndAction(t *testing.T) {
	client := NewClient(func(context.Context, Operation) (Result, error) {
		return Result{}, nil
	})
	if _, err := client.Do(context.Background(), Operation{Action: ActionCreate}); err == nil {
		t.Fatalf("expected error without model")
	}
	if _, err := client.Do(context.Background(), Operation{Model: "boxes"}); err == nil {
		t.Fatalf("expected error without action")
	}
}

func TestMiddlewaresRunOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, op Operation) (Result, error) {
				order = append(order, name)
				return next(ctx, op)
			}
		}
	}
	exec := func(context.Context, Operation) (Result, error) {
		order = append(order, "exec")
		return Result{}, nil
	}
	client := NewClient(exec, mark("outer"), mark("inner"))
	if _, err := client.Do(context.Background(), Operation{Model: "boxes", Action: ActionCount}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if len(order) != 3 || order[0] != "outer" || order[1] != "inner" || order[2] != "exec" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestMiddlewareSeesResult(t *testing.T) {
	exec := func(context.Context, Operation) (Result, error) {
		return Result{Record: map[string]any{"id": int64(1)}}, nil
	}
	var seen Result
	spy := func(next Handler) Handler {
		return func(ctx context.Context, op Operation) (Result, error) {
			res, err := next(ctx, op)
			seen = res
			return res, err
		}
	}
	client := NewClient(exec, spy)
	if _, err := client.Do(context.Background(), Operation{Model: "boxes", Action: ActionFindUnique}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if seen.Record["id"] != int64(1) {
		t.Fatalf("middleware must observe the executor result, got %+v", seen)
	}
}
