package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/archivault/archivault/internal/requestctx"
	"github.com/archivault/archivault/internal/store"
)

// Interceptor returns store middleware that records audit events for mutating
// operations and for single-record reads of sensitive entity types. The
// wrapped operation always runs first and its result or error is returned
// untouched; recording happens through the Recorder's detached writer.
func Interceptor(rec *Recorder, dedup Deduper, logger *slog.Logger) store.Middleware {
	return func(next store.Handler) store.Handler {
		return func(ctx context.Context, op store.Operation) (store.Result, error) {
			res, err := next(ctx, op)
			if err != nil {
				return res, err
			}

			kind := KindForAction(op.Action)
			if kind == KindUnknown {
				return res, nil
			}
			if _, skip := skippedModels[op.Model]; skip {
				return res, nil
			}
			if kind == KindView && !SensitiveModel(op.Model) {
				return res, nil
			}

			sc := requestctx.FromContext(ctx)
			if sc == nil || sc.Actor == nil {
				// Background work has no actor to attribute.
				return res, nil
			}
			actor := sc.Actor

			targetID := resolveTargetID(op, res)
			if kind == KindView {
				key := DedupKey(actor.ID, kind, op.Model, targetID)
				if !dedup.ShouldRecord(ctx, key) {
					return res, nil
				}
			}

			ev := Event{
				BatchID:    uuid.NewString(),
				ActorID:    actor.ID,
				Kind:       kind,
				EntityType: op.Model,
				TargetID:   targetID,
				CompanyID:  companyRef(actor),
				IP:         sc.IP,
				UserAgent:  sc.UserAgent,
				At:         time.Now().UTC(),
			}
			switch kind {
			case KindDelete:
				ev.Original = marshalPayload(deletePayload(op, res), logger)
			case KindCreate, KindUpdate:
				ev.Changes = marshalPayload(changePayload(op, res), logger)
			}

			rec.Record(ev)
			return res, nil
		}
	}
}

func companyRef(actor *requestctx.Actor) *int64 {
	if actor.CompanyID == 0 {
		return nil
	}
	id := actor.CompanyID
	return &id
}

// resolveTargetID prefers an id on the operation's result, then the filter
// arguments, then zero for batch calls that identify no single row.
func resolveTargetID(op store.Operation, res store.Result) int64 {
	if id, ok := coerceID(res.Record["id"]); ok {
		return id
	}
	if id, ok := coerceID(op.Args.Where["id"]); ok {
		return id
	}
	return 0
}

func coerceID(v any) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, true
	case int32:
		return int64(id), true
	case int:
		return int64(id), true
	case float64:
		return int64(id), true
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func deletePayload(op store.Operation, res store.Result) map[string]any {
	if res.Record != nil {
		return res.Record
	}
	// deleteMany returns no row; keep the filter and the affected count.
	return map[string]any{"where": op.Args.Where, "affected": res.Affected}
}

func changePayload(op store.Operation, res store.Result) map[string]any {
	switch op.Action {
	case store.ActionCreate:
		if res.Record != nil {
			return res.Record
		}
		return op.Args.Data
	case store.ActionCreateMany:
		return map[string]any{"rows": len(op.Args.Rows), "affected": res.Affected}
	case store.ActionUpdateMany:
		return map[string]any{"where": op.Args.Where, "data": op.Args.Data, "affected": res.Affected}
	default:
		// update/upsert retain only the posted patch.
		return op.Args.Data
	}
}

// marshalPayload serializes a snapshot, stringifying integers wider than the
// JSON safe-integer range so downstream consumers never mis-decode them.
func marshalPayload(payload map[string]any, logger *slog.Logger) string {
	data, err := json.Marshal(sanitize(payload))
	if err != nil {
		logger.Warn("audit payload marshal failed", slog.Any("error", err))
		return "{}"
	}
	return string(data)
}

const maxSafeInt = 1<<53 - 1

func sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitize(val)
		}
		return out
	case int64:
		if t > maxSafeInt || t < -maxSafeInt {
			return strconv.FormatInt(t, 10)
		}
		return t
	case uint64:
		if t > maxSafeInt {
			return strconv.FormatUint(t, 10)
		}
		return t
	case float64:
		if math.Abs(t) > maxSafeInt && t == math.Trunc(t) {
			return strconv.FormatFloat(t, 'f', 0, 64)
		}
		return t
	default:
		return v
	}
}
