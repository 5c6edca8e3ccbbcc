package audit

import (
	"time"

	"github.com/archivault/archivault/internal/store"
)

// EventKind labels what a recorded operation did to its target.
type EventKind string

const (
	KindCreate  EventKind = "Create"
	KindUpdate  EventKind = "Update"
	KindDelete  EventKind = "Delete"
	KindView    EventKind = "View"
	KindUnknown EventKind = "Unknown"
)

// Event is one append-only audit record. Exactly one of Original/Changes is
// populated for Delete/Create; Update retains only Changes (the posted patch).
type Event struct {
	ID         int64
	BatchID    string
	ActorID    int64
	Kind       EventKind
	EntityType string
	TargetID   int64
	Original   string
	Changes    string
	CompanyID  *int64
	IP         string
	UserAgent  string
	At         time.Time
}

// KindForAction maps a store action to the event kind recorded for it.
func KindForAction(action store.Action) EventKind {
	switch action {
	case store.ActionCreate, store.ActionCreateMany:
		return KindCreate
	case store.ActionUpdate, store.ActionUpdateMany, store.ActionUpsert:
		return KindUpdate
	case store.ActionDelete, store.ActionDeleteMany:
		return KindDelete
	case store.ActionFindUnique, store.ActionFindFirst:
		return KindView
	default:
		return KindUnknown
	}
}

// sensitiveModels are the entity types whose single-record reads are audited.
var sensitiveModels = map[string]struct{}{
	"companies":           {},
	"areas":               {},
	"correspondences":     {},
	"retention_schedules": {},
	"warehouses":          {},
	"boxes":               {},
	"tickets":             {},
	"users":               {},
}

// skippedModels are never audited, preventing the interceptor from recording
// its own writes.
var skippedModels = map[string]struct{}{
	"audit_events": {},
	"sessions":     {},
}

// SensitiveModel reports whether reads of the model are audited.
func SensitiveModel(model string) bool {
	_, ok := sensitiveModels[model]
	return ok
}
