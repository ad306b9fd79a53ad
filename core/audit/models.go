package audit

import (
	"encoding/json"
	"time"
)

// Action kinds recorded in the log.
const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionLogin  Action = "LOGIN"
	ActionLogout Action = "LOGOUT"
)

type Action string

func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout:
		return true
	}
	return false
}

// Entry is one immutable record of a governed mutation or authentication
// event. Entries are append-only: no update or delete is exposed anywhere.
type Entry struct {
	ID         string          `json:"id"`
	Time       time.Time       `json:"time"` // UTC
	ActorID    string          `json:"actor_id"`
	SchoolID   string          `json:"school_id,omitempty"` // empty for global (super admin) actions
	Action     Action          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	IP         string          `json:"ip,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
}

// Snapshot marshals v into a value snapshot for Entry.Before/After.
// A value that cannot be marshalled yields a nil snapshot rather than an
// error; snapshots are best-effort context, never load-bearing data.
func Snapshot(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// QueryFilter applies AND semantics on its non-zero fields.
type QueryFilter struct {
	SchoolID   string    `query:"school_id"`
	ActorID    string    `query:"actor_id"`
	Action     Action    `query:"action"`
	EntityType string    `query:"entity_type"`
	DateFrom   time.Time `query:"date_from"`
	DateTo     time.Time `query:"date_to"`
	Limit      int       `query:"limit"`
	Offset     int       `query:"offset"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.SchoolID == "" && qf.ActorID == "" && qf.Action == "" && qf.EntityType == "" &&
		qf.DateFrom.IsZero() && qf.DateTo.IsZero() && qf.Limit == 0 && qf.Offset == 0
}
