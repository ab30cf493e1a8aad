// Package model defines core data structures for procinsight.
package model

import "time"

// Defaults applied when an event leaves a structural field empty.
const (
	DefaultActivity = "Unknown"
	DefaultCaseID   = "unknown"
)

// Event represents a single process mining event as handed over by an
// ingestion source. Events are treated as immutable once constructed.
type Event struct {
	// CaseID identifies the process instance (trace).
	CaseID string `json:"case_id,omitempty"`

	// Activity is the event name/activity label (XES concept:name).
	Activity string `json:"concept_name,omitempty"`

	// Timestamp is the raw date-time as supplied by the source.
	// It may be empty or unparseable.
	Timestamp string `json:"timestamp,omitempty"`

	// Resource is the actor/resource performing the activity.
	Resource string `json:"resource,omitempty"`

	// Lifecycle is the XES lifecycle:transition value.
	Lifecycle string `json:"lifecycle_transition,omitempty"`

	// Attributes holds every additional named attribute of the source record.
	Attributes map[string]any `json:"-"`
}

// CaseKey returns the case id, falling back to DefaultCaseID.
func (e *Event) CaseKey() string {
	if e.CaseID == "" {
		return DefaultCaseID
	}
	return e.CaseID
}

// ActivityName returns the activity, falling back to DefaultActivity.
func (e *Event) ActivityName() string {
	if e.Activity == "" {
		return DefaultActivity
	}
	return e.Activity
}

// IsEmpty reports whether the event carries no structural field at all.
func (e *Event) IsEmpty() bool {
	return e.CaseID == "" && e.Activity == "" && e.Timestamp == "" &&
		e.Resource == "" && e.Lifecycle == "" && len(e.Attributes) == 0
}

// Attribute returns an extra attribute by key.
func (e *Event) Attribute(key string) (any, bool) {
	v, ok := e.Attributes[key]
	return v, ok
}

// Stamp pairs an event with its resolved timestamp.
// Valid is false when the raw timestamp was missing or unparseable,
// in which case Time is the Unix epoch.
type Stamp struct {
	Time  time.Time
	Valid bool
}

// Epoch is the ordering fallback for events without a usable timestamp.
var Epoch = time.Unix(0, 0).UTC()
