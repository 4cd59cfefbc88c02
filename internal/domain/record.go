// Package domain defines the workout records tracked per calendar day.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Kind categorises a day's session.
type Kind string

const (
	KindRun      Kind = "run"
	KindLift     Kind = "lift"
	KindMobility Kind = "mobility"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRun, KindLift, KindMobility:
		return true
	}
	return false
}

// Record is the single entry stored for one calendar date key.
//
// Payload carries the kind-specific fields (metrics, exercise lists, notes)
// and is serialised inline next to the fixed fields.
type Record struct {
	DateKey   string
	WeekKey   string
	DayName   string
	Kind      Kind
	Completed bool
	UpdatedAt *time.Time
	Payload   map[string]any
}

// Snapshot maps date keys to records.
type Snapshot map[string]Record

var reservedFields = map[string]struct{}{
	"dateKey":   {},
	"weekKey":   {},
	"dayName":   {},
	"type":      {},
	"completed": {},
	"updatedAt": {},
}

// MarshalJSON flattens the payload next to the fixed fields.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+6)
	for k, v := range r.Payload {
		if _, reserved := reservedFields[k]; reserved {
			continue
		}
		out[k] = v
	}
	out["dateKey"] = r.DateKey
	if r.WeekKey != "" {
		out["weekKey"] = r.WeekKey
	}
	if r.DayName != "" {
		out["dayName"] = r.DayName
	}
	if r.Kind != "" {
		out["type"] = string(r.Kind)
	}
	out["completed"] = r.Completed
	if r.UpdatedAt != nil {
		out["updatedAt"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits fixed fields from the free-form payload.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("record must be a JSON object")
	}

	rec := Record{Payload: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "dateKey":
			rec.DateKey, _ = v.(string)
		case "weekKey":
			rec.WeekKey, _ = v.(string)
		case "dayName":
			rec.DayName, _ = v.(string)
		case "type":
			s, _ := v.(string)
			rec.Kind = Kind(s)
		case "completed":
			rec.Completed, _ = v.(bool)
		case "updatedAt":
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("updatedAt must be a string, got %T", v)
			}
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return fmt.Errorf("invalid updatedAt %q: %w", s, err)
			}
			rec.UpdatedAt = &ts
		default:
			rec.Payload[k] = v
		}
	}
	*r = rec
	return nil
}

// Clone returns a copy whose payload map and timestamp can be mutated
// without affecting r. Nested payload values are shared.
func (r Record) Clone() Record {
	out := r
	if r.UpdatedAt != nil {
		ts := *r.UpdatedAt
		out.UpdatedAt = &ts
	}
	if r.Payload != nil {
		out.Payload = make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// Float reads a numeric payload field, accepting JSON numbers and numeric
// strings (form inputs arrive as strings).
func (r Record) Float(field string) (float64, bool) {
	switch v := r.Payload[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// String reads a string payload field.
func (r Record) String(field string) string {
	s, _ := r.Payload[field].(string)
	return s
}

// Exercise is one entry of a lift session's exercise list.
type Exercise struct {
	Name      string
	Sets      int
	Completed bool
}

// Exercises decodes the "exercises" payload list leniently.
func (r Record) Exercises() []Exercise {
	items, _ := r.Payload["exercises"].([]any)
	out := make([]Exercise, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ex := Exercise{}
		ex.Name, _ = m["name"].(string)
		ex.Completed, _ = m["completed"].(bool)
		switch sets := m["sets"].(type) {
		case float64:
			ex.Sets = int(sets)
		case string:
			ex.Sets, _ = strconv.Atoi(sets)
		}
		out = append(out, ex)
	}
	return out
}

// Keys returns the snapshot's date keys in ascending order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone copies the snapshot and every record in it.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, r := range s {
		out[k] = r.Clone()
	}
	return out
}
