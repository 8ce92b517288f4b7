package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vendorrisk/internal/model"
	"vendorrisk/internal/normalize"
)

const (
	TableVendors   = "vendors"
	TableIncidents = "incidents"

	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// ChangeEvent is one row change on the record source.
type ChangeEvent struct {
	Table     string         `json:"table"`
	Type      string         `json:"type"`
	Record    map[string]any `json:"record,omitempty"`
	OldRecord map[string]any `json:"old_record,omitempty"`
	Source    string         `json:"-"`
}

// ID returns the id of the affected row, taken from the old record for deletes.
func (ev ChangeEvent) ID() string {
	if ev.Type == OpDelete {
		if id := normalize.NewFields(ev.OldRecord).ID(); id != "" {
			return id
		}
	}
	return normalize.NewFields(ev.Record).ID()
}

// Decode parses a single change event or a JSON array of them. Numbers are
// kept as json.Number so numeric ids survive untouched.
func Decode(data []byte) ([]ChangeEvent, error) {
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return nil, errors.New("empty change payload")
	}
	dec := json.NewDecoder(bytes.NewReader(trim))
	dec.UseNumber()
	var objs []map[string]any
	if trim[0] == '[' {
		if err := dec.Decode(&objs); err != nil {
			return nil, err
		}
	} else {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	out := make([]ChangeEvent, 0, len(objs))
	for i, obj := range objs {
		ev, err := ParseEventMap(obj)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// ParseEventMap accepts both {table,type,record,old_record} and the
// {table,eventType,new,old} realtime shape.
func ParseEventMap(obj map[string]any) (ChangeEvent, error) {
	f := normalize.Fields{}
	for key, val := range obj {
		f[normalize.CanonicalKey(key)] = val
	}
	ev := ChangeEvent{
		Table: strings.ToLower(f.String("table")),
		Type:  strings.ToUpper(f.String("type", "event_type", "op")),
	}
	if i := strings.LastIndex(ev.Table, "."); i >= 0 {
		ev.Table = ev.Table[i+1:]
	}
	switch ev.Table {
	case TableVendors, TableIncidents:
	default:
		return ChangeEvent{}, fmt.Errorf("unknown table %q", ev.Table)
	}
	switch ev.Type {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return ChangeEvent{}, fmt.Errorf("unknown change type %q", ev.Type)
	}
	ev.Record = recordMap(f, "record", "new")
	ev.OldRecord = recordMap(f, "old_record", "old")
	if ev.ID() == "" {
		return ChangeEvent{}, fmt.Errorf("%s %s: %w", ev.Table, ev.Type, normalize.ErrMissingID)
	}
	return ev, nil
}

func recordMap(f normalize.Fields, keys ...string) map[string]any {
	for _, k := range keys {
		if m, ok := f[k].(map[string]any); ok && len(m) > 0 {
			return m
		}
	}
	return nil
}

func normalizeVendor(record map[string]any) (model.Vendor, error) {
	if len(record) == 0 {
		return model.Vendor{}, errEmptyRecord
	}
	return normalize.Vendor(record)
}

func normalizeIncident(record map[string]any) (model.Incident, error) {
	if len(record) == 0 {
		return model.Incident{}, errEmptyRecord
	}
	return normalize.Incident(record)
}
