package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Record is one decoded line of the JSON log file.
type Record struct {
	Time      string
	Level     string
	Message   string
	Component string
	Device    string
	EventType string
	Fields    map[string]any
}

var reservedKeys = map[string]struct{}{
	"ts": {}, "level": {}, "msg": {}, "component": {}, "device": {},
	"event_type": {}, "session_id": {}, "source": {},
}

// ParseRecord decodes a JSON log line. Lines that are not JSON objects are
// reported as not ok.
func ParseRecord(line string) (Record, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Record{}, false
	}
	rec := Record{
		Time:      stringField(raw, "ts"),
		Level:     strings.ToUpper(stringField(raw, "level")),
		Message:   stringField(raw, "msg"),
		Component: stringField(raw, "component"),
		Device:    stringField(raw, "device"),
		EventType: stringField(raw, "event_type"),
	}
	for key, value := range raw {
		if _, skip := reservedKeys[key]; skip {
			continue
		}
		if rec.Fields == nil {
			rec.Fields = make(map[string]any)
		}
		rec.Fields[key] = value
	}
	return rec, true
}

// Format renders the record in the console layout.
func (r Record) Format() string {
	var b strings.Builder
	b.WriteString(r.Time)
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s", r.Level)
	if r.Component != "" {
		b.WriteString(" [")
		b.WriteString(r.Component)
		b.WriteByte(']')
	}
	if r.Device != "" {
		b.WriteByte(' ')
		b.WriteString(r.Device)
	}
	b.WriteString(" - ")
	b.WriteString(r.Message)

	keys := make([]string, 0, len(r.Fields))
	for key := range r.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, r.Fields[key])
	}
	return b.String()
}

// Filter selects records by device and minimum level.
type Filter struct {
	Device   string
	MinLevel slog.Level
}

// Match reports whether rec passes the filter.
func (f Filter) Match(rec Record) bool {
	if f.Device != "" && rec.Device != f.Device {
		return false
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(rec.Level)); err != nil {
		return true
	}
	return level >= f.MinLevel
}

func stringField(raw map[string]any, key string) string {
	if value, ok := raw[key].(string); ok {
		return value
	}
	return ""
}
