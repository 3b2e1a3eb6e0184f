/*
Package devtools provides the read-only analytics layer over a bus's retained
history: filtering, search, grouping, aggregate stats and export. Nothing in
here mutates bus state except the explicit Clear passthrough.
*/
package devtools

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/arcfront/shellbus/internal/domain/bus"
)

// Sentinel labels used when a grouping dimension is absent on an event.
const (
	SourceUnknown      = "(unknown)"
	CorrelationUnknown = "(none)"
)

// Inspector exposes analytics over one bus's history.
type Inspector struct {
	bus *bus.Bus
}

func NewInspector(b *bus.Bus) *Inspector {
	return &Inspector{bus: b}
}

// Criteria narrows a history query. Zero-value fields are ignored; the set
// conditions are AND-combined.
type Criteria struct {
	// Types keeps entries whose event type is in the set.
	Types []string
	// Source matches the exact source label.
	Source string
	// Since / Until bound the emission timestamp, both ends inclusive.
	Since time.Time
	Until time.Time
	// CorrelationID matches the exact correlation id.
	CorrelationID string
	// Version matches the exact payload schema version.
	Version int
	// Match is an arbitrary extra predicate.
	Match func(bus.HistoryEntry) bool
}

func (c Criteria) accept(e bus.HistoryEntry) bool {
	if len(c.Types) > 0 && !slices.Contains(c.Types, e.Event.Type) {
		return false
	}
	if c.Source != "" && e.Event.Source != c.Source {
		return false
	}
	if !c.Since.IsZero() && e.Event.Timestamp < c.Since.UnixMilli() {
		return false
	}
	if !c.Until.IsZero() && e.Event.Timestamp > c.Until.UnixMilli() {
		return false
	}
	if c.CorrelationID != "" && e.Event.CorrelationID != c.CorrelationID {
		return false
	}
	if c.Version > 0 && e.Event.Version != c.Version {
		return false
	}
	if c.Match != nil && !c.Match(e) {
		return false
	}
	return true
}

// Filter returns the history entries matching every set criterion, newest
// first.
func (i *Inspector) Filter(c Criteria) []bus.HistoryEntry {
	var out []bus.HistoryEntry
	for _, e := range i.bus.History() {
		if c.accept(e) {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns the entries emitted within the trailing window.
func (i *Inspector) Recent(window time.Duration) []bus.HistoryEntry {
	return i.Filter(Criteria{Since: time.Now().Add(-window)})
}

// Search finds entries whose payload contains the query, case-insensitively.
// With a field name only that payload field is inspected; otherwise every
// string-valued field matches.
func (i *Inspector) Search(query, field string) []bus.HistoryEntry {
	q := strings.ToLower(query)
	return i.Filter(Criteria{Match: func(e bus.HistoryEntry) bool {
		return payloadMatch(e.Event.Payload, field, func(s string) bool {
			return strings.Contains(strings.ToLower(s), q)
		})
	}})
}

// SearchRegexp is Search with a compiled pattern instead of a substring.
func (i *Inspector) SearchRegexp(re *regexp.Regexp, field string) []bus.HistoryEntry {
	return i.Filter(Criteria{Match: func(e bus.HistoryEntry) bool {
		return payloadMatch(e.Event.Payload, field, re.MatchString)
	}})
}

// Stats summarizes the retained history.
type Stats struct {
	Total        int            `json:"total"`
	ByType       map[string]int `json:"by_type"`
	BySource     map[string]int `json:"by_source"`
	MostFrequent string         `json:"most_frequent,omitempty"`
	// EventsPerMinute is zero when fewer than two entries exist or the
	// observed time span is zero.
	EventsPerMinute float64 `json:"events_per_minute"`
}

// Stats computes aggregate counts over the full history.
func (i *Inspector) Stats() Stats {
	entries := i.bus.History()
	st := Stats{
		Total:    len(entries),
		ByType:   make(map[string]int),
		BySource: make(map[string]int),
	}

	var newest, oldest int64
	for idx, e := range entries {
		st.ByType[e.Event.Type]++
		src := e.Event.Source
		if src == "" {
			src = SourceUnknown
		}
		st.BySource[src]++
		if idx == 0 {
			newest = e.Event.Timestamp
		}
		oldest = e.Event.Timestamp
	}

	best := 0
	for typ, n := range st.ByType {
		if n > best || (n == best && typ < st.MostFrequent) {
			best = n
			st.MostFrequent = typ
		}
	}

	if span := newest - oldest; span > 0 && st.Total > 1 {
		st.EventsPerMinute = float64(st.Total) / float64(span) * 60_000
	}
	return st
}

// GroupKey selects the grouping dimension for GroupBy.
type GroupKey func(bus.HistoryEntry) string

func ByType(e bus.HistoryEntry) string { return e.Event.Type }

func BySource(e bus.HistoryEntry) string {
	if e.Event.Source == "" {
		return SourceUnknown
	}
	return e.Event.Source
}

func ByCorrelation(e bus.HistoryEntry) string {
	if e.Event.CorrelationID == "" {
		return CorrelationUnknown
	}
	return e.Event.CorrelationID
}

// GroupBy partitions the history by the given key. Entries inside each group
// stay newest-first.
func (i *Inspector) GroupBy(key GroupKey) map[string][]bus.HistoryEntry {
	groups := make(map[string][]bus.HistoryEntry)
	for _, e := range i.bus.History() {
		k := key(e)
		groups[k] = append(groups[k], e)
	}
	return groups
}

// ExportJSON renders the filtered history as indented JSON.
func (i *Inspector) ExportJSON(c Criteria) ([]byte, error) {
	entries := i.Filter(c)
	if entries == nil {
		entries = []bus.HistoryEntry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}

// Print writes a line-per-event rendering of the filtered history.
func (i *Inspector) Print(w io.Writer, c Criteria) error {
	for _, e := range i.Filter(c) {
		src := e.Event.Source
		if src == "" {
			src = SourceUnknown
		}
		_, err := fmt.Fprintf(w, "%s  %-24s v%-2d src=%-16s handlers=%d took=%s\n",
			e.Event.Time().Format("15:04:05.000"),
			e.Event.Type,
			e.Event.Version,
			src,
			e.HandlerCount,
			e.ProcessingTime,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Clear empties the underlying history buffer.
func (i *Inspector) Clear() {
	i.bus.ClearHistory()
}

// payloadMatch reports whether any inspected payload field satisfies match.
func payloadMatch(payload any, field string, match func(string) bool) bool {
	fields := payloadFields(payload)
	if field != "" {
		s, ok := fields[field]
		return ok && match(s)
	}
	for _, s := range fields {
		if match(s) {
			return true
		}
	}
	return false
}

// payloadFields flattens a payload into its string-valued fields. Structs
// are viewed through their JSON shape so searches hit the wire names users
// actually see. A bare string payload becomes a single unnamed field.
func payloadFields(payload any) map[string]string {
	out := make(map[string]string)
	switch p := payload.(type) {
	case nil:
	case string:
		out[""] = p
	case map[string]any:
		for k, v := range p {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return out
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				out[""] = s
			}
			return out
		}
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}
