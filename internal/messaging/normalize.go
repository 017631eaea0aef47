package messaging

import (
	"bytes"
	"encoding/json"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/concierge/internal/models"
)

// createdAtLayouts are tried in order when reading a legacy createdAt string.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
}

// Normalizer turns the legacy JSON messages column into ordered Messages.
type Normalizer struct {
	Location *time.Location
	Layout   string
	Now      func() time.Time
}

// NormalizeReport describes what a Normalize call discarded.
type NormalizeReport struct {
	Elements   int    // array length before filtering
	Dropped    int    // elements filtered out
	Unreadable string // non-empty when the whole value was discarded
}

// Lossy reports whether any stored data was discarded.
func (r NormalizeReport) Lossy() bool {
	return r.Dropped > 0 || r.Unreadable != ""
}

// NewNormalizer returns a Normalizer rendering timestamps in loc with layout.
func NewNormalizer(loc *time.Location, layout string) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	if layout == "" {
		layout = "15:04:05"
	}
	return &Normalizer{Location: loc, Layout: layout, Now: time.Now}
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// Render formats t for display.
func (n *Normalizer) Render(t time.Time) string {
	return t.In(n.Location).Format(n.Layout)
}

// Normalize parses raw, drops malformed entries, sorts the rest ascending by
// createdAt and backfills missing fields. It never fails: unreadable input
// yields an empty slice and a report saying why.
func (n *Normalizer) Normalize(raw []byte) ([]Message, NormalizeReport) {
	var report NormalizeReport
	elems, reason := decodeLegacy(raw)
	if reason != "" {
		report.Unreadable = reason
		return []Message{}, report
	}
	report.Elements = len(elems)

	out := make([]Message, 0, len(elems))
	for _, el := range elems {
		obj, ok := el.(map[string]interface{})
		if !ok {
			report.Dropped++
			continue
		}
		text, ok := obj["message"].(string)
		if !ok || strings.TrimSpace(text) == "" {
			report.Dropped++
			continue
		}
		out = append(out, n.fill(obj, text))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].sortKey().Before(out[j].sortKey())
	})
	return out, report
}

func (n *Normalizer) fill(obj map[string]interface{}, text string) Message {
	m := Message{Message: text}
	m.Sender, _ = obj["sender"].(string)

	if id := idString(obj["id"]); id != "" {
		m.ID = MessageID(id)
	} else {
		m.ID = MessageID(strconv.FormatInt(n.generateID(), 10))
	}

	if ts, ok := parseCreatedAt(obj["createdAt"]); ok {
		m.CreatedAt = &ts
	}

	if d, ok := obj["direction"].(string); ok && d != "" {
		m.Direction = d
	} else {
		m.Direction = models.DirectionFor(m.Sender)
	}
	if s, ok := obj["status"].(string); ok && s != "" {
		m.Status = s
	} else {
		m.Status = models.StatusSent
	}
	if ts, ok := obj["timestamp"].(string); ok && ts != "" {
		m.Timestamp = ts
	} else if m.CreatedAt != nil {
		m.Timestamp = n.Render(*m.CreatedAt)
	} else {
		m.Timestamp = n.Render(n.now())
	}
	return m
}

// generateID mirrors the legacy client scheme: milliseconds plus a random suffix.
func (n *Normalizer) generateID() int64 {
	return n.now().UnixMilli()*1000 + rand.Int64N(1000)
}

// decodeLegacy unwraps the stored value into a JSON array. A JSON string is
// parsed once more to handle double encoding. The returned reason is empty on
// success.
func decodeLegacy(raw []byte) ([]interface{}, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ""
	}

	v, err := decodeJSON(raw)
	if err != nil {
		return nil, "invalid json"
	}
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, ""
		}
		v, err = decodeJSON([]byte(s))
		if err != nil {
			return nil, "invalid json inside string"
		}
	}
	if v == nil {
		return nil, ""
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, "not an array"
	}
	return arr, ""
}

func decodeJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, &json.SyntaxError{Offset: dec.InputOffset()}
	}
	return v, nil
}

// idString renders a stored legacy id in canonical form. The read path and
// the status updater both go through it, so an id a client was served always
// matches the entry it came from. Ids of any other JSON type yield "".
func idString(v interface{}) string {
	switch id := v.(type) {
	case json.Number:
		return canonicalID(id.String())
	case string:
		return canonicalID(id)
	default:
		return ""
	}
}

func parseCreatedAt(v interface{}) (time.Time, bool) {
	switch ts := v.(type) {
	case string:
		ts = strings.TrimSpace(ts)
		if ts == "" {
			return time.Time{}, false
		}
		for _, layout := range createdAtLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				return t.UTC(), true
			}
		}
	case json.Number:
		if ms, err := ts.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	}
	return time.Time{}, false
}
