package tickets

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Ticket keeps every field exactly as it was written so reads return the same
// JSON values the caller stored.
type Ticket map[string]json.RawMessage

var (
	idKeys          = []string{"ticketID", "ticket_id", "id"}
	titleKeys       = []string{"title", "Summary", "summary"}
	descriptionKeys = []string{"description", "discussion", "Discussion"}
)

func (t Ticket) ID() string          { return t.first(idKeys) }
func (t Ticket) Title() string       { return t.first(titleKeys) }
func (t Ticket) Description() string { return t.first(descriptionKeys) }

// String returns the field as text. Non-string values are returned as raw JSON.
func (t Ticket) String(key string) string {
	raw, ok := t[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ""
	}
	return string(raw)
}

func (t Ticket) first(keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(t.String(k)); v != "" {
			return v
		}
	}
	return ""
}

// Clone copies the field map. Field values are shared.
func (t Ticket) Clone() Ticket {
	out := make(Ticket, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Encode serializes the ticket on one line without HTML escaping.
func (t Ticket) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]json.RawMessage(t)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Parse decodes a JSON object and compacts each field value.
func Parse(data []byte) (Ticket, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	t := make(Ticket, len(raw))
	for k, v := range raw {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return nil, err
		}
		t[k] = buf.Bytes()
	}
	return t, nil
}
