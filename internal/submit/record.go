package submit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Reserved keys of the flattened record shape { id, ...payload, createdAt }.
const (
	fieldID        = "id"
	fieldCreatedAt = "createdAt"
	fieldNamespace = "ghostId"
)

// EntityRecord is a created entity as returned to callers. Local records live
// in the ghost queue; remote records mirror the API response.
type EntityRecord struct {
	ID        string
	Payload   map[string]any
	CreatedAt time.Time
	// Namespace is the ghost tag the record was created under. Empty for
	// remote records and for records written while unauthenticated.
	Namespace string
	Local     bool
}

// MarshalJSON flattens the record into { id, ...payload, createdAt }.
// Payload keys that collide with the reserved keys are overridden.
func (r EntityRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Payload)+3)
	for k, v := range r.Payload {
		flat[k] = v
	}
	flat[fieldID] = r.ID
	if !r.CreatedAt.IsZero() {
		flat[fieldCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.Namespace != "" {
		flat[fieldNamespace] = r.Namespace
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON. Local is not part of the wire shape and
// is left for the caller to set.
func (r *EntityRecord) UnmarshalJSON(b []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	if flat == nil {
		return fmt.Errorf("entity record is not an object")
	}

	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}

	rec := EntityRecord{ID: decodeID(head.ID)}
	if ts, ok := flat[fieldCreatedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.CreatedAt = t
		}
	}
	if ns, ok := flat[fieldNamespace].(string); ok {
		rec.Namespace = ns
	}
	delete(flat, fieldID)
	delete(flat, fieldCreatedAt)
	delete(flat, fieldNamespace)
	rec.Payload = flat

	*r = rec
	return nil
}

// decodeID accepts string and numeric ids. Numbers keep their literal digits
// so integer ids beyond float64 precision survive.
func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	}
	return ""
}

// normalizePayload converts any JSON-object-shaped value into a map.
func normalizePayload(payload any) (map[string]any, error) {
	if m, ok := payload.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return out, nil
}
