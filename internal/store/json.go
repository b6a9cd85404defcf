package store

import (
	"encoding/json"
	"fmt"
)

// Logical keys and their owners. Only the owning package writes a key.
const (
	KeyGhostSession = "synapse_ghost_session"  // owner: session
	KeyAuthSession  = "synapse_auth_session"   // owner: session
	KeyLocalQueue   = "synapse_ghost_projects" // owner: submit
)

// GetJSON decodes the value at key into v.
// It returns false when the key is absent or the value cannot be read or parsed;
// the error distinguishes "absent" (nil) from "unreadable" (non-nil).
func GetJSON(s Storage, key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(s Storage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	return s.Set(key, string(raw))
}
