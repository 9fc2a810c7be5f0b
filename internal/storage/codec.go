package storage

import (
	"encoding/json"
	"fmt"
)

// marshalHandles encodes a handle list as the JSON array stored in the
// batches table. A nil slice encodes as an empty array.
func marshalHandles(handles []string) (string, error) {
	if handles == nil {
		handles = []string{}
	}
	data, err := json.Marshal(handles)
	if err != nil {
		return "", fmt.Errorf("failed to encode handles: %w", err)
	}
	return string(data), nil
}

// unmarshalHandles decodes a stored handle payload. An error here means the
// row is corrupt; callers treat the row as absent rather than failing the
// whole read.
func unmarshalHandles(data string) ([]string, error) {
	var handles []string
	if err := json.Unmarshal([]byte(data), &handles); err != nil {
		return nil, fmt.Errorf("failed to decode handles: %w", err)
	}
	return handles, nil
}
