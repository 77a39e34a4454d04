package postgres

import (
	"encoding/json"
	"fmt"
)

// nullableJSON maps an empty document to SQL NULL
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// marshalJSONB encodes v for a JSONB column; nil pointers become NULL
func marshalJSONB(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jsonb column: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

// copyJSON detaches a scanned column from the driver's buffer
func copyJSON(data []byte) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
