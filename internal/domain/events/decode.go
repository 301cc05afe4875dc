package events

import (
	"encoding/json"
	"fmt"
)

// DecodeData restores the typed payload of a known event type. Unknown types decode to a generic map.
func DecodeData(eventType string, raw json.RawMessage) (interface{}, error) {
	switch eventType {
	case TypeChargeCreated:
		return decodeAs[ChargeCreatedData](eventType, raw)
	case TypeResourceProvisioned:
		return decodeAs[ResourceProvisionedData](eventType, raw)
	case TypeProvisionFailed:
		return decodeAs[ProvisionFailedData](eventType, raw)
	case TypeLedgerWriteFailed:
		return decodeAs[LedgerWriteFailedData](eventType, raw)
	default:
		var data map[string]interface{}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
		return data, nil
	}
}

func decodeAs[T any](eventType string, raw json.RawMessage) (interface{}, error) {
	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s data: %w", eventType, err)
	}
	return data, nil
}
