package orders

import "encoding/json"

// mergePayload accumulates source payloads as a shallow JSON merge, newest
// keys winning. Non-object payloads replace the accumulator wholesale.
func mergePayload(existing, incoming json.RawMessage) json.RawMessage {
	if len(existing) == 0 {
		return incoming
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(existing, &base); err != nil {
		return incoming
	}
	var add map[string]json.RawMessage
	if err := json.Unmarshal(incoming, &add); err != nil {
		return incoming
	}
	for k, v := range add {
		base[k] = v
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return incoming
	}
	return merged
}
