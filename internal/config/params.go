package config

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// StringMap is a map of task parameters. Scalar values (numbers, booleans)
// are accepted and kept in their textual form, so `restart: true` and
// `restart: "true"` decode the same.
type StringMap map[string]string

func (m *StringMap) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(StringMap, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var scalar any
		if err := json.Unmarshal(v, &scalar); err != nil {
			return fmt.Errorf("params.%s: %w", k, err)
		}
		switch x := scalar.(type) {
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(x)
		case nil:
			out[k] = ""
		default:
			return fmt.Errorf("params.%s: must be a scalar", k)
		}
	}
	*m = out
	return nil
}
