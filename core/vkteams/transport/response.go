package transport

import (
	"encoding/json"
	"fmt"
)

// Response is a decoded Bot API JSON object with lazily decoded fields.
type Response map[string]json.RawMessage

// OK reports the value of the "ok" field. Responses without it count as ok.
func (r Response) OK() bool {
	raw, found := r["ok"]
	if !found {
		return true
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false
	}
	return ok
}

// Has reports whether key is present, including an explicit null.
func (r Response) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Decode unmarshals the field key into v.
func (r Response) Decode(key string, v any) error {
	raw, ok := r[key]
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrProtocol, key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrProtocol, key, err)
	}
	return nil
}

// String returns a string field or "".
func (r Response) String(key string) string {
	var s string
	if raw, ok := r[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// Into unmarshals the whole response object into v.
func (r Response) Into(v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
