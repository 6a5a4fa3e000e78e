// Package callbacks encodes and parses button data of the form "key|payload".
package callbacks

import (
	"strconv"
	"strings"

	"github.com/m3rciful/vkbot/core/vkteams/events"
)

// Sep separates the routing key from the payload.
const Sep = "|"

// Encode joins key and payload parts. Without parts it returns key alone.
func Encode(key string, parts ...string) string {
	if len(parts) == 0 {
		return key
	}
	return key + Sep + strings.Join(parts, Sep)
}

// Parse splits data once into key and payload (may be empty).
func Parse(data string) (string, string) {
	key, payload, _ := strings.Cut(data, Sep)
	return strings.TrimSpace(key), payload
}

// Key returns the routing key of a button press, or "" for other events.
func Key(ev events.Event) string {
	cb, ok := ev.(*events.Callback)
	if !ok {
		return ""
	}
	k, _ := Parse(cb.CallbackData)
	return k
}

// Payload returns the part after the first separator.
func Payload(ev events.Event) string {
	cb, ok := ev.(*events.Callback)
	if !ok {
		return ""
	}
	_, p := Parse(cb.CallbackData)
	return p
}

// PayloadInt64 parses the payload as int64.
func PayloadInt64(ev events.Event) (int64, error) {
	return strconv.ParseInt(Payload(ev), 10, 64)
}

// PayloadInt parses the payload as int.
func PayloadInt(ev events.Event) (int, error) {
	return strconv.Atoi(Payload(ev))
}

// PayloadFloat64 parses the payload as float64.
func PayloadFloat64(ev events.Event) (float64, error) {
	return strconv.ParseFloat(Payload(ev), 64)
}

// PayloadParts splits the payload with sep.
func PayloadParts(ev events.Event, sep string) ([]string, error) {
	p := Payload(ev)
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p, sep), nil
}

// PayloadTwoInt64 parses payloads like "123|456".
func PayloadTwoInt64(ev events.Event, sep string) (int64, int64, error) {
	parts, err := PayloadParts(ev, sep)
	if err != nil {
		return 0, 0, err
	}
	if len(parts) != 2 {
		return 0, 0, strconv.ErrSyntax
	}
	a, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
