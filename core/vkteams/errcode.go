package vkteams

import (
	"errors"
	"reflect"
	"strings"

	"github.com/m3rciful/vkbot/core/vkteams/transport"
)

// deriveErrorCode produces the err_code log attribute.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	switch {
	case errors.Is(err, ErrRejected):
		return "REJECTED"
	case errors.Is(err, transport.ErrProtocol):
		return "PROTOCOL_ERROR"
	}
	if kind := transport.Classify(err); kind != transport.KindUnknown && kind != "" {
		return strings.ToUpper(string(kind)) + "_ERROR"
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}
