package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "error", "failed":
		return "fail"
	case "canceled":
		return "cancelled"
	}
	return status
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"trace_id",
	"event_id",
	"event_type",
	"user_id",
	"chat_id",
	"handler",
	"endpoint",
	"method",
	"http_code",
	"attempt",
	"attempts",
	"max_attempts",
	"delay_ms",
	"duration_ms",
	"count",
	"last_event_id",
	"state",
	"err",
	"err_code",
	"err_kind",
	"retryable",
}
