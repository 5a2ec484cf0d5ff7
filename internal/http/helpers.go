package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"libreta/internal/core"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// parseMemberID extracts the savings book number from form or query values.
func parseMemberID(values url.Values) (int64, error) {
	raw := strings.TrimSpace(values.Get("member"))
	if raw == "" {
		return 0, fmt.Errorf("missing member id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid member id %q", raw)
	}
	return id, nil
}

// parseDateOrToday parses a YYYY-MM-DD form value, defaulting to today.
func parseDateOrToday(raw string) (core.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.Today(time.Now()), nil
	}
	return core.ParseDate(raw)
}

// parseAmount parses a decimal form value that may use comma separators.
func parseAmount(raw string) (float64, error) {
	return core.ParseDecimal(strings.TrimSpace(raw))
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// splitIDs parses a comma-separated id list form value.
func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// requestID returns the request id stored by the security middleware.
func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
