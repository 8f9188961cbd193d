package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Clock reports the current time, optionally in a named location.
type Clock struct {
	// now is swapped in tests for a fixed instant.
	now func() time.Time
}

// NewClock creates a clock tool reading the system time.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Name() string {
	return "clock"
}

func (c *Clock) Description() string {
	return "Get the current date and time, optionally in a specific IANA timezone."
}

func (c *Clock) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {
				"type": "string",
				"description": "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC."
			}
		}
	}`)
}

func (c *Clock) Execute(_ context.Context, args map[string]interface{}) (string, error) {
	loc := time.UTC
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		loc = parsed
	}
	return c.now().In(loc).Format(time.RFC3339), nil
}
