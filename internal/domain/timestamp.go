package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire format of last_heard: local wall clock, millisecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000"

// minuteLayout is what a millisecond-trimmed writer produces when the
// sub-second part was zero ("2024-03-01 10:30:15" cut to "2024-03-01 10:30").
const minuteLayout = "2006-01-02 15:04"

// Timestamp is a time.Time that travels as TimestampLayout in JSON.
// The zero value encodes as an empty string.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to the precision of the wire format.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Millisecond)}
}

func (ts Timestamp) String() string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(TimestampLayout)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

// UnmarshalJSON accepts the wire layout (with or without fraction or seconds), RFC 3339, "" and null.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("last_heard must be a string: %w", err)
	}

	t, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*ts = t
	return nil
}

// ParseTimestamp parses a last_heard value.
func ParseTimestamp(raw string) (Timestamp, error) {
	if raw == "" {
		return Timestamp{}, nil
	}
	// the seconds layout also accepts an optional fractional part
	for _, layout := range []string{"2006-01-02 15:04:05", minuteLayout} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return NewTimestamp(t), nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return NewTimestamp(t), nil
	}
	return Timestamp{}, fmt.Errorf("invalid last_heard %q", raw)
}
