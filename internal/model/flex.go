package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/piptrade/botd/internal/apperr"
)

// The worker and older dashboard builds are sloppy about JSON types:
// numbers arrive as strings, booleans as 0/1, timestamps as RFC-3339 or
// epoch seconds. The Flex types absorb that at the boundary so everything
// past ingest is normalized.

// FlexFloat decodes a JSON number or a numeric string. String input goes
// through decimal so money values keep their full precision.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return apperr.Wrap(apperr.BadRequest, err, "invalid numeric string")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return apperr.Wrap(apperr.BadRequest, err, "invalid numeric string %q", s)
		}
		v, _ := d.Float64()
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return apperr.Wrap(apperr.BadRequest, err, "invalid number")
	}
	*f = FlexFloat(v)
	return nil
}

func (f FlexFloat) Float64() float64 { return float64(f) }
func (f FlexFloat) Int() int         { return int(f) }

// FlexBool decodes true/false, 0/1 and their string forms.
type FlexBool bool

func (fb *FlexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*fb = false
	case bytes.Equal(b, []byte("true")):
		*fb = true
	case bytes.Equal(b, []byte("false")):
		*fb = false
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return apperr.Wrap(apperr.BadRequest, err, "invalid boolean")
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "on":
			*fb = true
		default:
			*fb = false
		}
	default:
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			return apperr.Wrap(apperr.BadRequest, err, "invalid boolean")
		}
		*fb = v != 0
	}
	return nil
}

func (fb FlexBool) Bool() bool { return bool(fb) }

// FlexTime decodes an RFC-3339 string or epoch seconds (number or numeric
// string). The zero value means the field was absent.
type FlexTime struct {
	time.Time
}

func (ft *FlexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		ft.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return apperr.Wrap(apperr.BadRequest, err, "invalid timestamp")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			ft.Time = time.Time{}
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				ft.Time = t.UTC()
				return nil
			}
		}
		if epoch, err := strconv.ParseFloat(s, 64); err == nil {
			ft.Time = time.Unix(int64(epoch), 0).UTC()
			return nil
		}
		return apperr.New(apperr.BadRequest, "invalid timestamp %q", s)
	}
	var epoch float64
	if err := json.Unmarshal(b, &epoch); err != nil {
		return apperr.Wrap(apperr.BadRequest, err, "invalid timestamp")
	}
	ft.Time = time.Unix(int64(epoch), 0).UTC()
	return nil
}

// Or falls back to the given time when the field was absent.
func (ft FlexTime) Or(fallback time.Time) time.Time {
	if ft.IsZero() {
		return fallback.UTC()
	}
	return ft.Time
}

// FlexStrings decodes a JSON array of strings or a comma-separated string.
// Heartbeat `markets` arrives both ways.
type FlexStrings []string

func (fs *FlexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*fs = nil
		return nil
	}
	if b[0] == '[' {
		var raw []interface{}
		if err := json.Unmarshal(b, &raw); err != nil {
			return apperr.Wrap(apperr.BadRequest, err, "invalid string list")
		}
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		*fs = out
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return apperr.Wrap(apperr.BadRequest, err, "invalid string list")
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*fs = out
	return nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FormatUTC renders a timestamp the way every row stores it.
func FormatUTC(t time.Time) string { return t.UTC().Format(time.RFC3339) }
