package schema

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Millis is a Unix timestamp in milliseconds. It decodes from a JSON number,
// a numeric string or an RFC3339 string. Anything else decodes as zero.
type Millis int64

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(data []byte) error {
	*m = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*m = Millis(n)
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*m = Millis(t.UnixMilli())
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*m = Millis(int64(f))
	}
	return nil
}

// Time converts the timestamp to a time.Time in UTC.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

// Now returns the current time as Millis.
func Now() Millis {
	return Millis(time.Now().UnixMilli())
}

// Price is a free-text price. Numbers are accepted on decode and kept in
// their shortest decimal form.
type Price string

// PriceContactMe is the sentinel shown as "contact me for pricing".
const PriceContactMe Price = "contact"

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	text := scalarText(data)
	if d := bytes.TrimSpace(data); len(d) > 0 && d[0] != '"' {
		if n, err := decimal.NewFromString(text); err == nil {
			text = n.String()
		}
	}
	*p = Price(text)
	return nil
}

// Amount parses the price as a number, ignoring a leading "$". It reports
// false for the contact sentinel and other free text.
func (p Price) Amount() (decimal.Decimal, bool) {
	s := strings.TrimSpace(string(p))
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if s == "" {
		return decimal.Decimal{}, false
	}
	n, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return n, true
}

// IsContactMe reports whether the price is the contact sentinel.
func (p Price) IsContactMe() bool {
	return strings.EqualFold(strings.TrimSpace(string(p)), string(PriceContactMe))
}

// Tags is a set of free-form tag strings. On decode, strings are kept as-is,
// numbers and booleans are coerced to text, and nulls, objects and nested
// arrays are dropped. A bare string decodes as a single tag.
type Tags []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tags) UnmarshalJSON(data []byte) error {
	*t = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		if s := scalarText(data); s != "" {
			*t = Tags{s}
		}
		return nil
	case '[':
	default:
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make(Tags, 0, len(raw))
	for _, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || r[0] == '{' || r[0] == '[' || bytes.Equal(r, []byte("null")) {
			continue
		}
		if s := scalarText(r); s != "" {
			out = append(out, s)
		}
	}
	*t = out
	return nil
}

// scalarText renders a JSON string, number or boolean as plain text.
// Other values render as "".
func scalarText(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ""
		}
		return s
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return ""
		}
		return strconv.FormatBool(b)
	case 'n', '{', '[':
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return ""
	}
	return n.String()
}
