package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CustomerID identifies a conversation. The front end sends it either as a
// JSON number or as a numeric string, so both are accepted. Anything that is
// not an integer in 1..MaxCustomerID decodes to 0 and is rejected by Validate.
type CustomerID uint

func (c *CustomerID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	var raw string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			*c = 0
			return nil
		}
	} else {
		raw = string(b)
	}
	*c = CustomerID(parseCustomerID(raw))
	return nil
}

// MaxCustomerID is the largest id every supported database can store and
// query back (a signed 64-bit column).
const MaxCustomerID = math.MaxInt64

// ParseCustomerID parses a path or query value. ok is false for anything
// other than an integer in 1..MaxCustomerID.
func ParseCustomerID(s string) (uint, bool) {
	v := parseCustomerID(s)
	return v, v > 0
}

func parseCustomerID(s string) uint {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 63)
	if err != nil {
		return 0
	}
	return uint(v)
}
