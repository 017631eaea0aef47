package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexID accepts a JSON number or string. Clients send message ids both ways.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a number or string")
	}
	*f = flexID(n.String())
	return nil
}

// uint parses the id as a positive integer.
func (f flexID) uint() (uint, bool) {
	n, err := strconv.ParseUint(string(f), 10, 0)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// parseID parses a positive path id.
func parseID(raw string) (uint, bool) {
	return flexID(strings.TrimSpace(raw)).uint()
}
