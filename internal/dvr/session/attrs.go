package session

import (
	"fmt"
	"regexp"
	"strconv"
)

// parseUintAttr extracts a numeric XML attribute value by name from a
// flat reply fragment. The device's XML is short and predictable enough
// that regex extraction is preferred over a full parser, matching the
// protocol's own design notes on dynamic XML handling.
func parseUintAttr(body, name string) (uint32, error) {
	re := regexp.MustCompile(name + `="([0-9]+)"`)
	m := re.FindStringSubmatch(body)
	if m == nil {
		return 0, fmt.Errorf("missing %s attribute", name)
	}
	v, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s attribute: %w", name, err)
	}
	return uint32(v), nil
}
