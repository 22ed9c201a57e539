package recorder

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSchedule parses a comma-separated list of inclusive hour ranges
// into the set of scheduled hours-of-day. A range "a-b" with a > b wraps
// midnight (e.g. "22-6" => {22,23,0,...,6}). A bare hour with no dash is
// treated as a single-hour range.
func ParseSchedule(spec string) (map[int]struct{}, error) {
	hours := make(map[int]struct{})
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return hours, nil
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		a, b, err := parseRange(part)
		if err != nil {
			return nil, fmt.Errorf("schedule: %w", err)
		}
		if a <= b {
			for h := a; h <= b; h++ {
				hours[h] = struct{}{}
			}
		} else {
			for h := a; h <= 23; h++ {
				hours[h] = struct{}{}
			}
			for h := 0; h <= b; h++ {
				hours[h] = struct{}{}
			}
		}
	}
	return hours, nil
}

func parseRange(part string) (int, int, error) {
	if i := strings.IndexByte(part, '-'); i > 0 {
		a, err := strconv.Atoi(strings.TrimSpace(part[:i]))
		if err != nil {
			return 0, 0, err
		}
		b, err := strconv.Atoi(strings.TrimSpace(part[i+1:]))
		if err != nil {
			return 0, 0, err
		}
		if err := validHour(a); err != nil {
			return 0, 0, err
		}
		if err := validHour(b); err != nil {
			return 0, 0, err
		}
		return a, b, nil
	}
	h, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, err
	}
	if err := validHour(h); err != nil {
		return 0, 0, err
	}
	return h, h, nil
}

func validHour(h int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("hour %d out of range 0-23", h)
	}
	return nil
}

// InSchedule reports whether hour is a member of the parsed schedule set.
func InSchedule(hours map[int]struct{}, hour int) bool {
	_, ok := hours[hour]
	return ok
}
