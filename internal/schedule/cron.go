package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSpec is a parsed five-field cron expression
// (minute hour day-of-month month day-of-week).
type CronSpec struct {
	minute fieldMask
	hour   fieldMask
	dom    fieldMask
	month  fieldMask
	dow    fieldMask
}

// fieldMask holds the allowed values of one field as a bitmask; the widest
// field (minute) needs 60 bits.
type fieldMask uint64

func (m fieldMask) has(v int) bool { return m&(1<<uint(v)) != 0 }

func ParseCronSpec(expr string) (CronSpec, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return CronSpec{}, fmt.Errorf("expected 5 fields")
	}

	minute, err := parseField(parts[0], 0, 59)
	if err != nil {
		return CronSpec{}, fmt.Errorf("minute: %w", err)
	}
	hour, err := parseField(parts[1], 0, 23)
	if err != nil {
		return CronSpec{}, fmt.Errorf("hour: %w", err)
	}
	dom, err := parseField(parts[2], 1, 31)
	if err != nil {
		return CronSpec{}, fmt.Errorf("day-of-month: %w", err)
	}
	month, err := parseField(parts[3], 1, 12)
	if err != nil {
		return CronSpec{}, fmt.Errorf("month: %w", err)
	}
	dow, err := parseField(parts[4], 0, 6)
	if err != nil {
		return CronSpec{}, fmt.Errorf("day-of-week: %w", err)
	}

	return CronSpec{minute: minute, hour: hour, dom: dom, month: month, dow: dow}, nil
}

func (s CronSpec) Matches(t time.Time) bool {
	return s.minute.has(t.Minute()) &&
		s.hour.has(t.Hour()) &&
		s.dom.has(t.Day()) &&
		s.month.has(int(t.Month())) &&
		s.dow.has(int(t.Weekday()))
}

func parseField(token string, min, max int) (fieldMask, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("empty field")
	}

	var mask fieldMask
	for _, part := range strings.Split(token, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return 0, fmt.Errorf("empty list element")
		}

		step := 1
		if i := strings.IndexByte(part, '/'); i >= 0 {
			var err error
			step, err = strconv.Atoi(part[i+1:])
			if err != nil || step <= 0 {
				return 0, fmt.Errorf("invalid step %q", part)
			}
			part = part[:i]
		}

		start, end := min, max
		switch {
		case part == "*":
			// full range
		case strings.Contains(part, "-"):
			ends := strings.SplitN(part, "-", 2)
			a, errA := strconv.Atoi(strings.TrimSpace(ends[0]))
			b, errB := strconv.Atoi(strings.TrimSpace(ends[1]))
			if errA != nil || errB != nil {
				return 0, fmt.Errorf("invalid range %q", part)
			}
			if a > b || a < min || b > max {
				return 0, fmt.Errorf("range out of bounds %q", part)
			}
			start, end = a, b
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", part)
			}
			if v < min || v > max {
				return 0, fmt.Errorf("value out of bounds %d", v)
			}
			start, end = v, v
		}

		for v := start; v <= end; v += step {
			mask |= 1 << uint(v)
		}
	}

	if mask == 0 {
		return 0, fmt.Errorf("no values")
	}
	return mask, nil
}
