package core

import (
	"fmt"
	"strconv"
	"time"
)

// Month is a calendar month. Its string form is the YYYYMM key used for storage.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the calendar month containing t (in t's location).
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses a YYYYMM key.
func ParseMonth(s string) (Month, error) {
	if len(s) != 6 {
		return Month{}, fmt.Errorf("invalid month key %q", s)
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return Month{}, fmt.Errorf("invalid month key %q: %w", s, err)
	}
	m, err := strconv.Atoi(s[4:])
	if err != nil || m < 1 || m > 12 {
		return Month{}, fmt.Errorf("invalid month key %q", s)
	}
	return Month{Year: y, Month: time.Month(m)}, nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d%02d", m.Year, int(m.Month))
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

func (m Month) Before(o Month) bool {
	return m.index() < o.index()
}

func (m Month) After(o Month) bool {
	return m.index() > o.index()
}

func (m Month) index() int {
	return m.Year*12 + int(m.Month) - 1
}

// MarshalText lets Month be used as a JSON string and map key.
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
