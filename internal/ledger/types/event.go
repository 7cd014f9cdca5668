package types

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the fixed IN/OUT label a device stamps on every event it produces.
// Stored as the single-letter codes the attendance schema uses.
type Direction string

const (
	DirectionIn  Direction = "I"
	DirectionOut Direction = "O"
)

// ParseDirection accepts I, IN, O or OUT in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "I", "IN":
		return DirectionIn, nil
	case "O", "OUT":
		return DirectionOut, nil
	}
	return "", fmt.Errorf("invalid direction %q", s)
}

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	}
	return string(d)
}

// RawLogEvent is one access event as emitted by a terminal.  The time is kept as
// separate components, exactly as the device reports them, so invalid values survive
// until reconciliation.
type RawLogEvent struct {
	ID               int64 // store-assigned; 0 until persisted
	LogicalDevice    int
	PhysicalDevice   int
	EnrollmentNumber int
	VerifyMode       int

	Year, Month, Day     int
	Hour, Minute, Second int

	Direction  Direction
	Reconciled bool
}

// EventKey is the natural key of a RawLogEvent.
type EventKey struct {
	LogicalDevice    int
	EnrollmentNumber int
	Year, Month, Day int
	Hour, Minute     int
	Second           int
	Direction        Direction
}

func (e RawLogEvent) Key() EventKey {
	return EventKey{
		LogicalDevice:    e.LogicalDevice,
		EnrollmentNumber: e.EnrollmentNumber,
		Year:             e.Year,
		Month:            e.Month,
		Day:              e.Day,
		Hour:             e.Hour,
		Minute:           e.Minute,
		Second:           e.Second,
		Direction:        e.Direction,
	}
}

// Timestamp builds the wall-clock time of the event, carried in UTC since devices
// report zoneless local time.  Components that time.Date would silently normalise
// (month 13, second 61, Feb 30) are rejected instead.
func (e RawLogEvent) Timestamp() (time.Time, error) {
	t := time.Date(e.Year, time.Month(e.Month), e.Day, e.Hour, e.Minute, e.Second, 0, time.UTC)
	if t.Year() != e.Year || int(t.Month()) != e.Month || t.Day() != e.Day ||
		t.Hour() != e.Hour || t.Minute() != e.Minute || t.Second() != e.Second {
		return time.Time{}, fmt.Errorf("invalid event time %s", e.Stamp())
	}
	return t, nil
}

// Stamp renders the raw components without validating them.
func (e RawLogEvent) Stamp() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		e.Year, e.Month, e.Day, e.Hour, e.Minute, e.Second)
}
