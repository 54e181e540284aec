package weekday

import "time"

// Day is a timezone-resolved calendar day of week.
type Day string

const (
	Sunday    Day = "SUNDAY"
	Monday    Day = "MONDAY"
	Tuesday   Day = "TUESDAY"
	Wednesday Day = "WEDNESDAY"
	Thursday  Day = "THURSDAY"
	Friday    Day = "FRIDAY"
	Saturday  Day = "SATURDAY"
)

var days = [7]Day{
	Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday,
}

// Resolve maps an instant to its day of week in the given timezone.
// The server's local timezone never plays a role here: the instant is
// converted to the requested location before the weekday is read.
// An unknown timezone name falls back to UTC, so the function is total.
func Resolve(t time.Time, timezone string) Day {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return days[int(t.In(loc).Weekday())]
}

// All returns the seven weekday tags, Sunday first.
func All() []Day {
	all := make([]Day, len(days))
	copy(all, days[:])
	return all
}

// Valid reports whether d is one of the seven weekday tags.
func Valid(d Day) bool {
	for _, day := range days {
		if d == day {
			return true
		}
	}
	return false
}
