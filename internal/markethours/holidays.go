package markethours

import "time"

// NYSE holidays for 2026.
// Format: month, day pairs.
var nyseHolidays2026 = []struct {
	month time.Month
	day   int
}{
	{time.January, 1},    // New Year's Day
	{time.January, 19},   // Martin Luther King Jr. Day
	{time.February, 16},  // Washington's Birthday
	{time.April, 3},      // Good Friday
	{time.May, 25},       // Memorial Day
	{time.June, 19},      // Juneteenth
	{time.July, 3},       // Independence Day (observed)
	{time.September, 7},  // Labor Day
	{time.November, 26},  // Thanksgiving
	{time.December, 25},  // Christmas
}

// pre-compute for fast lookup
var holidaySet map[string]bool

func init() {
	holidaySet = make(map[string]bool, len(nyseHolidays2026))
	for _, h := range nyseHolidays2026 {
		holidaySet[dateKey(2026, h.month, h.day)] = true
	}
}

// IsHoliday returns true if the date (in New York) is an NYSE holiday.
func IsHoliday(t time.Time) bool {
	ny := t.In(NewYork)
	return holidaySet[dateKey(ny.Year(), ny.Month(), ny.Day())]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, NewYork).Format("2006-01-02")
}
