package royalty

import "time"

// Season buckets a transaction date for seasonal adjustments.
type Season string

const (
	SeasonSpring  Season = "Spring"
	SeasonSummer  Season = "Summer"
	SeasonFall    Season = "Fall"
	SeasonHoliday Season = "Holiday"
	SeasonWinter  Season = "Winter"
)

// SeasonOf maps a date to its season: Mar-May Spring, Jun-Aug Summer,
// Sep-Nov Fall, Dec-Jan Holiday, Feb Winter.
func SeasonOf(t time.Time) Season {
	switch t.Month() {
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.September, time.October, time.November:
		return SeasonFall
	case time.December, time.January:
		return SeasonHoliday
	default:
		return SeasonWinter
	}
}
