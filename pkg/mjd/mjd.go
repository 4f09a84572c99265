// Package mjd converts between wall-clock time and Modified Julian Day
// (fractional day count) timestamps used for schedule arithmetic.
package mjd

import (
	"math"
	"time"
)

const (
	// UnixEpoch is the MJD of 1970-01-01T00:00:00Z.
	UnixEpoch = 40587.0

	SecondsPerDay = 86400.0
	MillisPerDay  = SecondsPerDay * 1e3
)

// FromTime returns the MJD of t.
func FromTime(t time.Time) float64 {
	t = t.UTC()
	return UnixEpoch + float64(t.Unix())/SecondsPerDay + float64(t.Nanosecond())/(SecondsPerDay*1e9)
}

// Now returns the current MJD.
func Now() float64 { return FromTime(time.Now()) }

// ToTime converts an MJD to UTC wall-clock time, rounded to the microsecond.
func ToTime(m float64) time.Time {
	days := m - UnixEpoch
	whole := math.Floor(days)
	sec := int64(whole) * int64(SecondsPerDay)
	frac := (days - whole) * SecondsPerDay
	usec := int64(math.Round(frac * 1e6))
	return time.Unix(sec, usec*int64(time.Microsecond)).UTC()
}

// Days converts a duration to a day fraction.
func Days(d time.Duration) float64 { return d.Seconds() / SecondsPerDay }

// Seconds converts a second count to a day fraction.
func Seconds(s float64) float64 { return s / SecondsPerDay }

// Millis converts a millisecond count to a day fraction.
func Millis(ms int64) float64 { return float64(ms) / MillisPerDay }

// Until returns the wall-clock duration from now to the MJD instant m.
func Until(m float64, now time.Time) time.Duration {
	return time.Duration((m - FromTime(now)) * SecondsPerDay * float64(time.Second))
}

// Split returns the integer day and the milliseconds past midnight of m.
func Split(m float64) (day int64, mpm int64) {
	day = int64(math.Floor(m))
	mpm = int64(math.Round((m - float64(day)) * MillisPerDay))
	if mpm >= int64(MillisPerDay) {
		day++
		mpm -= int64(MillisPerDay)
	}
	return day, mpm
}

// Join is the inverse of Split.
func Join(day, mpm int64) float64 {
	return float64(day) + float64(mpm)/MillisPerDay
}
