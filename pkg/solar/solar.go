// Package solar gives the Sun's apparent altitude for a site, accurate to
// about 0.01 degree between 1950 and 2050. It is enough to tell day from
// night for settings switches; it is not a pointing ephemeris.
package solar

import (
	"math"
	"time"

	"lwaobs/pkg/mjd"
)

// Site is a geodetic position in degrees, east longitude positive.
type Site struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// OVRO is the Owens Valley LWA station.
var OVRO = Site{Lat: 37.2398, Lon: -118.282}

const j2000 = 51544.5 // MJD of 2000-01-01T12:00:00 TT, UT close enough here

// Position returns the Sun's right ascension and declination in degrees.
func Position(t time.Time) (ra, dec float64) {
	n := mjd.FromTime(t) - j2000
	l := norm360(280.460 + 0.9856474*n)
	g := rad(norm360(357.528 + 0.9856003*n))
	lambda := rad(l + 1.915*math.Sin(g) + 0.020*math.Sin(2*g))
	eps := rad(23.439 - 0.0000004*n)

	ra = norm360(deg(math.Atan2(math.Cos(eps)*math.Sin(lambda), math.Cos(lambda))))
	dec = deg(math.Asin(math.Sin(eps) * math.Sin(lambda)))
	return ra, dec
}

// Altitude returns the Sun's geometric altitude above the horizon at s, in
// degrees. Refraction is ignored.
func Altitude(t time.Time, s Site) float64 {
	ra, dec := Position(t)
	n := mjd.FromTime(t) - j2000
	gmst := norm360(280.46061837 + 360.98564736629*n)
	ha := rad(norm360(gmst + s.Lon - ra))

	lat, d := rad(s.Lat), rad(dec)
	return deg(math.Asin(math.Sin(lat)*math.Sin(d) + math.Cos(lat)*math.Cos(d)*math.Cos(ha)))
}

// Daytime reports whether the Sun is at or above threshold degrees.
func Daytime(t time.Time, s Site, threshold float64) bool {
	return Altitude(t, s) >= threshold
}

func norm360(x float64) float64 {
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	return x
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
