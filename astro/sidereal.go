package astro

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/observatory-remote/model"
)

// J2000 is the Julian Date of 2000-01-01 12:00 TT.
const J2000 = 2451545.0

// SiderealTime holds Greenwich and local mean sidereal time.
type SiderealTime struct {
	GMSTDeg   float64
	GMSTHours float64
	LSTDeg    float64
	LSTHours  float64
}

// JulianDate returns the Julian Date of t, including sub-second precision.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, minute, sec)
	return jd + float64(t.Nanosecond())/1e9/86400
}

// Sidereal computes GMST with the IAU low-precision polynomial and the local
// sidereal time for an east-positive longitude. Both are wrapped into [0,360).
func Sidereal(t time.Time, longitudeDeg float64) SiderealTime {
	jd := JulianDate(t)
	d := jd - J2000
	c := d / 36525
	gmst := 280.46061837 + 360.98564736629*d + 0.000387933*c*c - c*c*c/38710000
	gmst = model.WrapDegrees(gmst)
	lst := model.WrapDegrees(gmst + longitudeDeg)
	return SiderealTime{
		GMSTDeg:   gmst,
		GMSTHours: gmst / 15,
		LSTDeg:    lst,
		LSTHours:  lst / 15,
	}
}

// HourAngle returns (lst - ra) wrapped into [0,24) when inHours is set and
// [0,360) otherwise. Both arguments must use the same unit.
func HourAngle(lst, ra float64, inHours bool) float64 {
	if inHours {
		return model.WrapHours(lst - ra)
	}
	return model.WrapDegrees(lst - ra)
}
