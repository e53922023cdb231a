package astro

import (
	"math"
	"time"

	"github.com/signalsfoundry/observatory-remote/model"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// AltitudeQuery describes a target for Altitude. When HourAngleDeg is nil
// the hour angle is derived from RightAscensionDeg, At and LongitudeDeg.
type AltitudeQuery struct {
	LatitudeDeg    float64
	DeclinationDeg float64
	HourAngleDeg   *float64

	RightAscensionDeg float64
	At                time.Time
	LongitudeDeg      float64
}

// AltitudeResult carries the altitude plus the intermediate sine/cosine,
// which callers reuse for azimuth.
type AltitudeResult struct {
	AltitudeDeg float64
	SinAlt      float64
	CosAlt      float64
}

// Altitude evaluates sin(alt) = sinφ·sinδ + cosφ·cosδ·cosH.
func Altitude(q AltitudeQuery) AltitudeResult {
	var haDeg float64
	if q.HourAngleDeg != nil {
		haDeg = *q.HourAngleDeg
	} else {
		st := Sidereal(q.At, q.LongitudeDeg)
		haDeg = HourAngle(st.LSTDeg, q.RightAscensionDeg, false)
	}

	lat := q.LatitudeDeg * degToRad
	dec := q.DeclinationDeg * degToRad
	ha := haDeg * degToRad

	sinAlt := clampUnit(math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Cos(ha))
	alt := math.Asin(sinAlt)
	return AltitudeResult{
		AltitudeDeg: alt * radToDeg,
		SinAlt:      sinAlt,
		CosAlt:      math.Cos(alt),
	}
}

// EquatorialToHorizontal returns altitude and azimuth (north = 0°, east = 90°)
// of eq for an observer at loc at time t.
func EquatorialToHorizontal(eq model.EquatorialCoordinate, loc model.GeoLocation, t time.Time) model.HorizontalCoordinate {
	st := Sidereal(t, loc.LongitudeDeg)
	haDeg := HourAngle(st.LSTDeg, eq.RightAscensionDeg, false)
	alt := Altitude(AltitudeQuery{
		LatitudeDeg:    loc.LatitudeDeg,
		DeclinationDeg: eq.DeclinationDeg,
		HourAngleDeg:   &haDeg,
	})

	lat := loc.LatitudeDeg * degToRad
	dec := eq.DeclinationDeg * degToRad
	denom := alt.CosAlt * math.Cos(lat)

	var az float64
	if math.Abs(denom) > 1e-12 {
		az = math.Acos(clampUnit((math.Sin(dec) - alt.SinAlt*math.Sin(lat)) / denom))
	}
	if math.Sin(haDeg*degToRad) > 0 {
		az = 2*math.Pi - az
	}
	return model.HorizontalCoordinate{
		AltitudeDeg: alt.AltitudeDeg,
		AzimuthDeg:  model.WrapDegrees(az * radToDeg),
	}
}

// HorizontalToEquatorial inverts EquatorialToHorizontal for an observer at
// (latDeg, lonDeg) at time t.
func HorizontalToEquatorial(altDeg, azDeg, latDeg, lonDeg float64, t time.Time) model.EquatorialCoordinate {
	alt := altDeg * degToRad
	az := azDeg * degToRad
	lat := latDeg * degToRad

	sinDec := clampUnit(math.Sin(alt)*math.Sin(lat) + math.Cos(alt)*math.Cos(lat)*math.Cos(az))
	dec := math.Asin(sinDec)

	var ha float64
	if denom := math.Cos(lat) * math.Cos(dec); math.Abs(denom) > 1e-12 {
		ha = math.Acos(clampUnit((math.Sin(alt) - math.Sin(lat)*sinDec) / denom))
	}
	if math.Sin(az) > 0 {
		ha = 2*math.Pi - ha
	}

	st := Sidereal(t, lonDeg)
	return model.NewEquatorial(st.LSTDeg-ha*radToDeg, dec*radToDeg)
}

// clampUnit guards asin/acos against float overshoot near the poles.
func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
