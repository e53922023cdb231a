package model

import (
	"math"
	"time"
)

// EquatorialCoordinate is a sky position independent of the observer.
// RightAscensionDeg is kept in [0,360) and DeclinationDeg in [-90,90].
type EquatorialCoordinate struct {
	RightAscensionDeg float64 `json:"ra_deg"`
	DeclinationDeg    float64 `json:"dec_deg"`
}

// NewEquatorial builds a coordinate with RA wrapped into [0,360) and Dec
// clamped into [-90,90].
func NewEquatorial(raDeg, decDeg float64) EquatorialCoordinate {
	return EquatorialCoordinate{
		RightAscensionDeg: WrapDegrees(raDeg),
		DeclinationDeg:    math.Max(-90, math.Min(90, decDeg)),
	}
}

// RightAscensionHours returns RA expressed in hours.
func (c EquatorialCoordinate) RightAscensionHours() float64 {
	return c.RightAscensionDeg / 15
}

// HorizontalCoordinate is a sky position relative to one observer at one
// instant. It is always derived and never stored.
type HorizontalCoordinate struct {
	AltitudeDeg float64 `json:"alt_deg"`
	AzimuthDeg  float64 `json:"az_deg"`
}

// GeoLocation is the observer position on Earth. Longitude is positive east.
type GeoLocation struct {
	LatitudeDeg  float64 `json:"latitude_deg" mapstructure:"latitude"`
	LongitudeDeg float64 `json:"longitude_deg" mapstructure:"longitude"`
	ElevationM   float64 `json:"elevation_m" mapstructure:"elevation"`
}

// ObservationInstant pairs a UTC timestamp with an observer location.
type ObservationInstant struct {
	Time     time.Time
	Location GeoLocation
}

// UTC returns the instant normalised to UTC.
func (o ObservationInstant) UTC() time.Time {
	return o.Time.UTC()
}

// WrapDegrees maps any angle into [0,360).
func WrapDegrees(deg float64) float64 {
	return wrap(deg, 360)
}

// WrapHours maps any hour angle into [0,24).
func WrapHours(h float64) float64 {
	return wrap(h, 24)
}

func wrap(v, circle float64) float64 {
	v = math.Mod(v, circle)
	if v < 0 {
		v += circle
	}
	if v >= circle {
		v = 0
	}
	return v
}
