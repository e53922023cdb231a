package sequence

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/observatory-remote/astro"
	"github.com/signalsfoundry/observatory-remote/model"
	"github.com/signalsfoundry/observatory-remote/timectrl"
)

var comparators = []string{"<", "<=", ">", ">=", "=", "!="}

var trackingModes = []string{"Sidereal", "Lunar", "Solar", "King", "Custom", "Stopped"}

// Engine renders progress text for sequence nodes. Altitude annotations
// are computed for the observer location at the engine clock's current
// instant.
type Engine struct {
	location model.GeoLocation
	clock    timectrl.Clock
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock used for live altitude.
func WithClock(c timectrl.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// NewEngine returns an engine for an observer at loc.
func NewEngine(loc model.GeoLocation, opts ...Option) *Engine {
	e := &Engine{location: loc, clock: timectrl.Wall{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Describe returns the progress text for n, or "" for kinds that carry no
// detail. Missing fields render as zero values.
func (e *Engine) Describe(n *Node) string {
	if n == nil {
		return ""
	}
	switch KindOf(n.Name) {
	case KindSmartExposure:
		exp, loop := n.Child("Take Exposure"), n.Child("Loop For Iterations")
		return fmt.Sprintf("Filter: %s, Exposures: %d/%d, Duration: %ss, Type: %s",
			n.Child("Switch Filter").Text("Filter", "Name"),
			loop.Int("CompletedIterations"), loop.Int("Iterations"),
			formatNumber(exp.Float("ExposureTime")), exp.Text("ImageType"))
	case KindTakeManyExposures:
		exp, loop := n.Child("Take Exposure"), n.Child("Loop For Iterations")
		return fmt.Sprintf("Exposures: %d/%d, Duration: %ss, Type: %s",
			loop.Int("CompletedIterations"), loop.Int("Iterations"),
			formatNumber(exp.Float("ExposureTime")), exp.Text("ImageType"))
	case KindTakeExposure:
		return fmt.Sprintf("Duration: %ss,  Type: %s", formatNumber(n.Float("ExposureTime")), n.Text("ImageType"))
	case KindCoolCamera:
		return fmt.Sprintf("Temperature: %s°C, Min. Duration: %smin", formatNumber(n.Float("Temperature")), formatNumber(n.Float("Duration")))
	case KindWarmCamera:
		return fmt.Sprintf("Min. Duration: %smin", formatNumber(n.Float("Duration")))
	case KindWaitForTimeSpan:
		return fmt.Sprintf("Wait: %ss", formatNumber(n.Float("Time")))
	case KindWaitForTime, KindLoopUntilTime:
		return "Until: " + clockTime(n)
	case KindMoonIllumination:
		return fmt.Sprintf("Illumination %s %s%%, Current: %s%%",
			comparator(n.Int("Comparator")),
			formatNumber(n.Float("UserMoonIllumination")),
			formatNumber(n.Float("CurrentMoonIllumination")))
	case KindSunAltitude:
		return fmt.Sprintf("Sun altitude %s %s°", comparator(dataComparator(n)), formatNumber(n.Float("Data", "Offset")))
	case KindAltitude:
		return fmt.Sprintf("Offset: %s°, %s, Current: %.2f°",
			formatNumber(n.Float("Data", "Offset")), comparator(dataComparator(n)), e.liveAltitude(n))
	case KindLoopForIterations:
		return fmt.Sprintf("Iterations: %d/%d", n.Int("CompletedIterations"), n.Int("Iterations"))
	case KindLoopForTimeSpan:
		return fmt.Sprintf("Duration: %smin", formatNumber(n.Float("Time")))
	case KindMeridianFlip:
		return "Time to flip: " + durationHMS(n.Float("TimeToMeridianFlip")*3600) + "s"
	case KindSwitchFilter:
		return "Filter: " + n.Text("Filter", "Name")
	case KindSetTracking:
		return "Tracking: " + trackingMode(n.Int("TrackingMode"))
	case KindMoveFocuser:
		return fmt.Sprintf("Position: %d", n.Int("Position"))
	case KindDitherAfterExposures:
		return fmt.Sprintf("After: %d exposures", n.Int("AfterExposures"))
	case KindSlewCenter:
		eq, ok := coordinates(n.attr("Coordinates"))
		if !ok {
			return ""
		}
		return fmt.Sprintf("RA: %s, Dec: %s", astro.HMSFromDegrees(eq.RightAscensionDeg), astro.DMSFromDegrees(eq.DeclinationDeg))
	case KindAnnotation, KindMessageBox:
		return n.Text("Text")
	default:
		return ""
	}
}

// liveAltitude is the target's altitude now, not at the scheduled time.
func (e *Engine) liveAltitude(n *Node) float64 {
	eq, _ := coordinates(n.attr("Data", "Coordinates"))
	return astro.Altitude(astro.AltitudeQuery{
		LatitudeDeg:       e.location.LatitudeDeg,
		DeclinationDeg:    eq.DeclinationDeg,
		RightAscensionDeg: eq.RightAscensionDeg,
		At:                e.clock.Now(),
		LongitudeDeg:      e.location.LongitudeDeg,
	}).AltitudeDeg
}

func (n *Node) attr(path ...string) any {
	v, _ := n.Value(path...)
	return v
}

func dataComparator(n *Node) int {
	if _, ok := n.Value("Data", "Comparator"); ok {
		return n.Int("Data", "Comparator")
	}
	return n.Int("Comparator")
}

func comparator(op int) string {
	if op < 0 || op >= len(comparators) {
		return "?"
	}
	return comparators[op]
}

func trackingMode(mode int) string {
	if mode < 0 || mode >= len(trackingModes) {
		return "Unknown"
	}
	return trackingModes[mode]
}

// clockTime renders Hours:Minutes:Seconds with MinutesOffset folded into
// the minutes, wrapped to one day.
func clockTime(n *Node) string {
	secs := n.Float("Hours")*3600 + (n.Float("Minutes")+n.Float("MinutesOffset"))*60 + n.Float("Seconds")
	secs = math.Mod(secs, 86400)
	if secs < 0 {
		secs += 86400
	}
	return durationHMS(secs)
}

// durationHMS formats non-negative seconds as HH:MM:SS, truncating
// fractions. Hours are not wrapped.
func durationHMS(secs float64) string {
	if secs < 0 || math.IsNaN(secs) {
		secs = 0
	}
	total := int64(secs)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}

// coordinates extracts an equatorial position from the shapes the server
// uses for target coordinates: a nested Coordinates object with RA in hours
// or RADegrees, or split RAHours/RAMinutes/RASeconds and DecDegrees/
// DecMinutes/DecSeconds fields with a NegativeDec flag.
func coordinates(v any) (model.EquatorialCoordinate, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return model.EquatorialCoordinate{}, false
	}
	if inner, ok := m["Coordinates"].(map[string]any); ok {
		if eq, ok := coordinates(inner); ok {
			return eq, true
		}
	}
	if ra, ok := m["RADegrees"]; ok {
		return model.NewEquatorial(toFloat(ra), toFloat(m["Dec"])), true
	}
	if ra, ok := m["RA"]; ok {
		return model.NewEquatorial(toFloat(ra)*15, toFloat(m["Dec"])), true
	}
	if _, ok := m["RAHours"]; ok {
		raHours := toFloat(m["RAHours"]) + toFloat(m["RAMinutes"])/60 + toFloat(m["RASeconds"])/3600
		dec := math.Abs(toFloat(m["DecDegrees"])) + toFloat(m["DecMinutes"])/60 + toFloat(m["DecSeconds"])/3600
		if neg, _ := m["NegativeDec"].(bool); neg || toFloat(m["DecDegrees"]) < 0 {
			dec = -dec
		}
		return model.NewEquatorial(raHours*15, dec), true
	}
	return model.EquatorialCoordinate{}, false
}
