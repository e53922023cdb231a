package astro

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/signalsfoundry/observatory-remote/model"
)

// roundingEpsilon absorbs float noise (in seconds) before floor/ceil so that
// exact inputs format back to themselves.
const roundingEpsilon = 1e-6

var sexagesimalToken = regexp.MustCompile(`(\d+(?:\.\d*)?|\.\d+)\s*(''|″|"|′|'|°|[hHmMsSdD])?`)

var (
	hmsUnits = map[string]int{
		"h": 0, "H": 0,
		"m": 1, "M": 1, "′": 1, "'": 1,
		"s": 2, "S": 2, "″": 2, `"`: 2, "''": 2,
	}
	dmsUnits = map[string]int{
		"°": 0, "d": 0, "D": 0,
		"′": 1, "'": 1, "m": 1, "M": 1,
		"″": 2, `"`: 2, "''": 2, "s": 2, "S": 2,
	}
)

// DegreesFromHMS parses "<h>h <m>m <s>s" (or "<h>:<m>:<s>" when colon is
// set) into degrees: 15*(h + m/60 + s/3600). Missing or non-numeric groups
// count as zero. The result is not wrapped to 360.
func DegreesFromHMS(text string, colon bool) float64 {
	parts := splitSexagesimal(stripSign(text), colon, hmsUnits)
	return 15 * (parts[0] + parts[1]/60 + parts[2]/3600)
}

// DegreesFromDMS parses an optionally signed "<d>° <m>′ <s>″" (or
// "<d>:<m>:<s>" when colon is set). The sign applies to the whole magnitude.
func DegreesFromDMS(text string, colon bool) float64 {
	trimmed := strings.TrimSpace(text)
	sign := 1.0
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "−") {
		sign = -1
	}
	parts := splitSexagesimal(stripSign(trimmed), colon, dmsUnits)
	return sign * (parts[0] + parts[1]/60 + parts[2]/3600)
}

// HMSFromDegrees formats degrees as "HH:MM:SS". Seconds are truncated.
func HMSFromDegrees(deg float64) string {
	hours := model.WrapDegrees(deg) / 15
	h := math.Floor(hours)
	minutes := (hours - h) * 60
	m := math.Floor(minutes)
	s := math.Floor((minutes-m)*60 + roundingEpsilon)
	if s >= 60 {
		s -= 60
		m++
	}
	if m >= 60 {
		m -= 60
		h++
	}
	if h >= 24 {
		h -= 24
	}
	return fmt.Sprintf("%02d:%02d:%02d", int(h), int(m), int(s))
}

// DMSFromDegrees formats degrees as "±DD° MM' SS''". Seconds are rounded up,
// unlike HMSFromDegrees; downstream consumers compare against this exact
// output.
func DMSFromDegrees(deg float64) string {
	sign := "+"
	if deg < 0 {
		sign = "-"
	}
	a := math.Abs(deg)
	d := math.Floor(a)
	minutes := (a - d) * 60
	m := math.Floor(minutes)
	s := math.Ceil((minutes-m)*60 - roundingEpsilon)
	if s < 0 {
		s = 0
	}
	if s >= 60 {
		s -= 60
		m++
	}
	if m >= 60 {
		m -= 60
		d++
	}
	return fmt.Sprintf("%s%02d° %02d' %02d''", sign, int(d), int(m), int(s))
}

// ParseEquatorial parses RA and Dec strings as reported by the server,
// choosing the colon form when the string contains a colon, and returns a
// normalised coordinate.
func ParseEquatorial(ra, dec string) model.EquatorialCoordinate {
	return model.NewEquatorial(
		DegreesFromHMS(ra, strings.Contains(ra, ":")),
		DegreesFromDMS(dec, strings.Contains(dec, ":")),
	)
}

func stripSign(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "−")
	return strings.TrimLeft(text, "+-")
}

func splitSexagesimal(text string, colon bool, units map[string]int) [3]float64 {
	var out [3]float64
	if colon {
		for i, field := range strings.SplitN(text, ":", 3) {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				continue
			}
			out[i] = v
		}
		return out
	}

	next := 0
	for _, match := range sexagesimalToken.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		slot, ok := units[match[2]]
		if !ok {
			// Bare number: take the next positional slot.
			slot = next
		}
		if slot > 2 {
			break
		}
		out[slot] = v
		next = slot + 1
	}
	return out
}
