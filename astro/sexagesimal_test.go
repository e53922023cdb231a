package astro

import (
	"math"
	"testing"
)

func TestDegreesFromHMS(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		colon bool
		want  float64
	}{
		{"units", "5h 35m 17.3s", false, 15 * (5 + 35.0/60 + 17.3/3600)},
		{"colon", "05:35:17.3", true, 15 * (5 + 35.0/60 + 17.3/3600)},
		{"missing seconds", "12h 30m", false, 187.5},
		{"missing minutes", "1h 30s", false, 15 * (1 + 30.0/3600)},
		{"non-numeric group", "xx:30:00", true, 7.5},
		{"empty", "", false, 0},
		{"unbounded", "25h 0m 0s", false, 375},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DegreesFromHMS(tc.text, tc.colon)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("DegreesFromHMS(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestDegreesFromDMS(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		colon bool
		want  float64
	}{
		{"negative symbols", "-05° 23′ 28″", false, -(5 + 23.0/60 + 28.0/3600)},
		{"ascii quotes", `+41° 16' 09"`, false, 41 + 16.0/60 + 9.0/3600},
		{"double apostrophe", "+41° 16' 09''", false, 41 + 16.0/60 + 9.0/3600},
		{"colon negative", "-00:30:00", true, -0.5},
		{"colon positive", "89:15:50.8", true, 89 + 15.0/60 + 50.8/3600},
		{"sign applies to magnitude", "-00° 30′", false, -0.5},
		{"missing groups", "12°", false, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DegreesFromDMS(tc.text, tc.colon)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("DegreesFromDMS(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestHMSRoundTrip(t *testing.T) {
	inputs := []string{"0h 0m 0s", "5h 35m 17s", "12h 0m 1s", "23h 59m 59s", "18h 36m 56s"}
	for _, in := range inputs {
		deg := DegreesFromHMS(in, false)
		back := DegreesFromHMS(HMSFromDegrees(deg), true)
		// 1 second of time is 15 arcseconds.
		if diff := math.Abs(back - deg); diff > 15.0/3600 {
			t.Errorf("round trip of %q drifted by %v degrees (%s)", in, diff, HMSFromDegrees(deg))
		}
	}
}

func TestDMSRoundTrip(t *testing.T) {
	inputs := []string{"+00° 00′ 00″", "-05° 23′ 28″", "+38° 47′ 01″", "-89° 59′ 59″", "+07° 24′ 25″"}
	for _, in := range inputs {
		deg := DegreesFromDMS(in, false)
		back := DegreesFromDMS(DMSFromDegrees(deg), false)
		if diff := math.Abs(back - deg); diff > 1.0/3600 {
			t.Errorf("round trip of %q drifted by %v degrees (%s)", in, diff, DMSFromDegrees(deg))
		}
	}
}

func TestFormattingRoundsAsymmetrically(t *testing.T) {
	// 10.9 seconds of time truncates to 10.
	hms := HMSFromDegrees(15 * 10.9 / 3600)
	if hms != "00:00:10" {
		t.Fatalf("HMSFromDegrees = %q, want 00:00:10", hms)
	}
	// 10.2 arcseconds rounds up to 11.
	dms := DMSFromDegrees(10.2 / 3600)
	if dms != "+00° 00' 11''" {
		t.Fatalf("DMSFromDegrees = %q, want +00° 00' 11''", dms)
	}
}

func TestDMSFromDegreesExactValues(t *testing.T) {
	cases := map[float64]string{
		-(5 + 23.0/60 + 28.0/3600): "-05° 23' 28''",
		45:                         "+45° 00' 00''",
		-0.5:                       "-00° 30' 00''",
	}
	for in, want := range cases {
		if got := DMSFromDegrees(in); got != want {
			t.Errorf("DMSFromDegrees(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestHMSFromDegreesWraps(t *testing.T) {
	if got := HMSFromDegrees(-15); got != "23:00:00" {
		t.Fatalf("HMSFromDegrees(-15) = %q, want 23:00:00", got)
	}
	if got := HMSFromDegrees(360); got != "00:00:00" {
		t.Fatalf("HMSFromDegrees(360) = %q, want 00:00:00", got)
	}
}

func TestParseEquatorialDetectsFormat(t *testing.T) {
	a := ParseEquatorial("05:35:17", "-05:23:28")
	b := ParseEquatorial("5h 35m 17s", "-05° 23′ 28″")
	if math.Abs(a.RightAscensionDeg-b.RightAscensionDeg) > 1e-9 || math.Abs(a.DeclinationDeg-b.DeclinationDeg) > 1e-9 {
		t.Fatalf("colon %+v and unit %+v forms disagree", a, b)
	}
	if a.DeclinationDeg >= 0 {
		t.Fatalf("declination sign lost: %+v", a)
	}
}
