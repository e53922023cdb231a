package model

import "testing"

func TestWrapDegrees(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{-15, 345},
		{725, 5},
		{359.5, 359.5},
	}
	for _, tc := range cases {
		if got := WrapDegrees(tc.in); got != tc.want {
			t.Errorf("WrapDegrees(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewEquatorialNormalises(t *testing.T) {
	c := NewEquatorial(-30, 95)
	if c.RightAscensionDeg != 330 {
		t.Fatalf("RightAscensionDeg = %v, want 330", c.RightAscensionDeg)
	}
	if c.DeclinationDeg != 90 {
		t.Fatalf("DeclinationDeg = %v, want 90", c.DeclinationDeg)
	}
	if got := c.RightAscensionHours(); got != 22 {
		t.Fatalf("RightAscensionHours() = %v, want 22", got)
	}
}
