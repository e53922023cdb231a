package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/observatory-remote/astro"
	"github.com/signalsfoundry/observatory-remote/model"
)

func newSkyCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sky <ra> <dec>",
		Short: "Show where an equatorial target sits in the observer's sky",
		Long: `Show sidereal time, hour angle, altitude and azimuth for a target.

RA accepts "5h 34m 31.9s" or "05:34:31.9"; Dec accepts "+22° 00' 52''"
or "+22:00:52". The observer comes from --lat/--lon or the config file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseInstant(at)
			if err != nil {
				return err
			}
			eq := astro.ParseEquatorial(args[0], args[1])
			return printSky(cmd, eq, a.cfg.Observer, t)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "instant as RFC3339 (default now)")
	return cmd
}

func printSky(cmd *cobra.Command, eq model.EquatorialCoordinate, loc model.GeoLocation, t time.Time) error {
	st := astro.Sidereal(t, loc.LongitudeDeg)
	ha := astro.HourAngle(st.LSTHours, eq.RightAscensionHours(), true)
	hz := astro.EquatorialToHorizontal(eq, loc, t)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Instant:   %s\n", t.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Observer:  lat %.4f lon %.4f\n", loc.LatitudeDeg, loc.LongitudeDeg)
	fmt.Fprintf(out, "Target:    RA %s  Dec %s\n", astro.HMSFromDegrees(eq.RightAscensionDeg), astro.DMSFromDegrees(eq.DeclinationDeg))
	fmt.Fprintf(out, "GMST:      %s\n", astro.HMSFromDegrees(st.GMSTDeg))
	fmt.Fprintf(out, "LST:       %s\n", astro.HMSFromDegrees(st.LSTDeg))
	fmt.Fprintf(out, "Hour angle %.4fh\n", ha)
	fmt.Fprintf(out, "Altitude:  %.2f°\n", hz.AltitudeDeg)
	fmt.Fprintf(out, "Azimuth:   %.2f°\n", hz.AzimuthDeg)
	return nil
}

// parseInstant reads an RFC3339 timestamp; empty means now.
func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: %w", s, err)
	}
	return t.UTC(), nil
}
