package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/observatory-remote/astro"
)

func newRadecCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "radec <alt> <az>",
		Short: "Convert altitude/azimuth in degrees to RA/Dec",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alt, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid altitude %q: %w", args[0], err)
			}
			az, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid azimuth %q: %w", args[1], err)
			}
			t, err := parseInstant(at)
			if err != nil {
				return err
			}

			loc := a.cfg.Observer
			eq := astro.HorizontalToEquatorial(alt, az, loc.LatitudeDeg, loc.LongitudeDeg, t)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "RA:  %s (%.4f°)\n", astro.HMSFromDegrees(eq.RightAscensionDeg), eq.RightAscensionDeg)
			fmt.Fprintf(out, "Dec: %s (%.4f°)\n", astro.DMSFromDegrees(eq.DeclinationDeg), eq.DeclinationDeg)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "instant as RFC3339 (default now)")
	return cmd
}
