package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/observatory-remote/astro"
)

func newConvertCmd(_ *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert between sexagesimal text and decimal degrees",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "ra <value>",
			Short: "Convert a right ascension (degrees or HMS)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return convertAngle(cmd, args[0], astro.DegreesFromHMS, astro.HMSFromDegrees)
			},
		},
		&cobra.Command{
			Use:   "dec <value>",
			Short: "Convert a declination (degrees or DMS)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return convertAngle(cmd, args[0], astro.DegreesFromDMS, astro.DMSFromDegrees)
			},
		},
	)
	return cmd
}

// convertAngle formats a plain number as sexagesimal and parses anything
// else into degrees.
func convertAngle(cmd *cobra.Command, value string, parse func(string, bool) float64, format func(float64) string) error {
	out := cmd.OutOrStdout()
	if deg, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		fmt.Fprintln(out, format(deg))
		return nil
	}
	deg := parse(value, strings.Contains(value, ":"))
	fmt.Fprintln(out, strconv.FormatFloat(deg, 'f', 6, 64))
	return nil
}
