// Command skyremote drives an imaging server: it converts coordinates,
// summarizes sequence trees, and runs capture flows against a simulated rig.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
