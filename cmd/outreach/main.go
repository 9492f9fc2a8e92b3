// Command outreach runs and drives outbound call campaigns.
package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/outreach/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "outreach: %v\n", err)
		os.Exit(1)
	}
}
