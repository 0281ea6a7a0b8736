// Command tripctx assembles grounded prompts from trip documents and live trip data.
package main

import (
	"os"

	"github.com/tripsync/tripctx/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
