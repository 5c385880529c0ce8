// Command licenseiq is the royalty extraction and calculation CLI.
package main

import (
	"os"

	"github.com/turtacn/LicenseIQ-Royalty/internal/interfaces/cli"
)

func main() {
	// Execute already printed the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
