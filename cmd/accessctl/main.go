// Command accessctl is an operator tool for the access gate: it applies
// migrations, lists tiers, and evaluates capabilities for an identity.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(openServices).Execute(); err != nil {
		os.Exit(1)
	}
}
