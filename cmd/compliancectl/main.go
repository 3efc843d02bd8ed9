// Command compliancectl is the operator CLI for the compliance core: ledger
// verification, audit trail export and development tokens.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
