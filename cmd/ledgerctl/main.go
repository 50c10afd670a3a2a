// ledgerctl is the operator CLI for the credit ledger: bulk legacy-balance
// migration and per-user inspection, run directly against the database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
