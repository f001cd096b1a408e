// Command trackerctl runs administrative tasks against the ledger store:
// recurring catch-up, reports, predictions, budget status and CSV export.
package main

import "os"

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}
