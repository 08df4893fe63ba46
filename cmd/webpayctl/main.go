// Command webpayctl signs and verifies Webpay SOAP envelopes and runs
// Webpay Plus operations from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
