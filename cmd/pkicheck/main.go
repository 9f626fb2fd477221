// Command pkicheck validates X.509 certificate chains and checks revocation
// status through CRL and OCSP.
package main

import "github.com/trustkit/pkicheck/cli"

func main() {
	cli.Execute()
}
