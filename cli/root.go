// Package cli implements the pkicheck command-line interface for certificate
// chain validation, chain building, and revocation inspection.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables (injected by the release pipeline)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pkicheck",
	Short: "X.509 certificate chain validation and revocation checking",
	Long: `pkicheck validates X.509 certificates: it assembles a chain from a leaf
certificate plus loose intermediates, validates it against a set of trust
anchors, and checks revocation status through CRL and OCSP.

Examples:
  # Validate a certificate against a root CA
  pkicheck verify server.crt --anchors root.pem --chain intermediate.pem

  # Validate with hostname and revocation checking
  pkicheck verify server.crt --anchors root.pem --hostname www.example.com \
      --check-revocation --revocation-policy ocsp-preferred

  # Show the chain pkicheck would build
  pkicheck chain server.crt --anchors root.pem --chain intermediate.pem

  # Inspect a CRL and look up a certificate in it
  pkicheck crl inspect ca.crl
  pkicheck crl check server.crt --crl ca.crl --issuer intermediate.pem`,
	Version:       fmt.Sprintf("%s (built: %s)", Version, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. It is the entry point used by cmd/pkicheck.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
