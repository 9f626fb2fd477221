package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trustkit/pkicheck/certvalidator"
)

var crlCmd = &cobra.Command{
	Use:   "crl",
	Short: "Inspect certificate revocation lists",
}

var crlInspectCmd = &cobra.Command{
	Use:   "inspect <crl-file>",
	Short: "Decode a CRL and print its header and entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runCRLInspect,
}

var crlCheckCmd = &cobra.Command{
	Use:   "check <certificate>",
	Short: "Check whether a certificate is revoked by a CRL",
	Long: `Validate a CRL against its issuer and look the certificate's serial
number up in it.

Examples:
  pkicheck crl check server.crt --crl ca.crl --issuer intermediate.pem`,
	Args: cobra.ExactArgs(1),
	RunE: runCRLCheck,
}

var (
	crlCheckFile  string
	crlIssuerFile string
	crlCheckAt    string
)

func init() {
	flags := crlCheckCmd.Flags()
	flags.StringVar(&crlCheckFile, "crl", "", "CRL file (PEM or DER)")
	flags.StringVar(&crlIssuerFile, "issuer", "", "Issuer certificate file (PEM or DER)")
	flags.StringVar(&crlCheckAt, "at", "", "Evaluation time (RFC 3339), defaults to now")
	_ = crlCheckCmd.MarkFlagRequired("crl")
	_ = crlCheckCmd.MarkFlagRequired("issuer")

	crlCmd.AddCommand(crlInspectCmd)
	crlCmd.AddCommand(crlCheckCmd)
	rootCmd.AddCommand(crlCmd)
}

func runCRLInspect(cmd *cobra.Command, args []string) error {
	crl, err := loadCRL(args[0])
	if err != nil {
		return fmt.Errorf("failed to load CRL: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Issuer:      %s\n", crl.Issuer.String())
	fmt.Fprintf(out, "ThisUpdate:  %s\n", crl.ThisUpdate.Format(time.RFC3339))
	if !crl.NextUpdate.IsZero() {
		fmt.Fprintf(out, "NextUpdate:  %s\n", crl.NextUpdate.Format(time.RFC3339))
	}
	if number := certvalidator.CRLNumberOf(crl); number != nil {
		fmt.Fprintf(out, "Number:      %s\n", number)
	}
	fmt.Fprintf(out, "Entries:     %d\n", len(crl.RevokedCertificateEntries))
	for _, entry := range crl.RevokedCertificateEntries {
		fmt.Fprintf(out, "  serial=%s revoked=%s reason=%s\n",
			entry.SerialNumber, entry.RevocationTime.Format(time.RFC3339),
			certvalidator.CRLReason(entry.ReasonCode))
	}
	return nil
}

func runCRLCheck(cmd *cobra.Command, args []string) error {
	certs, err := loadCertificates(args[0])
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	cert := certs[0]

	crl, err := loadCRL(crlCheckFile)
	if err != nil {
		return fmt.Errorf("failed to load CRL: %w", err)
	}

	issuers, err := loadCertificates(crlIssuerFile)
	if err != nil {
		return fmt.Errorf("failed to load issuer certificate: %w", err)
	}

	now := time.Now()
	if crlCheckAt != "" {
		now, err = time.Parse(time.RFC3339, crlCheckAt)
		if err != nil {
			return fmt.Errorf("invalid --at value: %w", err)
		}
	}

	result := certvalidator.NewValidationResult()
	conclusive, revoked := certvalidator.CheckRevocationViaCRL(cert, crl, issuers[0], now, result)

	printResult(cmd, args[0], result)
	switch {
	case !conclusive:
		return fmt.Errorf("CRL check for %s was inconclusive", args[0])
	case revoked:
		return fmt.Errorf("certificate %s is revoked", args[0])
	default:
		return nil
	}
}
