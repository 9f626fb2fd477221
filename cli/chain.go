package cli

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trustkit/pkicheck/certvalidator"
)

var chainCmd = &cobra.Command{
	Use:   "chain <certificate>",
	Short: "Build and display the certification path for a certificate",
	Long: `Assemble the chain pkicheck would validate: leaf first, then each
issuing certificate up to a trust anchor or self-signed root.

Examples:
  pkicheck chain server.crt --anchors root.pem --chain intermediate.pem`,
	Args: cobra.ExactArgs(1),
	RunE: runChain,
}

var (
	chainAnchorFiles []string
	chainCertFiles   []string
	chainMaxLen      int
)

func init() {
	flags := chainCmd.Flags()
	flags.StringArrayVar(&chainAnchorFiles, "anchors", nil, "Trust anchor certificate file(s) (PEM or DER)")
	flags.StringArrayVar(&chainCertFiles, "chain", nil, "Candidate intermediate certificate file(s) (PEM or DER)")
	flags.IntVar(&chainMaxLen, "max-chain-length", certvalidator.DefaultMaxChainLength, "Maximum chain depth, leaf included")

	rootCmd.AddCommand(chainCmd)
}

func runChain(cmd *cobra.Command, args []string) error {
	leafs, err := loadCertificates(args[0])
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	leaf := leafs[0]
	candidates := leafs[1:]

	extra, err := loadCertificateList(chainCertFiles)
	if err != nil {
		return err
	}
	candidates = append(candidates, extra...)

	anchors, err := loadCertificateList(chainAnchorFiles)
	if err != nil {
		return err
	}

	chain, err := certvalidator.BuildChain(leaf, candidates, anchors, chainMaxLen, time.Now())
	if err != nil {
		var chainErr *certvalidator.ChainError
		if errors.As(err, &chainErr) && len(chainErr.Partial) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Partial chain:")
			printChain(cmd, chainErr.Partial)
		}
		return err
	}

	printChain(cmd, chain)
	return nil
}

func printChain(cmd *cobra.Command, chain []*x509.Certificate) {
	out := cmd.OutOrStdout()
	for i, cert := range chain {
		fmt.Fprintf(out, "%d: subject=%q issuer=%q serial=%s notAfter=%s\n",
			i, cert.Subject.String(), cert.Issuer.String(), cert.SerialNumber, cert.NotAfter.Format(time.RFC3339))
	}
}
