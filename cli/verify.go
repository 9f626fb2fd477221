package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trustkit/pkicheck/certvalidator"
	"github.com/trustkit/pkicheck/certvalidator/fetchers"
	"github.com/trustkit/pkicheck/config"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <certificate>",
	Short: "Validate a certificate chain and optionally its revocation status",
	Long: `Validate a certificate: assemble a chain from the leaf plus any
intermediates, validate it against the trust anchors, and optionally check
revocation through CRL and OCSP.

Examples:
  # Basic chain validation
  pkicheck verify server.crt --anchors root.pem --chain intermediate.pem

  # TLS server certificate with hostname check
  pkicheck verify server.crt --anchors root.pem --hostname www.example.com \
      --eku server-auth

  # Revocation checking, hard-fail when no status can be obtained
  pkicheck verify server.crt --anchors root.pem --check-revocation \
      --revocation-policy hard-fail

  # Everything from a YAML configuration
  pkicheck verify server.crt --config validation.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var (
	verifyAnchorFiles []string
	verifyChainFiles  []string
	verifyConfigFile  string
	verifyHostname    string
	verifyKeyUsage    []string
	verifyEKU         []string
	verifyPolicies    []string
	verifyRevocation  bool
	verifyRevPolicy   string
	verifyAt          string
	verifyAllowSelf   bool
	verifyMaxChainLen int
	verifyHTTPTimeout time.Duration
	verifyJSON        bool
)

func init() {
	flags := verifyCmd.Flags()
	flags.StringArrayVar(&verifyAnchorFiles, "anchors", nil, "Trust anchor certificate file(s) (PEM or DER)")
	flags.StringArrayVar(&verifyChainFiles, "chain", nil, "Intermediate certificate file(s) (PEM or DER)")
	flags.StringVar(&verifyConfigFile, "config", "", "YAML validation configuration file")
	flags.StringVar(&verifyHostname, "hostname", "", "Hostname the leaf must be valid for")
	flags.StringArrayVar(&verifyKeyUsage, "key-usage", nil, "Required key usage flag(s), e.g. digital-signature")
	flags.StringArrayVar(&verifyEKU, "eku", nil, "Required extended key usage flag(s), e.g. server-auth")
	flags.StringArrayVar(&verifyPolicies, "policy", nil, "Required certificate policy OID(s)")
	flags.BoolVar(&verifyRevocation, "check-revocation", false, "Check revocation status through CRL/OCSP")
	flags.StringVar(&verifyRevPolicy, "revocation-policy", "ocsp-preferred", "Revocation policy (disabled, soft-fail, hard-fail, crl-only, ocsp-only, ocsp-preferred, crl-preferred)")
	flags.StringVar(&verifyAt, "at", "", "Validation time (RFC 3339), defaults to now")
	flags.BoolVar(&verifyAllowSelf, "allow-self-signed", false, "Accept a self-signed leaf without an issuer")
	flags.IntVar(&verifyMaxChainLen, "max-chain-length", certvalidator.DefaultMaxChainLength, "Maximum chain depth, leaf included")
	flags.DurationVar(&verifyHTTPTimeout, "http-timeout", 30*time.Second, "Timeout for CRL and OCSP fetches")
	flags.BoolVar(&verifyJSON, "json", false, "Output the result in JSON format")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	leafPath := args[0]

	opts := certvalidator.DefaultValidationOptions()
	anchorFiles := verifyAnchorFiles
	chainFiles := verifyChainFiles

	if verifyConfigFile != "" {
		cfg, err := config.LoadConfig(verifyConfigFile)
		if err != nil {
			return err
		}
		if err := applyConfig(cfg, opts); err != nil {
			return err
		}
		anchorFiles = append(anchorFiles, cfg.TrustAnchors...)
		chainFiles = append(chainFiles, cfg.OtherCerts...)
	}

	if err := applyVerifyFlags(cmd, opts); err != nil {
		return err
	}

	leafs, err := loadCertificates(leafPath)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	leaf := leafs[0]
	// Extra certificates bundled with the leaf serve as intermediates.
	intermediates := leafs[1:]

	for _, path := range chainFiles {
		certs, err := loadCertificates(path)
		if err != nil {
			return fmt.Errorf("failed to load intermediate %s: %w", path, err)
		}
		intermediates = append(intermediates, certs...)
	}

	anchors, err := loadCertificateList(anchorFiles)
	if err != nil {
		return err
	}

	fetcher := fetchers.NewFetcher(&fetchers.FetcherConfig{Timeout: verifyHTTPTimeout})
	vc := certvalidator.NewValidationContext(anchors, fetcher, opts.RevocationPolicy)

	result := vc.Validate(context.Background(), leaf, intermediates, opts)

	if verifyJSON {
		return printResultJSON(cmd, leafPath, result)
	}
	printResult(cmd, leafPath, result)
	if !result.IsValid() {
		return fmt.Errorf("certificate %s failed validation", leafPath)
	}
	return nil
}

// applyVerifyFlags folds explicit command-line flags into opts, overriding
// whatever a configuration file set.
func applyVerifyFlags(cmd *cobra.Command, opts *certvalidator.ValidationOptions) error {
	if verifyHostname != "" {
		opts.ExpectedHostname = verifyHostname
	}
	if len(verifyKeyUsage) > 0 {
		ku, err := parseKeyUsageFlags(verifyKeyUsage)
		if err != nil {
			return err
		}
		opts.ExpectedKeyUsage = ku
	}
	if len(verifyEKU) > 0 {
		ekus, err := parseEKUFlags(verifyEKU)
		if err != nil {
			return err
		}
		opts.ExpectedEKU = ekus
	}
	if len(verifyPolicies) > 0 {
		oids, err := config.ProcessOIDs(verifyPolicies)
		if err != nil {
			return err
		}
		opts.ExpectedPolicies = oids
	}
	if cmd.Flags().Changed("check-revocation") {
		opts.CheckRevocation = verifyRevocation
	}
	if cmd.Flags().Changed("revocation-policy") {
		policy, err := certvalidator.ParseRevocationPolicy(verifyRevPolicy)
		if err != nil {
			return err
		}
		opts.RevocationPolicy = policy
	}
	if cmd.Flags().Changed("allow-self-signed") {
		opts.AllowSelfSigned = verifyAllowSelf
	}
	if cmd.Flags().Changed("max-chain-length") {
		opts.MaxChainLength = verifyMaxChainLen
	}
	if verifyAt != "" {
		at, err := time.Parse(time.RFC3339, verifyAt)
		if err != nil {
			return fmt.Errorf("invalid --at value: %w", err)
		}
		opts.ValidationTime = at
	}
	return nil
}

// applyConfig maps a YAML validation configuration onto options.
func applyConfig(cfg *config.ValidationConfig, opts *certvalidator.ValidationOptions) error {
	if cfg.ValidateChain != nil {
		opts.ValidateChain = *cfg.ValidateChain
	}
	if cfg.RequireCompleteChain != nil {
		opts.RequireCompleteChain = *cfg.RequireCompleteChain
	}
	opts.AllowSelfSigned = cfg.AllowSelfSigned
	if cfg.MaxChainLength > 0 {
		opts.MaxChainLength = cfg.MaxChainLength
	}
	if cfg.ExpectedHostname != "" {
		opts.ExpectedHostname = cfg.ExpectedHostname
	}
	if len(cfg.ExpectedKeyUsage) > 0 {
		ku, err := parseKeyUsageFlags(cfg.ExpectedKeyUsage)
		if err != nil {
			return err
		}
		opts.ExpectedKeyUsage = ku
	}
	if len(cfg.ExpectedEKU) > 0 {
		ekus, err := parseEKUFlags(cfg.ExpectedEKU)
		if err != nil {
			return err
		}
		opts.ExpectedEKU = ekus
	}
	if len(cfg.ExpectedPolicies) > 0 {
		oids, err := config.ProcessOIDs(cfg.ExpectedPolicies)
		if err != nil {
			return err
		}
		opts.ExpectedPolicies = oids
	}
	if cfg.Revocation != nil {
		opts.CheckRevocation = cfg.Revocation.CheckRevocation
		if cfg.Revocation.Policy != "" {
			policy, err := certvalidator.ParseRevocationPolicy(cfg.Revocation.Policy)
			if err != nil {
				return err
			}
			opts.RevocationPolicy = policy
		}
	}
	return nil
}

func printResult(cmd *cobra.Command, subject string, result *certvalidator.ValidationResult) {
	out := cmd.OutOrStdout()
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "ERROR    %s\n", msg)
	}
	for _, msg := range result.Warnings {
		fmt.Fprintf(out, "WARNING  %s\n", msg)
	}
	for _, msg := range result.Infos {
		fmt.Fprintf(out, "INFO     %s\n", msg)
	}
	for _, msg := range result.Successes {
		fmt.Fprintf(out, "OK       %s\n", msg)
	}
	if result.IsValid() {
		fmt.Fprintf(out, "\n%s: VALID\n", subject)
	} else {
		fmt.Fprintf(out, "\n%s: INVALID (%d error(s))\n", subject, len(result.Errors))
	}
}

type resultJSON struct {
	Subject   string   `json:"subject"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Infos     []string `json:"infos,omitempty"`
	Successes []string `json:"successes,omitempty"`
}

func printResultJSON(cmd *cobra.Command, subject string, result *certvalidator.ValidationResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resultJSON{
		Subject:   subject,
		Valid:     result.IsValid(),
		Errors:    result.Errors,
		Warnings:  result.Warnings,
		Infos:     result.Infos,
		Successes: result.Successes,
	})
}
