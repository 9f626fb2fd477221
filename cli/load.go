package cli

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/trustkit/pkicheck/certvalidator"
)

// loadCertificates reads path and decodes every certificate in it, accepting
// a PEM bundle or a single DER certificate.
func loadCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if certs, err := certvalidator.DecodeCertPEM(data); err == nil {
		return certs, nil
	}
	cert, err := certvalidator.DecodeCertDER(data)
	if err != nil {
		return nil, err
	}
	return []*x509.Certificate{cert}, nil
}

// loadCertificateList flattens the certificates found in each listed file.
func loadCertificateList(paths []string) ([]*x509.Certificate, error) {
	var all []*x509.Certificate
	for _, path := range paths {
		certs, err := loadCertificates(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		all = append(all, certs...)
	}
	return all, nil
}

// loadCRL reads a CRL from path, accepting PEM or DER.
func loadCRL(path string) (*x509.RevocationList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if crl, err := certvalidator.DecodeCRLPEM(data); err == nil {
		return crl, nil
	}
	return certvalidator.DecodeCRLDER(data)
}

// parseKeyUsageFlags converts configuration flag names into an x509.KeyUsage
// bitset. Both kebab-case and camelCase spellings are accepted, matching the
// configuration file format.
func parseKeyUsageFlags(flags []string) (x509.KeyUsage, error) {
	mapping := map[string]x509.KeyUsage{
		"digital-signature":  x509.KeyUsageDigitalSignature,
		"content-commitment": x509.KeyUsageContentCommitment,
		"non-repudiation":    x509.KeyUsageContentCommitment,
		"key-encipherment":   x509.KeyUsageKeyEncipherment,
		"data-encipherment":  x509.KeyUsageDataEncipherment,
		"key-agreement":      x509.KeyUsageKeyAgreement,
		"key-cert-sign":      x509.KeyUsageCertSign,
		"crl-sign":           x509.KeyUsageCRLSign,
		"encipher-only":      x509.KeyUsageEncipherOnly,
		"decipher-only":      x509.KeyUsageDecipherOnly,
	}

	var usage x509.KeyUsage
	for _, flag := range flags {
		ku, ok := mapping[normalizeFlagName(flag, normalizeKeyUsageAliases)]
		if !ok {
			return 0, fmt.Errorf("unknown key usage flag %q", flag)
		}
		usage |= ku
	}
	return usage, nil
}

// parseEKUFlags converts configuration flag names into ExtKeyUsage values.
func parseEKUFlags(flags []string) ([]x509.ExtKeyUsage, error) {
	mapping := map[string]x509.ExtKeyUsage{
		"any":              x509.ExtKeyUsageAny,
		"server-auth":      x509.ExtKeyUsageServerAuth,
		"client-auth":      x509.ExtKeyUsageClientAuth,
		"code-signing":     x509.ExtKeyUsageCodeSigning,
		"email-protection": x509.ExtKeyUsageEmailProtection,
		"ipsec-end-system": x509.ExtKeyUsageIPSECEndSystem,
		"ipsec-tunnel":     x509.ExtKeyUsageIPSECTunnel,
		"ipsec-user":       x509.ExtKeyUsageIPSECUser,
		"time-stamping":    x509.ExtKeyUsageTimeStamping,
		"ocsp-signing":     x509.ExtKeyUsageOCSPSigning,
	}

	var ekus []x509.ExtKeyUsage
	for _, flag := range flags {
		eku, ok := mapping[normalizeFlagName(flag, normalizeEKUAliases)]
		if !ok {
			return nil, fmt.Errorf("unknown extended key usage flag %q", flag)
		}
		ekus = append(ekus, eku)
	}
	return ekus, nil
}

var normalizeKeyUsageAliases = map[string]string{
	"digitalSignature":  "digital-signature",
	"contentCommitment": "content-commitment",
	"nonRepudiation":    "non-repudiation",
	"keyEncipherment":   "key-encipherment",
	"dataEncipherment":  "data-encipherment",
	"keyAgreement":      "key-agreement",
	"keyCertSign":       "key-cert-sign",
	"cRLSign":           "crl-sign",
	"encipherOnly":      "encipher-only",
	"decipherOnly":      "decipher-only",
}

var normalizeEKUAliases = map[string]string{
	"serverAuth":      "server-auth",
	"clientAuth":      "client-auth",
	"codeSigning":     "code-signing",
	"emailProtection": "email-protection",
	"ipsecEndSystem":  "ipsec-end-system",
	"ipsecTunnel":     "ipsec-tunnel",
	"ipsecUser":       "ipsec-user",
	"timeStamping":    "time-stamping",
	"OCSPSigning":     "ocsp-signing",
}

func normalizeFlagName(flag string, aliases map[string]string) string {
	if canonical, ok := aliases[flag]; ok {
		return canonical
	}
	return flag
}
