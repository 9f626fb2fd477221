package certvalidator

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// DecodeError reports a malformed input to one of the decode functions. The
// decoder's contract is total: it never returns a partial record, only this
// error.
type DecodeError struct {
	Kind   string // "certificate" or "crl"
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %s", e.Kind, e.Reason)
}

func newDecodeError(kind string, reason string) *DecodeError {
	return &DecodeError{Kind: kind, Reason: reason}
}

// DecodeCertDER decodes a single DER-encoded certificate.
func DecodeCertDER(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, newDecodeError("certificate", err.Error())
	}
	return cert, nil
}

// DecodeCertPEM decodes one or more PEM-wrapped certificates from a
// CERTIFICATE-block envelope. At least one block is required.
func DecodeCertPEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := DecodeCertDER(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, newDecodeError("certificate", "no CERTIFICATE block found in PEM input")
	}
	return certs, nil
}

// DecodeCRLDER decodes a single DER-encoded certificate revocation list.
func DecodeCRLDER(der []byte) (*x509.RevocationList, error) {
	crl, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, newDecodeError("crl", err.Error())
	}
	return crl, nil
}

// DecodeCRLPEM decodes a single PEM-wrapped CRL from an X509 CRL-block
// envelope.
func DecodeCRLPEM(data []byte) (*x509.RevocationList, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, newDecodeError("crl", "no PEM block found in input")
	}
	if block.Type != "X509 CRL" {
		return nil, newDecodeError("crl", fmt.Sprintf("unexpected PEM block type %q", block.Type))
	}
	return DecodeCRLDER(block.Bytes)
}
