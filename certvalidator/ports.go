package certvalidator

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"errors"
)

// RevocationFetcher retrieves the raw bytes of a CRL or OCSP response from a
// URL. It is the only I/O boundary the engine crosses; implementations are
// free to add timeouts, retries, or caching of their own. *fetchers.Fetcher
// satisfies this interface without any adapter.
type RevocationFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ErrUnsupportedAlgorithm is returned by VerifySignature when the signature
// algorithm OID is not one the verifier understands, as distinct from a
// signature that was checked and found invalid.
var ErrUnsupportedAlgorithm = errors.New("certvalidator: unsupported signature algorithm")

// VerifySignature checks signature over tbs using publicKey under the
// algorithm identified by sigAlgOID. It returns (false, nil) for a signature
// that was checked and found invalid, and (false, ErrUnsupportedAlgorithm)
// when the algorithm itself isn't supported — callers must not conflate the
// two.
func VerifySignature(tbs, signature []byte, publicKey crypto.PublicKey, sigAlgOID asn1.ObjectIdentifier) (bool, error) {
	err := verifySignatureOID(tbs, signature, publicKey, sigAlgOID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrAlgorithmNotSupported) {
		return false, ErrUnsupportedAlgorithm
	}
	if errors.Is(err, ErrInvalidSignature) {
		return false, nil
	}
	return false, err
}

// verifyCertSignedBy reports whether child was signed by issuer's public key,
// using child's own declared signature algorithm.
func verifyCertSignedBy(child, issuer *x509.Certificate) (bool, error) {
	oid := oidForSignatureAlgorithm(child.SignatureAlgorithm)
	if oid == nil {
		return false, ErrUnsupportedAlgorithm
	}
	return VerifySignature(child.RawTBSCertificate, child.Signature, issuer.PublicKey, oid)
}

// oidForSignatureAlgorithm maps Go's parsed x509.SignatureAlgorithm back to
// its ASN.1 OID, since the parsed certificate does not retain it directly.
func oidForSignatureAlgorithm(algo x509.SignatureAlgorithm) asn1.ObjectIdentifier {
	switch algo {
	case x509.MD5WithRSA:
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 4}
	case x509.SHA1WithRSA:
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	case x509.SHA256WithRSA:
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	case x509.SHA384WithRSA:
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	case x509.SHA512WithRSA:
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	case x509.SHA256WithRSAPSS:
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	case x509.SHA384WithRSAPSS:
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	case x509.SHA512WithRSAPSS:
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	case x509.ECDSAWithSHA1:
		return asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 1}
	case x509.ECDSAWithSHA256:
		return asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	case x509.ECDSAWithSHA384:
		return asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	case x509.ECDSAWithSHA512:
		return asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
	case x509.DSAWithSHA1:
		return asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 3}
	case x509.DSAWithSHA256:
		return asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 2}
	case x509.PureEd25519:
		return asn1.ObjectIdentifier{1, 3, 101, 112}
	default:
		return nil
	}
}
