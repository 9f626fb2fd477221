package certvalidator

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/asn1"
	"errors"
	"fmt"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// Sentinel errors for the signature verifier. An unsupported algorithm and
// an invalid signature are distinct outcomes and must stay distinguishable
// for callers.
var (
	ErrAlgorithmNotSupported = errors.New("certvalidator: signature algorithm not supported")
	ErrInvalidSignature      = errors.New("certvalidator: invalid signature")
)

type sigFamily int

const (
	sigRSA sigFamily = iota
	sigRSAPSS
	sigECDSA
	sigEd25519
)

type sigAlgorithm struct {
	family sigFamily
	hash   crypto.Hash
}

// signatureAlgorithms indexes the supported signature algorithm OIDs. The
// baseline is RSA PKCS#1 v1.5 and ECDSA with SHA-1 through SHA-512, plus
// RSA-PSS and Ed25519.
var signatureAlgorithms = map[string]sigAlgorithm{
	"1.2.840.113549.1.1.5":  {sigRSA, crypto.SHA1},   // sha1WithRSAEncryption
	"1.2.840.113549.1.1.11": {sigRSA, crypto.SHA256}, // sha256WithRSAEncryption
	"1.2.840.113549.1.1.12": {sigRSA, crypto.SHA384}, // sha384WithRSAEncryption
	"1.2.840.113549.1.1.13": {sigRSA, crypto.SHA512}, // sha512WithRSAEncryption
	"1.2.840.113549.1.1.10": {sigRSAPSS, 0},          // rsassa-pss, hash from parameters
	"1.2.840.10045.4.1":     {sigECDSA, crypto.SHA1},   // ecdsa-with-SHA1
	"1.2.840.10045.4.3.2":   {sigECDSA, crypto.SHA256}, // ecdsa-with-SHA256
	"1.2.840.10045.4.3.3":   {sigECDSA, crypto.SHA384}, // ecdsa-with-SHA384
	"1.2.840.10045.4.3.4":   {sigECDSA, crypto.SHA512}, // ecdsa-with-SHA512
	"1.3.101.112":           {sigEd25519, 0},           // ed25519
}

// verifySignatureOID checks signature over signed under the algorithm named
// by oid. It returns nil on success, ErrInvalidSignature when the signature
// was checked and does not verify, and ErrAlgorithmNotSupported (wrapped)
// for algorithms outside the supported set.
func verifySignatureOID(signed, signature []byte, publicKey crypto.PublicKey, oid asn1.ObjectIdentifier) error {
	alg, ok := signatureAlgorithms[oid.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlgorithmNotSupported, oid)
	}

	switch alg.family {
	case sigRSA:
		pub, ok := publicKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: RSA signature with %T key", ErrInvalidSignature, publicKey)
		}
		digest := hashSum(alg.hash, signed)
		if err := rsa.VerifyPKCS1v15(pub, alg.hash, digest, signature); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil

	case sigRSAPSS:
		pub, ok := publicKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: RSA-PSS signature with %T key", ErrInvalidSignature, publicKey)
		}
		// The hash lives in the algorithm parameters, which the OID alone
		// does not carry; try each SHA-2 digest the baseline permits.
		for _, hash := range []crypto.Hash{crypto.SHA256, crypto.SHA384, crypto.SHA512} {
			digest := hashSum(hash, signed)
			if rsa.VerifyPSS(pub, hash, digest, signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto}) == nil {
				return nil
			}
		}
		return fmt.Errorf("%w: RSA-PSS verification failed", ErrInvalidSignature)

	case sigECDSA:
		pub, ok := publicKey.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: ECDSA signature with %T key", ErrInvalidSignature, publicKey)
		}
		digest := hashSum(alg.hash, signed)
		if !ecdsa.VerifyASN1(pub, digest, signature) {
			return ErrInvalidSignature
		}
		return nil

	case sigEd25519:
		pub, ok := publicKey.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("%w: Ed25519 signature with %T key", ErrInvalidSignature, publicKey)
		}
		if !ed25519.Verify(pub, signed, signature) {
			return ErrInvalidSignature
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrAlgorithmNotSupported, oid)
}

func hashSum(hash crypto.Hash, data []byte) []byte {
	h := hash.New()
	h.Write(data)
	return h.Sum(nil)
}
