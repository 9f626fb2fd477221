package certvalidator

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

// Shared test PKI builders for the chain builder, chain validator, and
// revocation engine tests. All certificates default to the 2024-01-01 to
// 2025-01-01 window and are evaluated at evalTime unless a test overrides
// them.

var (
	pkiNotBefore = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pkiNotAfter  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	evalTime     = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

type certSpec struct {
	cn        string
	serial    int64
	notBefore time.Time
	notAfter  time.Time
	isCA      bool
	// maxPathLen: -1 means no constraint, 0 means an explicit zero.
	maxPathLen int
	keyUsage   x509.KeyUsage
	ekus       []x509.ExtKeyUsage
	dnsNames   []string
	crlDPs     []string
	ocspURLs   []string
	policies   []asn1.ObjectIdentifier
	extraExts  []pkix.Extension
}

// mustMakeCert issues a certificate per spec, signed by parent (or
// self-signed when parent is nil), and returns it with its private key.
func mustMakeCert(t *testing.T, spec certSpec, parent *x509.Certificate, parentKey *ecdsa.PrivateKey) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	if spec.notBefore.IsZero() {
		spec.notBefore = pkiNotBefore
	}
	if spec.notAfter.IsZero() {
		spec.notAfter = pkiNotAfter
	}
	if spec.keyUsage == 0 {
		if spec.isCA {
			spec.keyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
		} else {
			spec.keyUsage = x509.KeyUsageDigitalSignature
		}
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(spec.serial),
		Subject:               pkix.Name{CommonName: spec.cn},
		NotBefore:             spec.notBefore,
		NotAfter:              spec.notAfter,
		KeyUsage:              spec.keyUsage,
		ExtKeyUsage:           spec.ekus,
		BasicConstraintsValid: true,
		IsCA:                  spec.isCA,
		DNSNames:              spec.dnsNames,
		CRLDistributionPoints: spec.crlDPs,
		OCSPServer:            spec.ocspURLs,
		PolicyIdentifiers:     spec.policies,
		ExtraExtensions:       spec.extraExts,
	}
	// CreateCertificate marshals Policies rather than PolicyIdentifiers.
	for _, policy := range spec.policies {
		ints := make([]uint64, len(policy))
		for i, arc := range policy {
			ints[i] = uint64(arc)
		}
		oid, err := x509.OIDFromInts(ints)
		if err != nil {
			t.Fatalf("convert policy OID %s: %v", policy, err)
		}
		template.Policies = append(template.Policies, oid)
	}
	if spec.isCA && spec.maxPathLen >= 0 {
		template.MaxPathLen = spec.maxPathLen
		template.MaxPathLenZero = spec.maxPathLen == 0
	}

	signerCert := template
	signerKey := key
	if parent != nil {
		signerCert = parent
		signerKey = parentKey
	}

	der, err := x509.CreateCertificate(rand.Reader, template, signerCert, &key.PublicKey, signerKey)
	if err != nil {
		t.Fatalf("create certificate %q: %v", spec.cn, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate %q: %v", spec.cn, err)
	}
	return cert, key
}

// testPKI is the three-tier hierarchy most scenarios start from:
// CN=Root CA (0x100, self-signed) -> CN=Int CA (0x10) -> CN=example.com (0x01).
type testPKI struct {
	root     *x509.Certificate
	rootKey  *ecdsa.PrivateKey
	inter    *x509.Certificate
	interKey *ecdsa.PrivateKey
	leaf     *x509.Certificate
	leafKey  *ecdsa.PrivateKey
}

func newTestPKI(t *testing.T, leafSpec certSpec) *testPKI {
	t.Helper()

	root, rootKey := mustMakeCert(t, certSpec{cn: "Root CA", serial: 0x100, isCA: true, maxPathLen: -1}, nil, nil)
	inter, interKey := mustMakeCert(t, certSpec{cn: "Int CA", serial: 0x10, isCA: true, maxPathLen: -1}, root, rootKey)

	if leafSpec.cn == "" {
		leafSpec.cn = "example.com"
	}
	if leafSpec.serial == 0 {
		leafSpec.serial = 0x01
	}
	leaf, leafKey := mustMakeCert(t, leafSpec, inter, interKey)

	return &testPKI{
		root: root, rootKey: rootKey,
		inter: inter, interKey: interKey,
		leaf: leaf, leafKey: leafKey,
	}
}

// mapFetcher is a deterministic in-memory RevocationFetcher. URLs resolve by
// longest registered prefix to fixed payloads, fixed errors, or a handler
// that sees the full URL fetched (OCSP requests ride in the URL path). It
// records every URL fetched.
type mapFetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	handlers  map[string]func(ctx context.Context, url string) ([]byte, error)
	calls     []string
}

func newMapFetcher() *mapFetcher {
	return &mapFetcher{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
		handlers:  make(map[string]func(ctx context.Context, url string) ([]byte, error)),
	}
}

func (f *mapFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)

	var handler func(ctx context.Context, url string) ([]byte, error)
	var data []byte
	var ferr error
	haveData, haveErr := false, false
	bestLen := -1
	for prefix, h := range f.handlers {
		if len(prefix) > bestLen && hasPrefix(url, prefix) {
			handler, bestLen = h, len(prefix)
		}
	}
	for prefix, d := range f.responses {
		if len(prefix) > bestLen && hasPrefix(url, prefix) {
			data, haveData, haveErr, handler = d, true, false, nil
			bestLen = len(prefix)
		}
	}
	for prefix, e := range f.errs {
		if len(prefix) > bestLen && hasPrefix(url, prefix) {
			ferr, haveErr, haveData, handler = e, true, false, nil
			bestLen = len(prefix)
		}
	}
	f.mu.Unlock()

	if handler != nil {
		return handler(ctx, url)
	}
	if haveErr {
		return nil, ferr
	}
	if haveData {
		return data, nil
	}
	return nil, fmt.Errorf("no response configured for %s", url)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (f *mapFetcher) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// mustMakeCRL signs a revocation list over entries with issuer's key.
func mustMakeCRL(t *testing.T, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey, number int64, thisUpdate, nextUpdate time.Time, entries []x509.RevocationListEntry) *x509.RevocationList {
	t.Helper()

	template := &x509.RevocationList{
		Number:                    big.NewInt(number),
		ThisUpdate:                thisUpdate,
		NextUpdate:                nextUpdate,
		RevokedCertificateEntries: entries,
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, issuer, issuerKey)
	if err != nil {
		t.Fatalf("create CRL: %v", err)
	}
	crl, err := x509.ParseRevocationList(der)
	if err != nil {
		t.Fatalf("parse CRL: %v", err)
	}
	return crl
}

// mustMakeOCSPResponse signs an OCSP response for template with issuer's key.
func mustMakeOCSPResponse(t *testing.T, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey, template ocsp.Response) []byte {
	t.Helper()

	if template.ThisUpdate.IsZero() {
		template.ThisUpdate = evalTime.Add(-time.Hour)
	}
	if template.NextUpdate.IsZero() {
		template.NextUpdate = evalTime.Add(24 * time.Hour)
	}
	raw, err := ocsp.CreateResponse(issuer, issuer, template, issuerKey)
	if err != nil {
		t.Fatalf("create OCSP response: %v", err)
	}
	return raw
}

// ocspRequestFromURL strips prefix from url and base64-decodes the remaining
// path segment into the DER OCSP request it carries.
func ocspRequestFromURL(t *testing.T, url, prefix string) []byte {
	t.Helper()

	encoded := url[len(prefix):]
	for len(encoded) > 0 && encoded[0] == '/' {
		encoded = encoded[1:]
	}
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode OCSP request from URL %q: %v", url, err)
	}
	return der
}

// nonceFromOCSPRequest pulls the nonce extension out of a DER OCSP request.
func nonceFromOCSPRequest(t *testing.T, der []byte) []byte {
	t.Helper()

	var msg ocspRequestMessage
	if _, err := asn1.Unmarshal(der, &msg); err != nil {
		t.Fatalf("unmarshal OCSP request: %v", err)
	}
	for _, ext := range msg.TBSRequest.Extensions {
		if ext.ID.Equal(ocspNonceOID) {
			var nonce []byte
			if _, err := asn1.Unmarshal(ext.Value, &nonce); err != nil {
				t.Fatalf("unmarshal nonce: %v", err)
			}
			return nonce
		}
	}
	return nil
}

func nonceExtension(t *testing.T, nonce []byte) pkix.Extension {
	t.Helper()
	val, err := asn1.Marshal(nonce)
	if err != nil {
		t.Fatalf("marshal nonce: %v", err)
	}
	return pkix.Extension{Id: ocspNonceOID, Value: val}
}
